package store

import (
	"context"
	"testing"
	"time"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func createTestContainer(t *testing.T, store Store) *domain.Container {
	t.Helper()
	container, err := domain.NewContainer("test slot")
	require.NoError(t, err)
	require.NoError(t, store.CreateContainer(context.Background(), container))
	return container
}

func createTestBlueprint(t *testing.T, store Store) *domain.Blueprint {
	t.Helper()
	blueprint := domain.NewBlueprint()
	require.NoError(t, store.CreateBlueprint(context.Background(), blueprint))
	return blueprint
}

// =============================================================================
// Container Tests
// =============================================================================

func TestCreateContainer_AndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	container := createTestContainer(t, store)

	got, err := store.GetContainer(ctx, container.ID)
	require.NoError(t, err)

	assert.Equal(t, container.ID, got.ID)
	assert.Equal(t, "test slot", got.Description)
	assert.Empty(t, got.ActiveBlueprint)
	assert.Empty(t, got.QueuedBlueprint)
	assert.False(t, got.Busy)
	assert.Equal(t, int64(0), got.Version)
	assert.WithinDuration(t, container.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestCreateContainer_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	container := createTestContainer(t, store)

	err := store.CreateContainer(context.Background(), container)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetContainer_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetContainer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestSaveContainer_BumpsVersion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	container := createTestContainer(t, store)

	container.Busy = true
	container.QueuedBlueprint = "bp-1"
	require.NoError(t, store.SaveContainer(ctx, container))
	assert.Equal(t, int64(1), container.Version)

	got, err := store.GetContainer(ctx, container.ID)
	require.NoError(t, err)
	assert.True(t, got.Busy)
	assert.Equal(t, "bp-1", got.QueuedBlueprint)
	assert.Equal(t, int64(1), got.Version)
}

func TestSaveContainer_StaleVersionConflicts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	container := createTestContainer(t, store)

	first, err := store.GetContainer(ctx, container.ID)
	require.NoError(t, err)
	second, err := store.GetContainer(ctx, container.ID)
	require.NoError(t, err)

	first.Busy = true
	require.NoError(t, store.SaveContainer(ctx, first))

	second.Busy = true
	err = store.SaveContainer(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(0), second.Version)
}

func TestSaveContainer_ClearsBlueprints(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	container := createTestContainer(t, store)

	container.ActiveBlueprint = "bp-1"
	require.NoError(t, store.SaveContainer(ctx, container))
	container.ActiveBlueprint = ""
	require.NoError(t, store.SaveContainer(ctx, container))

	got, err := store.GetContainer(ctx, container.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ActiveBlueprint)
	assert.Equal(t, int64(2), got.Version)
}

func TestSaveContainer_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.SaveContainer(context.Background(), &domain.Container{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteContainer(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	container := createTestContainer(t, store)

	err := store.DeleteContainer(ctx, container.ID, container.Version+1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	require.NoError(t, store.DeleteContainer(ctx, container.ID, container.Version))

	_, err = store.GetContainer(ctx, container.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.DeleteContainer(ctx, container.ID, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListContainers(t *testing.T) {
	store := setupTestStore(t)
	createTestContainer(t, store)
	createTestContainer(t, store)
	createTestContainer(t, store)

	all, err := store.ListContainers(context.Background(), DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := store.ListContainers(context.Background(), ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

// =============================================================================
// Blueprint Tests
// =============================================================================

func TestBlueprint_CreateGetUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	blueprint := createTestBlueprint(t, store)

	got, err := store.GetBlueprint(ctx, blueprint.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Succeeded(domain.PhasePresent), got.State)
	assert.Nil(t, got.Outputs)
	assert.Empty(t, got.Errors)

	got.SetState(domain.Succeeded(domain.PhaseDeployed))
	got.Outputs = map[string]domain.Output{
		"endpoint": {Value: "http://10.0.0.5", Description: "public endpoint"},
	}
	require.NoError(t, store.UpdateBlueprint(ctx, got))

	updated, err := store.GetBlueprint(ctx, blueprint.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Succeeded(domain.PhaseDeployed), updated.State)
	assert.Equal(t, "http://10.0.0.5", updated.Outputs["endpoint"].Value)
	assert.Equal(t, "public endpoint", updated.Outputs["endpoint"].Description)
}

func TestBlueprint_UpdateNotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.UpdateBlueprint(context.Background(), domain.NewBlueprint())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlueprint_ErrorsInOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	blueprint := createTestBlueprint(t, store)

	blueprint.SetState(domain.Pending(domain.PhaseUploading))
	first := blueprint.Fail("upload refused")
	blueprint.SetState(domain.Pending(domain.PhaseUninstalling))
	second := blueprint.Fail("uninstall timed out")

	require.NoError(t, store.AppendBlueprintError(ctx, first))
	require.NoError(t, store.AppendBlueprintError(ctx, second))

	got, err := store.GetBlueprint(ctx, blueprint.ID)
	require.NoError(t, err)
	require.Len(t, got.Errors, 2)
	assert.Equal(t, "upload refused", got.Errors[0].Message)
	assert.Equal(t, domain.Failed(domain.PhaseUploading), got.Errors[0].State)
	assert.Equal(t, "uninstall timed out", got.Errors[1].Message)
}

func TestBlueprint_AppendErrorUnknownBlueprint(t *testing.T) {
	store := setupTestStore(t)

	rec := domain.NewBlueprint().Fail("boom")
	err := store.AppendBlueprintError(context.Background(), rec)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBlueprint_DeleteCascadesErrors(t *testing.T) {
	store := setupTestStore(t).(*SQLiteStore)
	ctx := context.Background()
	blueprint := createTestBlueprint(t, store)
	require.NoError(t, store.AppendBlueprintError(ctx, blueprint.Fail("boom")))

	require.NoError(t, store.DeleteBlueprint(ctx, blueprint.ID))

	var n int
	require.NoError(t, store.db.Get(&n, `SELECT COUNT(*) FROM blueprint_errors`))
	assert.Zero(t, n)

	err := store.DeleteBlueprint(ctx, blueprint.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBlueprints(t *testing.T) {
	store := setupTestStore(t)
	createTestBlueprint(t, store)
	createTestBlueprint(t, store)

	list, err := store.ListBlueprints(context.Background(), DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// =============================================================================
// Input Tests
// =============================================================================

func TestInputs_CRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	input := &domain.Input{Key: "region", Value: "eu-west", Description: "target region"}
	require.NoError(t, store.CreateInput(ctx, input))
	assert.ErrorIs(t, store.CreateInput(ctx, input), ErrDuplicateID)

	got, err := store.GetInput(ctx, "region")
	require.NoError(t, err)
	assert.Equal(t, *input, *got)

	input.Value = "us-east"
	require.NoError(t, store.UpdateInput(ctx, input))

	require.NoError(t, store.CreateInput(ctx, &domain.Input{Key: "flavor", Value: "small"}))
	list, err := store.ListInputs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "flavor", list[0].Key)
	assert.Equal(t, "us-east", list[1].Value)

	require.NoError(t, store.DeleteInput(ctx, "region"))
	_, err = store.GetInput(ctx, "region")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateInput(ctx, input), ErrNotFound)
	assert.ErrorIs(t, store.DeleteInput(ctx, "region"), ErrNotFound)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_CommitsStateAndError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	blueprint := createTestBlueprint(t, store)

	blueprint.SetState(domain.Pending(domain.PhaseInstalling))
	rec := blueprint.Fail("install failed")

	err := store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateBlueprint(ctx, blueprint); err != nil {
			return err
		}
		return tx.AppendBlueprintError(ctx, rec)
	})
	require.NoError(t, err)

	got, err := store.GetBlueprint(ctx, blueprint.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Failed(domain.PhaseInstalling), got.State)
	assert.Len(t, got.Errors, 1)
}

func TestWithTx_RollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	blueprint := createTestBlueprint(t, store)

	blueprint.SetState(domain.Pending(domain.PhaseUploading))
	err := store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpdateBlueprint(ctx, blueprint); err != nil {
			return err
		}
		return tx.DeleteInput(ctx, "missing")
	})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetBlueprint(ctx, blueprint.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Succeeded(domain.PhasePresent), got.State)
}

func TestListOptions_Normalize(t *testing.T) {
	assert.Equal(t, ListOptions{Limit: 100}, ListOptions{}.Normalize())
	assert.Equal(t, ListOptions{Limit: 1000, Offset: 0}, ListOptions{Limit: 5000, Offset: -3}.Normalize())
}
