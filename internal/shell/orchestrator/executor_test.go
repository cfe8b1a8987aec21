package orchestrator

import (
	"context"
	"testing"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/fabricd/fabricd/internal/core/pipeline"
	"github.com/fabricd/fabricd/internal/shell/fabric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_UnknownStep(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.svc.executor.Execute(context.Background(), pipeline.Step{Kind: "reboot", ContainerID: "c-1"}, "")

	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestExecutor_CancelledContextSkipsWork(t *testing.T) {
	env := setupTestEnv(t)
	bp := env.blueprint(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.executor.Execute(ctx, pipeline.Step{Kind: pipeline.KindUploadArchive, ContainerID: "c-1", BlueprintID: bp.ID}, "")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, env.fabric.Calls())
	assert.Equal(t, domain.Succeeded(domain.PhasePresent), env.getBlueprint(t, bp.ID).State)
}

func TestExecutor_EntryStateIsPersistedBeforeRemoteCall(t *testing.T) {
	env := setupTestEnv(t)
	bp := env.blueprint(t)
	env.fabric.fail("publish_archive", &fabric.APIError{StatusCode: 400, Message: "bad archive"})

	_, err := env.svc.executor.Execute(context.Background(), pipeline.Step{Kind: pipeline.KindUploadArchive, ContainerID: "c-1", BlueprintID: bp.ID}, "")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, bp.ID, stepErr.BlueprintID)
	got := env.getBlueprint(t, bp.ID)
	assert.Equal(t, domain.Failed(domain.PhaseUploading), got.State)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0].Message, "bad archive")
}

func TestExecutor_WaitRequiresExecution(t *testing.T) {
	env := setupTestEnv(t)
	bp := env.blueprint(t)

	_, err := env.svc.executor.Execute(context.Background(), pipeline.Step{Kind: pipeline.KindWait, ContainerID: "c-1", BlueprintID: bp.ID}, "")

	assert.ErrorIs(t, err, ErrNoExecution)
	assert.Equal(t, domain.Failed(domain.PhasePresent), env.getBlueprint(t, bp.ID).State)
}

func TestExecutor_InstallLeavesStatePending(t *testing.T) {
	env := setupTestEnv(t)
	bp := env.blueprintIn(t, domain.Succeeded(domain.PhasePreparedDeployment))

	handle, err := env.svc.executor.Execute(context.Background(), pipeline.Step{Kind: pipeline.KindInstall, ContainerID: "c-1", BlueprintID: bp.ID}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, domain.Pending(domain.PhaseInstalling), env.getBlueprint(t, bp.ID).State)

	_, err = env.svc.executor.Execute(context.Background(), pipeline.Step{
		Kind: pipeline.KindWait, ContainerID: "c-1", BlueprintID: bp.ID, Completes: domain.PhaseInstalled,
	}, handle)
	require.NoError(t, err)
	assert.Equal(t, domain.Succeeded(domain.PhaseInstalled), env.getBlueprint(t, bp.ID).State)
}
