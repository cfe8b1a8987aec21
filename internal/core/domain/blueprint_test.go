package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlueprint(t *testing.T) {
	b := NewBlueprint()

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, Succeeded(PhasePresent), b.State)
	assert.False(t, b.HasRemoteFootprint())
	assert.NotZero(t, b.CreatedAt)
}

func TestBlueprint_FailKeepsPhase(t *testing.T) {
	b := NewBlueprint()
	b.SetState(Pending(PhaseInstalling))

	rec := b.Fail("install workflow failed")

	assert.Equal(t, Failed(PhaseInstalling), b.State)
	require.Len(t, b.Errors, 1)
	assert.Equal(t, rec, b.Errors[0])
	assert.Equal(t, b.ID, rec.BlueprintID)
	assert.Equal(t, Failed(PhaseInstalling), rec.State)
	assert.Equal(t, "install workflow failed", rec.Message)
}

func TestBlueprint_ErrorsAppendOnly(t *testing.T) {
	b := NewBlueprint()
	b.SetState(Pending(PhaseUploading))
	b.Fail("first")
	b.SetState(Pending(PhaseUninstalling))
	b.Fail("second")

	require.Len(t, b.Errors, 2)
	assert.Equal(t, "first", b.Errors[0].Message)
	assert.Equal(t, PhaseUploading, b.Errors[0].State.Phase)
	assert.Equal(t, "second", b.Errors[1].Message)
}

func TestBlueprint_IsDeployed(t *testing.T) {
	b := NewBlueprint()
	assert.False(t, b.IsDeployed())
	b.SetState(Succeeded(PhaseDeployed))
	assert.True(t, b.IsDeployed())
	assert.True(t, b.HasRemoteFootprint())
}

func TestBlueprint_RecordErrorKeepsState(t *testing.T) {
	b := NewBlueprint()
	b.SetState(Succeeded(PhasePreparedDeployment))

	rec := b.RecordError("Missing input: 'dmon_address'")

	assert.Equal(t, Succeeded(PhasePreparedDeployment), b.State)
	assert.Equal(t, Succeeded(PhasePreparedDeployment), rec.State)
	assert.Len(t, b.Errors, 1)
}
