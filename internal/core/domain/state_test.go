package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhases_Ordered(t *testing.T) {
	phases := Phases()
	require.Len(t, phases, 14)
	assert.Equal(t, PhasePresent, phases[0])
	assert.Equal(t, PhaseDeletingFromRemote, phases[13])
	assert.Equal(t, 1, int(PhasePresent))
	assert.Equal(t, 14, int(PhaseDeletingFromRemote))
}

func TestParsePhase_RoundTrip(t *testing.T) {
	for _, p := range Phases() {
		parsed, err := ParsePhase(p.String())
		require.NoError(t, err, p.String())
		assert.Equal(t, p, parsed)
	}
}

func TestParsePhase_Unknown(t *testing.T) {
	_, err := ParsePhase("exploding")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestPhase_StringOutOfRange(t *testing.T) {
	assert.Equal(t, "phase(99)", Phase(99).String())
	assert.False(t, Phase(0).Valid())
}

func TestState_JSON(t *testing.T) {
	data, err := json.Marshal(Failed(PhaseInstalling))
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"installing","outcome":"failed"}`, string(data))

	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"uploaded","outcome":"succeeded"}`), &s))
	assert.Equal(t, Succeeded(PhaseUploaded), s)
}

func TestState_Validate(t *testing.T) {
	assert.NoError(t, Pending(PhaseUploading).Validate())
	assert.ErrorIs(t, State{Phase: 42, Outcome: OutcomePending}.Validate(), ErrUnknownPhase)
	assert.ErrorIs(t, State{Phase: PhasePresent, Outcome: "maybe"}.Validate(), ErrInvalidInput)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "deployed/succeeded", Succeeded(PhaseDeployed).String())
}
