package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Phase
// =============================================================================

// ErrUnknownPhase is returned when a phase value or name is outside the lifecycle.
var ErrUnknownPhase = errors.New("unknown blueprint phase")

// Phase is a position in the blueprint lifecycle.
type Phase int

// Deploy phases in forward order, then the teardown phases. A blueprint that
// finished teardown returns to PhasePresent.
const (
	PhasePresent Phase = iota + 1
	PhaseUploading
	PhaseUploaded
	PhasePreparingDeployment
	PhasePreparedDeployment
	PhaseInstalling
	PhaseInstalled
	PhaseFetchingOutputs
	PhaseDeployed
	PhaseUninstalling
	PhaseUninstalled
	PhaseDeletingDeployment
	PhaseDeletedDeployment
	PhaseDeletingFromRemote
)

var phaseNames = map[Phase]string{
	PhasePresent:             "present",
	PhaseUploading:           "uploading",
	PhaseUploaded:            "uploaded",
	PhasePreparingDeployment: "preparing_deployment",
	PhasePreparedDeployment:  "prepared_deployment",
	PhaseInstalling:          "installing",
	PhaseInstalled:           "installed",
	PhaseFetchingOutputs:     "fetching_outputs",
	PhaseDeployed:            "deployed",
	PhaseUninstalling:        "uninstalling",
	PhaseUninstalled:         "uninstalled",
	PhaseDeletingDeployment:  "deleting_deployment",
	PhaseDeletedDeployment:   "deleted_deployment",
	PhaseDeletingFromRemote:  "deleting_from_remote",
}

// Phases returns every lifecycle phase in declaration order.
func Phases() []Phase {
	phases := make([]Phase, 0, len(phaseNames))
	for p := PhasePresent; p <= PhaseDeletingFromRemote; p++ {
		phases = append(phases, p)
	}
	return phases
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Valid reports whether p is one of the lifecycle phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// ParsePhase converts a stored phase name back into a Phase.
func ParsePhase(name string) (Phase, error) {
	for p, n := range phaseNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPhase, name)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// =============================================================================
// Outcome
// =============================================================================

// Outcome describes how the operation targeting a phase ended.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeSucceeded, OutcomeFailed:
		return true
	}
	return false
}

// =============================================================================
// State
// =============================================================================

// State is the persisted lifecycle position of a blueprint. A failed outcome
// means the operation trying to reach Phase did not complete.
type State struct {
	Phase   Phase   `json:"phase"`
	Outcome Outcome `json:"outcome"`
}

// Pending returns the state recorded when an operation toward p starts.
func Pending(p Phase) State { return State{Phase: p, Outcome: OutcomePending} }

// Succeeded returns the state recorded when p has been reached.
func Succeeded(p Phase) State { return State{Phase: p, Outcome: OutcomeSucceeded} }

// Failed returns the state recorded when reaching p failed.
func Failed(p Phase) State { return State{Phase: p, Outcome: OutcomeFailed} }

func (s State) String() string {
	return s.Phase.String() + "/" + string(s.Outcome)
}

// Validate checks that both halves of the state are known.
func (s State) Validate() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, int(s.Phase))
	}
	if !s.Outcome.Valid() {
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, s.Outcome)
	}
	return nil
}
