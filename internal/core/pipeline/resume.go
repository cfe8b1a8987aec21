package pipeline

import (
	"fmt"

	"github.com/fabricd/fabricd/internal/core/domain"
)

// =============================================================================
// Resumption Mapping
// =============================================================================

// resumeIndex maps each phase to the first undeploy step it still needs.
// 3 means nothing is left to tear down.
var resumeIndex = map[domain.Phase]int{
	domain.PhasePresent:             3,
	domain.PhaseUploading:           3,
	domain.PhaseUploaded:            2,
	domain.PhasePreparingDeployment: 2,
	domain.PhasePreparedDeployment:  1,
	domain.PhaseInstalling:          0,
	domain.PhaseInstalled:           0,
	domain.PhaseFetchingOutputs:     0,
	domain.PhaseDeployed:            0,
	domain.PhaseUninstalling:        0,
	domain.PhaseUninstalled:         1,
	domain.PhaseDeletingDeployment:  1,
	domain.PhaseDeletedDeployment:   2,
	domain.PhaseDeletingFromRemote:  2,
}

// ResumeIndex returns the position in UndeploySequence from which teardown of
// a blueprint in state s must start. The outcome is ignored: a failed attempt
// to reach a phase leaves the same remote footprint as a pending one.
func ResumeIndex(s domain.State) (int, error) {
	idx, ok := resumeIndex[s.Phase]
	if !ok {
		return 0, fmt.Errorf("%w: %d", domain.ErrUnknownPhase, int(s.Phase))
	}
	return idx, nil
}

// UndeploySteps returns the teardown kinds remaining for state s.
func UndeploySteps(s domain.State) ([]Kind, error) {
	idx, err := ResumeIndex(s)
	if err != nil {
		return nil, err
	}
	return UndeploySequence[idx:], nil
}
