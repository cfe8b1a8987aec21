package pipeline

import (
	"errors"
	"fmt"

	"github.com/fabricd/fabricd/internal/core/domain"
)

// ErrActiveMismatch is returned when the supplied active blueprint is not the
// one the container points at.
var ErrActiveMismatch = errors.New("active blueprint does not match container")

// Request carries everything Build needs.
type Request struct {
	Container domain.Container

	// Active is the container's active blueprint, nil when none is set.
	Active *domain.Blueprint

	// RegisterApp inserts the application registration step after the
	// deployment has been created.
	RegisterApp bool
}

// Build computes the ordered steps that take a container from its current
// active blueprint to its queued one. The result always ends in a release
// step. A nil slice is never returned together with a nil error.
func Build(req Request) ([]Step, error) {
	c := req.Container
	if (c.ActiveBlueprint == "") != (req.Active == nil) {
		return nil, ErrActiveMismatch
	}
	if req.Active != nil && req.Active.ID != c.ActiveBlueprint {
		return nil, fmt.Errorf("%w: container has %s, got %s", ErrActiveMismatch, c.ActiveBlueprint, req.Active.ID)
	}

	var steps []Step

	if req.Active != nil {
		kinds, err := UndeploySteps(req.Active.State)
		if err != nil {
			return nil, fmt.Errorf("blueprint %s: %w", req.Active.ID, err)
		}
		for _, k := range kinds {
			steps = append(steps, Step{Kind: k, ContainerID: c.ID, BlueprintID: req.Active.ID})
		}
	}

	steps = append(steps, Step{Kind: KindSwitch, ContainerID: c.ID})

	if q := c.QueuedBlueprint; q != "" {
		steps = append(steps,
			Step{Kind: KindUploadArchive, ContainerID: c.ID, BlueprintID: q},
			Step{Kind: KindCreateDeployment, ContainerID: c.ID, BlueprintID: q},
		)
		if req.RegisterApp {
			steps = append(steps, Step{Kind: KindRegisterApp, ContainerID: c.ID, BlueprintID: q})
		}
		steps = append(steps,
			Step{Kind: KindWait, ContainerID: c.ID, BlueprintID: q},
			Step{Kind: KindInstall, ContainerID: c.ID, BlueprintID: q},
			Step{Kind: KindWait, ContainerID: c.ID, BlueprintID: q, Completes: domain.PhaseInstalled},
			Step{Kind: KindFetchOutputs, ContainerID: c.ID, BlueprintID: q},
		)
	}

	steps = append(steps, Step{Kind: KindRelease, ContainerID: c.ID})
	return steps, nil
}
