package pipeline

import "github.com/fabricd/fabricd/internal/core/domain"

// =============================================================================
// Step Kinds
// =============================================================================

// Kind names the work a step performs.
type Kind string

const (
	KindUninstall        Kind = "uninstall"
	KindDeleteDeployment Kind = "delete_deployment"
	KindDeleteFromRemote Kind = "delete_from_remote"
	KindSwitch           Kind = "switch"
	KindUploadArchive    Kind = "upload_archive"
	KindCreateDeployment Kind = "create_deployment"
	KindRegisterApp      Kind = "register_app"
	KindWait             Kind = "wait"
	KindInstall          Kind = "install"
	KindFetchOutputs     Kind = "fetch_outputs"
	KindRelease          Kind = "release"
)

// UndeploySequence is the canonical teardown order. ResumeIndex values index
// into it.
var UndeploySequence = []Kind{
	KindUninstall,
	KindDeleteDeployment,
	KindDeleteFromRemote,
}

// =============================================================================
// Step
// =============================================================================

// Step is one unit of pipeline work.
type Step struct {
	Kind        Kind   `json:"kind"`
	ContainerID string `json:"container_id"`
	BlueprintID string `json:"blueprint_id,omitempty"`

	// Completes is the phase a wait step records once its execution
	// terminates. Zero leaves the blueprint state untouched.
	Completes domain.Phase `json:"completes,omitempty"`
}

func (s Step) String() string {
	if s.Completes != 0 {
		return string(s.Kind) + "(" + s.Completes.String() + ")"
	}
	return string(s.Kind)
}

// Kinds returns the kinds of steps in order.
func Kinds(steps []Step) []Kind {
	kinds := make([]Kind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind
	}
	return kinds
}
