package fabric

// =============================================================================
// Executions
// =============================================================================

// ExecutionStatus is the lifecycle status of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending         ExecutionStatus = "pending"
	ExecutionStarted         ExecutionStatus = "started"
	ExecutionCancelling      ExecutionStatus = "cancelling"
	ExecutionForceCancelling ExecutionStatus = "force_cancelling"
	ExecutionCancelled       ExecutionStatus = "cancelled"
	ExecutionTerminated      ExecutionStatus = "terminated"
	ExecutionFailed          ExecutionStatus = "failed"
)

// IsTerminal reports whether the execution will not change status again.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCancelled, ExecutionTerminated, ExecutionFailed:
		return true
	}
	return false
}

// Succeeded reports whether the execution finished successfully.
func (s ExecutionStatus) Succeeded() bool {
	return s == ExecutionTerminated
}

// Workflow ids used by the pipeline.
const (
	WorkflowCreateDeploymentEnvironment = "create_deployment_environment"
	WorkflowDeleteDeploymentEnvironment = "delete_deployment_environment"
	WorkflowInstall                     = "install"
	WorkflowUninstall                   = "uninstall"
)

// Execution is a workflow run on the fabric manager.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	DeploymentID string          `json:"deployment_id"`
	BlueprintID  string          `json:"blueprint_id,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

// =============================================================================
// Deployments
// =============================================================================

// OutputSpec is an output as declared in the deployment.
type OutputSpec struct {
	Description string `json:"description"`
	Value       any    `json:"value"`
}

// Deployment is a deployment as reported by the fabric manager.
type Deployment struct {
	ID          string                `json:"id"`
	BlueprintID string                `json:"blueprint_id"`
	Inputs      map[string]any        `json:"inputs,omitempty"`
	Outputs     map[string]OutputSpec `json:"outputs,omitempty"`
}

// DeploymentOutputs carries the evaluated output values of a deployment.
type DeploymentOutputs struct {
	DeploymentID string         `json:"deployment_id"`
	Outputs      map[string]any `json:"outputs"`
}

// NodeInstance is a runtime instance of a blueprint node.
type NodeInstance struct {
	ID                string         `json:"id"`
	NodeID            string         `json:"node_id"`
	DeploymentID      string         `json:"deployment_id"`
	State             string         `json:"state"`
	HostID            string         `json:"host_id,omitempty"`
	RuntimeProperties map[string]any `json:"runtime_properties,omitempty"`
}

// IP returns the runtime ip property, if the instance reported one.
func (n NodeInstance) IP() string {
	ip, _ := n.RuntimeProperties["ip"].(string)
	return ip
}

type listResponse[T any] struct {
	Items    []T `json:"items"`
	Metadata struct {
		Pagination struct {
			Total  int `json:"total"`
			Size   int `json:"size"`
			Offset int `json:"offset"`
		} `json:"pagination"`
	} `json:"metadata"`
}

type errorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}
