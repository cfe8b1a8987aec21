package orchestrator

import (
	"context"
	"io"

	"github.com/fabricd/fabricd/internal/shell/fabric"
)

// Fabric is the subset of the fabric manager API the pipeline uses.
type Fabric interface {
	PublishArchive(ctx context.Context, blueprintID string, archive io.Reader) error
	DeleteBlueprint(ctx context.Context, blueprintID string) error
	CreateDeployment(ctx context.Context, deploymentID, blueprintID string, inputs map[string]string) error
	DeleteDeployment(ctx context.Context, deploymentID string) error
	GetDeployment(ctx context.Context, deploymentID string) (*fabric.Deployment, error)
	GetDeploymentOutputs(ctx context.Context, deploymentID string) (*fabric.DeploymentOutputs, error)
	ListNodeInstances(ctx context.Context, deploymentID string) ([]fabric.NodeInstance, error)
	ListExecutions(ctx context.Context, deploymentID, workflowID string) ([]fabric.Execution, error)
	GetExecution(ctx context.Context, executionID string) (*fabric.Execution, error)
	StartExecution(ctx context.Context, deploymentID, workflowID string) (*fabric.Execution, error)
}

// Archives stores uploaded blueprint archives.
type Archives interface {
	Put(blueprintID string, r io.Reader) error
	Open(blueprintID string) (io.ReadCloser, error)
	Delete(blueprintID string) error
	DeclaredInputs(blueprintID string) ([]string, error)
}

// Registrar announces deployed applications to the monitoring service.
type Registrar interface {
	RegisterApplication(ctx context.Context, address, applicationID string) error
}
