package orchestrator

import (
	"context"
	"fmt"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/fabricd/fabricd/internal/core/pipeline"
	"github.com/fabricd/fabricd/internal/shell/fabric"
	"github.com/fabricd/fabricd/internal/shell/store"
)

// The blueprint id doubles as the deployment id on the fabric manager.

// =============================================================================
// Deploy Steps
// =============================================================================

func uploadArchive(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, _ string) (string, error) {
	return "", e.retry(ctx, "publish_archive", func(ctx context.Context) error {
		archive, err := e.archives.Open(bp.ID)
		if err != nil {
			return err
		}
		defer archive.Close()
		return e.fabric.PublishArchive(ctx, bp.ID, archive)
	})
}

func createDeployment(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, _ string) (string, error) {
	declared, err := e.archives.DeclaredInputs(bp.ID)
	if err != nil {
		return "", fmt.Errorf("read declared inputs: %w", err)
	}
	globals, err := e.store.ListInputs(ctx)
	if err != nil {
		return "", err
	}
	inputs := domain.SelectInputs(declared, globals)

	err = e.retry(ctx, "create_deployment", func(ctx context.Context) error {
		return e.fabric.CreateDeployment(ctx, bp.ID, bp.ID, inputs)
	})
	if err != nil {
		return "", err
	}

	// The deployment exists from here on; a failure below must resume with
	// deleting it.
	bp.SetState(domain.Succeeded(domain.PhasePreparedDeployment))
	if err := e.store.UpdateBlueprint(ctx, bp); err != nil {
		return "", err
	}

	var execs []fabric.Execution
	err = e.retry(ctx, "list_executions", func(ctx context.Context) error {
		var err error
		execs, err = e.fabric.ListExecutions(ctx, bp.ID, fabric.WorkflowCreateDeploymentEnvironment)
		return err
	})
	if err != nil {
		return "", err
	}
	switch len(execs) {
	case 0:
		return "", fmt.Errorf("deployment creation execution did not start")
	case 1:
		return execs[0].ID, nil
	default:
		return "", fmt.Errorf("more than one deployment creation execution started (%d)", len(execs))
	}
}

// registerApp never fails the pipeline; problems are kept as error records.
func registerApp(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, handle string) (string, error) {
	address, err := e.store.GetInput(ctx, domain.InputMonitorAddress)
	if err != nil {
		if store.IsNotFound(err) {
			e.noteError(ctx, bp, fmt.Sprintf("Missing input: '%s'. Cannot register application with monitor.", domain.InputMonitorAddress))
			return handle, nil
		}
		return "", err
	}

	if err := e.registrar.RegisterApplication(ctx, address.Value, bp.ID); err != nil {
		e.noteError(ctx, bp, err.Error())
	}
	return handle, nil
}

func waitStep(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, handle string) (string, error) {
	return "", e.waitForExecution(ctx, handle, false)
}

func install(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, _ string) (string, error) {
	var exec *fabric.Execution
	err := e.retry(ctx, "start_execution", func(ctx context.Context) error {
		var err error
		exec, err = e.fabric.StartExecution(ctx, bp.ID, fabric.WorkflowInstall)
		return err
	})
	if err != nil {
		return "", err
	}
	return exec.ID, nil
}

func fetchOutputs(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, _ string) (string, error) {
	var (
		dep    *fabric.Deployment
		values *fabric.DeploymentOutputs
	)
	err := e.retry(ctx, "get_deployment", func(ctx context.Context) error {
		var err error
		dep, err = e.fabric.GetDeployment(ctx, bp.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	err = e.retry(ctx, "get_deployment_outputs", func(ctx context.Context) error {
		var err error
		values, err = e.fabric.GetDeploymentOutputs(ctx, bp.ID)
		return err
	})
	if err != nil {
		return "", err
	}

	outputs := make(map[string]domain.Output, len(values.Outputs))
	for name, value := range values.Outputs {
		outputs[name] = domain.Output{
			Value:       value,
			Description: dep.Outputs[name].Description,
		}
	}
	bp.Outputs = outputs
	return "", nil
}

// =============================================================================
// Undeploy Steps
// =============================================================================

func uninstall(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, _ string) (string, error) {
	var exec *fabric.Execution
	err := e.retry(ctx, "start_execution", func(ctx context.Context) error {
		var err error
		exec, err = e.fabric.StartExecution(ctx, bp.ID, fabric.WorkflowUninstall)
		return err
	})
	if err != nil {
		return "", err
	}
	return "", e.waitForExecution(ctx, exec.ID, false)
}

func deleteDeployment(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, _ string) (string, error) {
	err := e.retry(ctx, "delete_deployment", func(ctx context.Context) error {
		return e.fabric.DeleteDeployment(ctx, bp.ID)
	})
	if err != nil && !fabric.IsNotFound(err) {
		return "", err
	}

	var execs []fabric.Execution
	err = e.retry(ctx, "list_executions", func(ctx context.Context) error {
		var err error
		execs, err = e.fabric.ListExecutions(ctx, bp.ID, fabric.WorkflowDeleteDeploymentEnvironment)
		return err
	})
	if err != nil && !fabric.IsNotFound(err) {
		return "", err
	}

	switch len(execs) {
	case 0:
		return "", e.waitForExecution(ctx, "", true)
	case 1:
		return "", e.waitForExecution(ctx, execs[0].ID, true)
	default:
		return "", fmt.Errorf("more than one deployment deletion execution started (%d)", len(execs))
	}
}

func deleteFromRemote(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, _ string) (string, error) {
	err := e.retry(ctx, "delete_blueprint", func(ctx context.Context) error {
		return e.fabric.DeleteBlueprint(ctx, bp.ID)
	})
	if err != nil && !fabric.IsNotFound(err) {
		return "", err
	}
	return "", nil
}

// =============================================================================
// Container Steps
// =============================================================================

// switchBlueprints promotes the queued blueprint and drops the retired one,
// whose remote footprint the preceding undeploy steps removed.
func switchBlueprints(ctx context.Context, e *Executor, step pipeline.Step, _ *domain.Blueprint, _ string) (string, error) {
	var retired string
	c, err := e.updateContainer(ctx, step.ContainerID, func(c *domain.Container) {
		retired = c.ActiveBlueprint
		c.ActiveBlueprint = c.QueuedBlueprint
		c.QueuedBlueprint = ""
	})
	if err != nil {
		return "", err
	}

	if retired == "" || retired == c.ActiveBlueprint {
		return "", nil
	}
	if err := e.store.DeleteBlueprint(ctx, retired); err != nil && !store.IsNotFound(err) {
		return "", err
	}
	if err := e.archives.Delete(retired); err != nil {
		e.logger.Warn("failed to delete retired archive", "blueprint_id", retired, "error", err)
	}
	return "", nil
}

func releaseContainer(ctx context.Context, e *Executor, step pipeline.Step, _ *domain.Blueprint, _ string) (string, error) {
	_, err := e.updateContainer(context.WithoutCancel(ctx), step.ContainerID, func(c *domain.Container) {
		c.Busy = false
	})
	return "", err
}
