package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/fabricd/fabricd/internal/core/pipeline"
	"github.com/fabricd/fabricd/internal/shell/store"
	"github.com/fabricd/fabricd/internal/shell/telemetry"
)

// =============================================================================
// Step Table
// =============================================================================

// handler performs the remote work of a step. handle is the execution id
// produced by the previous step; the returned id is passed to the next one.
type handler func(ctx context.Context, e *Executor, step pipeline.Step, bp *domain.Blueprint, handle string) (string, error)

// stepDef declares how a step moves its blueprint. A zero entry or complete
// phase leaves the state untouched at that point.
type stepDef struct {
	entry     domain.Phase
	complete  domain.Phase
	blueprint bool
	run       handler
}

var stepDefs = map[pipeline.Kind]stepDef{
	pipeline.KindUploadArchive: {
		entry: domain.PhaseUploading, complete: domain.PhaseUploaded,
		blueprint: true, run: uploadArchive,
	},
	pipeline.KindCreateDeployment: {
		entry: domain.PhasePreparingDeployment, complete: domain.PhasePreparedDeployment,
		blueprint: true, run: createDeployment,
	},
	pipeline.KindRegisterApp: {
		blueprint: true, run: registerApp,
	},
	pipeline.KindWait: {
		blueprint: true, run: waitStep,
	},
	pipeline.KindInstall: {
		entry:     domain.PhaseInstalling,
		blueprint: true, run: install,
	},
	pipeline.KindFetchOutputs: {
		entry: domain.PhaseFetchingOutputs, complete: domain.PhaseDeployed,
		blueprint: true, run: fetchOutputs,
	},
	pipeline.KindUninstall: {
		entry: domain.PhaseUninstalling, complete: domain.PhaseUninstalled,
		blueprint: true, run: uninstall,
	},
	pipeline.KindDeleteDeployment: {
		entry: domain.PhaseDeletingDeployment, complete: domain.PhaseDeletedDeployment,
		blueprint: true, run: deleteDeployment,
	},
	pipeline.KindDeleteFromRemote: {
		entry: domain.PhaseDeletingFromRemote, complete: domain.PhasePresent,
		blueprint: true, run: deleteFromRemote,
	},
	pipeline.KindSwitch: {
		run: switchBlueprints,
	},
	pipeline.KindRelease: {
		run: releaseContainer,
	},
}

// =============================================================================
// Executor
// =============================================================================

// Executor runs single pipeline steps.
type Executor struct {
	store     store.Store
	fabric    Fabric
	archives  Archives
	registrar Registrar
	config    Config
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
}

// ExecutorDeps groups the collaborators of an Executor.
type ExecutorDeps struct {
	Store     store.Store
	Fabric    Fabric
	Archives  Archives
	Registrar Registrar
	Metrics   *telemetry.Metrics
	Tracer    *telemetry.Tracer
	Logger    *slog.Logger
}

// NewExecutor creates a step executor.
func NewExecutor(deps ExecutorDeps, config Config) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer()
	}
	return &Executor{
		store:     deps.Store,
		fabric:    deps.Fabric,
		archives:  deps.Archives,
		registrar: deps.Registrar,
		config:    config.withDefaults(),
		logger:    logger.With("component", "executor"),
		metrics:   deps.Metrics,
		tracer:    tracer,
	}
}

// Execute runs one step. The blueprint moves to the step's entry phase before
// any remote call and to its completion phase afterwards. On failure the
// current phase is marked failed and an error record is appended.
func (e *Executor) Execute(ctx context.Context, step pipeline.Step, handle string) (out string, err error) {
	def, ok := stepDefs[step.Kind]
	if !ok {
		return "", &StepError{Kind: step.Kind, ContainerID: step.ContainerID, BlueprintID: step.BlueprintID, Err: ErrUnknownStep}
	}

	ctx, span := e.tracer.StartStepSpan(ctx, string(step.Kind), step.ContainerID, step.BlueprintID)
	defer func() { telemetry.End(span, err) }()

	logger := e.logger.With("step", step.String(), "container_id", step.ContainerID, "blueprint_id", step.BlueprintID)
	wrap := func(err error) error {
		return &StepError{Kind: step.Kind, ContainerID: step.ContainerID, BlueprintID: step.BlueprintID, Err: err}
	}

	if err := ctx.Err(); err != nil && step.Kind != pipeline.KindRelease {
		return "", wrap(err)
	}

	var bp *domain.Blueprint
	if def.blueprint {
		bp, err = e.store.GetBlueprint(ctx, step.BlueprintID)
		if err != nil {
			return "", wrap(err)
		}
		if def.entry != 0 {
			bp.SetState(domain.Pending(def.entry))
			if err := e.store.UpdateBlueprint(ctx, bp); err != nil {
				return "", wrap(err)
			}
		}
	}

	logger.Info("step started")
	out, runErr := def.run(ctx, e, step, bp, handle)
	if runErr != nil {
		if bp != nil {
			e.recordFailure(ctx, bp, runErr, logger)
		}
		logger.Error("step failed", "error", runErr)
		return "", wrap(runErr)
	}

	complete := def.complete
	if step.Kind == pipeline.KindWait {
		complete = step.Completes
	}
	if bp != nil && complete != 0 {
		bp.SetState(domain.Succeeded(complete))
		if err := e.store.UpdateBlueprint(ctx, bp); err != nil {
			e.recordFailure(ctx, bp, err, logger)
			return "", wrap(err)
		}
	}

	logger.Info("step succeeded")
	return out, nil
}

// recordFailure persists the failed state and the error record together.
// It runs detached from ctx so cancellation is still recorded.
func (e *Executor) recordFailure(ctx context.Context, bp *domain.Blueprint, cause error, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	rec := bp.Fail(cause.Error())
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateBlueprint(ctx, bp); err != nil {
			return err
		}
		return tx.AppendBlueprintError(ctx, rec)
	})
	if err != nil {
		logger.Error("failed to record step failure", "error", err, "cause", cause)
	}
}

// noteError appends an error record without failing the blueprint.
func (e *Executor) noteError(ctx context.Context, bp *domain.Blueprint, message string) {
	rec := bp.RecordError(message)
	if err := e.store.AppendBlueprintError(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Error("failed to record blueprint error", "blueprint_id", bp.ID, "error", err)
	}
}

// =============================================================================
// Container Updates
// =============================================================================

const maxCASAttempts = 5

// updateContainer applies mutate to a fresh copy of the container and saves it,
// re-reading and re-applying on version conflicts.
func (e *Executor) updateContainer(ctx context.Context, id string, mutate func(*domain.Container)) (*domain.Container, error) {
	for attempt := 1; ; attempt++ {
		c, err := e.store.GetContainer(ctx, id)
		if err != nil {
			return nil, err
		}
		mutate(c)
		c.Touch()
		err = e.store.SaveContainer(ctx, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt >= maxCASAttempts {
			return nil, fmt.Errorf("update container %s: %w", id, err)
		}
		if err := sleep(ctx, time.Duration(attempt)*10*time.Millisecond); err != nil {
			return nil, err
		}
	}
}
