package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/fabricd/fabricd/internal/core/pipeline"
	"github.com/fabricd/fabricd/internal/shell/fabric"
	"github.com/fabricd/fabricd/internal/shell/store"
	"github.com/fabricd/fabricd/internal/shell/telemetry"
)

// =============================================================================
// Service
// =============================================================================

// Deps groups the collaborators of a Service.
type Deps struct {
	Store     store.Store
	Fabric    Fabric
	Archives  Archives
	Registrar Registrar
	Metrics   *telemetry.Metrics
	Tracer    *telemetry.Tracer
	Logger    *slog.Logger
}

// Service is the entry point for everything that changes containers.
type Service struct {
	store    store.Store
	fabric   Fabric
	archives Archives
	executor *Executor
	runner   *Runner
	pool     *Pool
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewService wires an executor, a runner and a worker pool. Call Start before
// syncing containers.
func NewService(deps Deps, config Config) *Service {
	config = config.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exec := NewExecutor(ExecutorDeps{
		Store:     deps.Store,
		Fabric:    deps.Fabric,
		Archives:  deps.Archives,
		Registrar: deps.Registrar,
		Metrics:   deps.Metrics,
		Tracer:    deps.Tracer,
		Logger:    logger,
	}, config)

	return &Service{
		store:    deps.Store,
		fabric:   deps.Fabric,
		archives: deps.Archives,
		executor: exec,
		runner:   NewRunner(exec, deps.Metrics, deps.Tracer, logger),
		pool:     NewPool(config.Workers, config.QueueSize, logger),
		metrics:  deps.Metrics,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Start launches the pipeline workers.
func (s *Service) Start() {
	s.pool.Start()
}

// Stop cancels in-flight pipelines and waits until each has released its
// container.
func (s *Service) Stop() {
	s.pool.Stop()
}

// =============================================================================
// Sync
// =============================================================================

// SyncOptions tunes a sync request.
type SyncOptions struct {
	// RegisterApp announces the deployment to the application monitor.
	RegisterApp bool
}

// SyncResult tells the caller whether a pipeline was scheduled.
type SyncResult struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// SyncContainer brings a container to the desired blueprint: the current one
// is torn down from wherever it stopped and the desired one deployed. An
// empty blueprintID undeploys, and the active id redeploys. It never blocks
// on the pipeline. A busy container yields an error matching
// domain.ErrContainerBusy.
func (s *Service) SyncContainer(ctx context.Context, containerID, blueprintID string, opts SyncOptions) (SyncResult, error) {
	c, err := s.store.GetContainer(ctx, containerID)
	if err != nil {
		return SyncResult{}, err
	}
	if blueprintID != "" {
		if _, err := s.store.GetBlueprint(ctx, blueprintID); err != nil {
			return SyncResult{}, err
		}
	}

	busy := func() (SyncResult, error) {
		s.metrics.RecordSyncRejected()
		msg := fmt.Sprintf("Container '%s' is busy.", containerID)
		return SyncResult{Accepted: false, Message: msg}, fmt.Errorf("%w: %s", domain.ErrContainerBusy, containerID)
	}
	if c.Busy {
		return busy()
	}

	stale := c.QueuedBlueprint
	c.Busy = true
	c.QueuedBlueprint = blueprintID
	c.Touch()
	if err := s.store.SaveContainer(ctx, c); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return busy()
		}
		return SyncResult{}, err
	}

	// The lock is ours from here on. Every exit below either hands it to a
	// pipeline or gives it back.
	logger := s.logger.With("container_id", containerID, "blueprint_id", blueprintID)

	// restore is the queued blueprint handed back if no pipeline takes over.
	restore := stale
	if stale != "" && stale != blueprintID && stale != c.ActiveBlueprint {
		s.discardStale(ctx, stale, logger)
		restore = ""
	}

	steps, err := s.plan(ctx, c, opts)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		s.abort(ctx, containerID, restore, logger)
		return SyncResult{}, err
	}

	kind := pipelineKind(c)
	err = s.pool.Submit(func(jobCtx context.Context) {
		s.runner.Run(jobCtx, containerID, steps)
	})
	if err != nil {
		logger.Error("failed to submit pipeline", "error", err)
		s.abort(ctx, containerID, restore, logger)
		return SyncResult{}, err
	}

	s.metrics.RecordPipelineSubmitted(kind)
	logger.Info("pipeline submitted", "kind", kind, "steps", pipeline.Kinds(steps))
	return SyncResult{Accepted: true, Message: "All OK"}, nil
}

func (s *Service) plan(ctx context.Context, c *domain.Container, opts SyncOptions) ([]pipeline.Step, error) {
	var active *domain.Blueprint
	if c.ActiveBlueprint != "" {
		bp, err := s.store.GetBlueprint(ctx, c.ActiveBlueprint)
		if err != nil {
			return nil, err
		}
		active = bp
	}
	return pipeline.Build(pipeline.Request{
		Container:   *c,
		Active:      active,
		RegisterApp: opts.RegisterApp,
	})
}

func pipelineKind(c *domain.Container) string {
	switch {
	case c.QueuedBlueprint != "":
		return "deploy"
	case c.ActiveBlueprint != "":
		return "undeploy"
	default:
		return "noop"
	}
}

// abort undoes a lock that no pipeline took over: the container gets its
// previous queued blueprint back and is released in one write.
func (s *Service) abort(ctx context.Context, containerID, queued string, logger *slog.Logger) {
	_, err := s.executor.updateContainer(context.WithoutCancel(ctx), containerID, func(c *domain.Container) {
		c.QueuedBlueprint = queued
		c.Busy = false
	})
	if err != nil {
		logger.Error("failed to release container", "error", err)
	}
}

// discardStale removes a queued blueprint that never got promoted. Failures
// are logged; the record is unreferenced either way.
func (s *Service) discardStale(ctx context.Context, blueprintID string, logger *slog.Logger) {
	logger = logger.With("stale_blueprint_id", blueprintID)
	if err := s.DiscardBlueprint(ctx, blueprintID); err != nil && !store.IsNotFound(err) {
		logger.Warn("failed to discard stale queued blueprint", "error", err)
		return
	}
	logger.Info("discarded stale queued blueprint")
}

// Redeploy runs the full undeploy and deploy sequence for the active blueprint.
func (s *Service) Redeploy(ctx context.Context, containerID string, opts SyncOptions) (SyncResult, error) {
	c, err := s.store.GetContainer(ctx, containerID)
	if err != nil {
		return SyncResult{}, err
	}
	if c.ActiveBlueprint == "" {
		return SyncResult{}, ErrNoActiveBlueprint
	}
	return s.SyncContainer(ctx, containerID, c.ActiveBlueprint, opts)
}

// Undeploy tears down the active blueprint and leaves the container empty.
func (s *Service) Undeploy(ctx context.Context, containerID string) (SyncResult, error) {
	return s.SyncContainer(ctx, containerID, "", SyncOptions{})
}

// =============================================================================
// Containers
// =============================================================================

// CreateContainer creates an empty container.
func (s *Service) CreateContainer(ctx context.Context, description string) (*domain.Container, error) {
	c, err := domain.NewContainer(description)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateContainer(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("container created", "container_id", c.ID)
	return c, nil
}

func (s *Service) GetContainer(ctx context.Context, id string) (*domain.Container, error) {
	return s.store.GetContainer(ctx, id)
}

func (s *Service) ListContainers(ctx context.Context, opts store.ListOptions) ([]domain.Container, error) {
	return s.store.ListContainers(ctx, opts)
}

// DeleteContainer removes an idle container without an active blueprint.
func (s *Service) DeleteContainer(ctx context.Context, id string) error {
	c, err := s.store.GetContainer(ctx, id)
	if err != nil {
		return err
	}
	if err := c.CanDelete(); err != nil {
		return err
	}
	if err := s.store.DeleteContainer(ctx, id, c.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("%w: %s", domain.ErrContainerBusy, id)
		}
		return err
	}
	if c.QueuedBlueprint != "" {
		s.discardStale(ctx, c.QueuedBlueprint, s.logger.With("container_id", id))
	}
	s.logger.Info("container deleted", "container_id", id)
	return nil
}

// Node is a deployed machine reporting an address.
type Node struct {
	ID     string `json:"id"`
	NodeID string `json:"node_id"`
	IP     string `json:"ip"`
}

// ContainerNodes lists the addressable node instances of the active
// deployment. An empty container has none.
func (s *Service) ContainerNodes(ctx context.Context, id string) ([]Node, error) {
	c, err := s.store.GetContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	nodes := []Node{}
	if c.ActiveBlueprint == "" {
		return nodes, nil
	}

	instances, err := s.fabric.ListNodeInstances(ctx, c.ActiveBlueprint)
	if err != nil {
		if fabric.IsNotFound(err) {
			return nodes, nil
		}
		return nil, err
	}
	for _, inst := range instances {
		if ip := inst.IP(); ip != "" {
			nodes = append(nodes, Node{ID: inst.ID, NodeID: inst.NodeID, IP: ip})
		}
	}
	return nodes, nil
}

// =============================================================================
// Blueprints
// =============================================================================

// RegisterBlueprint stores an uploaded archive and creates its blueprint in
// the present phase.
func (s *Service) RegisterBlueprint(ctx context.Context, archive io.Reader) (*domain.Blueprint, error) {
	bp := domain.NewBlueprint()
	if err := s.archives.Put(bp.ID, archive); err != nil {
		return nil, err
	}
	if err := s.store.CreateBlueprint(ctx, bp); err != nil {
		if delErr := s.archives.Delete(bp.ID); delErr != nil {
			s.logger.Warn("failed to remove orphaned archive", "blueprint_id", bp.ID, "error", delErr)
		}
		return nil, err
	}
	return bp, nil
}

// DiscardBlueprint deletes a blueprint that no container references. Remote
// remnants are removed first when the blueprint ever left the present phase.
func (s *Service) DiscardBlueprint(ctx context.Context, id string) error {
	bp, err := s.store.GetBlueprint(ctx, id)
	if err != nil {
		return err
	}
	if bp.HasRemoteFootprint() {
		if err := s.fabric.DeleteDeployment(ctx, id); err != nil && !fabric.IsNotFound(err) {
			return err
		}
		if err := s.fabric.DeleteBlueprint(ctx, id); err != nil && !fabric.IsNotFound(err) {
			return err
		}
	}
	if err := s.store.DeleteBlueprint(ctx, id); err != nil {
		return err
	}
	return s.archives.Delete(id)
}

func (s *Service) GetBlueprint(ctx context.Context, id string) (*domain.Blueprint, error) {
	return s.store.GetBlueprint(ctx, id)
}

func (s *Service) ListBlueprints(ctx context.Context, opts store.ListOptions) ([]domain.Blueprint, error) {
	return s.store.ListBlueprints(ctx, opts)
}

// =============================================================================
// Inputs
// =============================================================================

func (s *Service) CreateInput(ctx context.Context, input domain.Input) (*domain.Input, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateInput(ctx, &input); err != nil {
		return nil, err
	}
	return &input, nil
}

func (s *Service) GetInput(ctx context.Context, key string) (*domain.Input, error) {
	return s.store.GetInput(ctx, key)
}

// UpdateInput changes value and description; the key is immutable.
func (s *Service) UpdateInput(ctx context.Context, key string, value, description *string) (*domain.Input, error) {
	input, err := s.store.GetInput(ctx, key)
	if err != nil {
		return nil, err
	}
	if value != nil {
		input.Value = *value
	}
	if description != nil {
		input.Description = *description
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateInput(ctx, input); err != nil {
		return nil, err
	}
	return input, nil
}

func (s *Service) DeleteInput(ctx context.Context, key string) error {
	return s.store.DeleteInput(ctx, key)
}

func (s *Service) ListInputs(ctx context.Context) ([]domain.Input, error) {
	return s.store.ListInputs(ctx)
}
