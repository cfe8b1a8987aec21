package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/fabricd/fabricd/internal/shell/archive"
	"github.com/fabricd/fabricd/internal/shell/fabric"
	"github.com/fabricd/fabricd/internal/shell/store"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fake Fabric Manager
// =============================================================================

type fakeExecution struct {
	exec  fabric.Execution
	polls int // remaining non-terminal polls
	final fabric.ExecutionStatus
}

// fakeFabric is an in-memory fabric manager. Errors queued in failures are
// returned, in order, by the named operation before it behaves normally.
type fakeFabric struct {
	mu          sync.Mutex
	calls       []string
	failures    map[string][]error
	finalStatus map[string]fabric.ExecutionStatus // by workflow id
	polls       int
	blueprints  map[string]bool
	deployments map[string]bool
	executions  map[string]*fakeExecution
	nextID      int
	nodes       []fabric.NodeInstance

	// publishGate, when set, blocks PublishArchive until closed.
	publishGate chan struct{}
	// polled, when set, receives every polled execution id.
	polled chan string
}

func newFakeFabric() *fakeFabric {
	return &fakeFabric{
		failures:    map[string][]error{},
		finalStatus: map[string]fabric.ExecutionStatus{},
		blueprints:  map[string]bool{},
		deployments: map[string]bool{},
		executions:  map[string]*fakeExecution{},
	}
}

func (f *fakeFabric) fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeFabric) record(op string) error {
	f.calls = append(f.calls, op)
	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *fakeFabric) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFabric) count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeFabric) startExecution(deploymentID, workflowID string) *fabric.Execution {
	f.nextID++
	final := f.finalStatus[workflowID]
	if final == "" {
		final = fabric.ExecutionTerminated
	}
	fe := &fakeExecution{
		exec: fabric.Execution{
			ID:           fmt.Sprintf("exec-%d", f.nextID),
			WorkflowID:   workflowID,
			DeploymentID: deploymentID,
			Status:       fabric.ExecutionPending,
		},
		polls: f.polls,
		final: final,
	}
	f.executions[fe.exec.ID] = fe
	e := fe.exec
	return &e
}

func notFound(what string) error {
	return &fabric.APIError{StatusCode: http.StatusNotFound, Message: what + " not found"}
}

func (f *fakeFabric) PublishArchive(ctx context.Context, blueprintID string, r io.Reader) error {
	if f.publishGate != nil {
		select {
		case <-f.publishGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if _, err := io.ReadAll(r); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("publish_archive"); err != nil {
		return err
	}
	f.blueprints[blueprintID] = true
	return nil
}

func (f *fakeFabric) DeleteBlueprint(ctx context.Context, blueprintID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_blueprint"); err != nil {
		return err
	}
	if !f.blueprints[blueprintID] {
		return notFound("blueprint")
	}
	delete(f.blueprints, blueprintID)
	return nil
}

func (f *fakeFabric) CreateDeployment(ctx context.Context, deploymentID, blueprintID string, inputs map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create_deployment"); err != nil {
		return err
	}
	f.deployments[deploymentID] = true
	f.startExecution(deploymentID, fabric.WorkflowCreateDeploymentEnvironment)
	return nil
}

func (f *fakeFabric) DeleteDeployment(ctx context.Context, deploymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete_deployment"); err != nil {
		return err
	}
	if !f.deployments[deploymentID] {
		return notFound("deployment")
	}
	delete(f.deployments, deploymentID)
	f.startExecution(deploymentID, fabric.WorkflowDeleteDeploymentEnvironment)
	return nil
}

func (f *fakeFabric) GetDeployment(ctx context.Context, deploymentID string) (*fabric.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_deployment"); err != nil {
		return nil, err
	}
	return &fabric.Deployment{
		ID:      deploymentID,
		Outputs: map[string]fabric.OutputSpec{"endpoint": {Description: "public endpoint"}},
	}, nil
}

func (f *fakeFabric) GetDeploymentOutputs(ctx context.Context, deploymentID string) (*fabric.DeploymentOutputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get_deployment_outputs"); err != nil {
		return nil, err
	}
	return &fabric.DeploymentOutputs{
		DeploymentID: deploymentID,
		Outputs:      map[string]any{"endpoint": "http://10.0.0.5"},
	}, nil
}

func (f *fakeFabric) ListNodeInstances(ctx context.Context, deploymentID string) ([]fabric.NodeInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_node_instances"); err != nil {
		return nil, err
	}
	return f.nodes, nil
}

func (f *fakeFabric) ListExecutions(ctx context.Context, deploymentID, workflowID string) ([]fabric.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list_executions:" + workflowID); err != nil {
		return nil, err
	}
	var out []fabric.Execution
	for i := 1; i <= f.nextID; i++ {
		fe, ok := f.executions[fmt.Sprintf("exec-%d", i)]
		if ok && fe.exec.DeploymentID == deploymentID && fe.exec.WorkflowID == workflowID {
			out = append(out, fe.exec)
		}
	}
	return out, nil
}

func (f *fakeFabric) GetExecution(ctx context.Context, executionID string) (*fabric.Execution, error) {
	f.mu.Lock()
	err := f.record("get_execution")
	fe, ok := f.executions[executionID]
	var e fabric.Execution
	if err == nil && ok {
		if fe.polls > 0 {
			fe.polls--
			fe.exec.Status = fabric.ExecutionStarted
		} else {
			fe.exec.Status = fe.final
			if fe.final == fabric.ExecutionFailed {
				fe.exec.Error = "workflow failed"
			}
		}
		e = fe.exec
	}
	polled := f.polled
	f.mu.Unlock()

	if polled != nil {
		select {
		case polled <- executionID:
		default:
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("execution")
	}
	return &e, nil
}

func (f *fakeFabric) StartExecution(ctx context.Context, deploymentID, workflowID string) (*fabric.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("start_execution:" + workflowID); err != nil {
		return nil, err
	}
	if !f.deployments[deploymentID] {
		return nil, notFound("deployment")
	}
	return f.startExecution(deploymentID, workflowID), nil
}

// =============================================================================
// Fake Registrar
// =============================================================================

type fakeRegistrar struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *fakeRegistrar) RegisterApplication(ctx context.Context, address, applicationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, address+"/"+applicationID)
	return r.err
}

// =============================================================================
// Test Helpers
// =============================================================================

const testBlueprint = "inputs:\n  region: {}\n  flavor: {}\nnode_templates: {}\n"

type testEnv struct {
	svc       *Service
	store     store.Store
	fabric    *fakeFabric
	archives  *archive.FileStore
	registrar *fakeRegistrar
}

func testConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		MaxRetries:   3,
		RetryDelay:   0,
		Workers:      2,
		QueueSize:    8,
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	archives, err := archive.NewFileStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		store:     st,
		fabric:    newFakeFabric(),
		archives:  archives,
		registrar: &fakeRegistrar{},
	}
	env.svc = NewService(Deps{
		Store:     st,
		Fabric:    env.fabric,
		Archives:  archives,
		Registrar: env.registrar,
	}, testConfig())
	env.svc.Start()

	t.Cleanup(func() {
		env.svc.Stop()
		st.Close()
	})
	return env
}

func (env *testEnv) container(t *testing.T) *domain.Container {
	t.Helper()
	c, err := env.svc.CreateContainer(context.Background(), "test slot")
	require.NoError(t, err)
	return c
}

func (env *testEnv) blueprint(t *testing.T) *domain.Blueprint {
	t.Helper()
	bp, err := env.svc.RegisterBlueprint(context.Background(), strings.NewReader(testBlueprint))
	require.NoError(t, err)
	return bp
}

// blueprintIn creates a blueprint whose remote footprint matches state.
func (env *testEnv) blueprintIn(t *testing.T, state domain.State) *domain.Blueprint {
	t.Helper()
	bp := env.blueprint(t)
	bp.SetState(state)
	require.NoError(t, env.store.UpdateBlueprint(context.Background(), bp))

	env.fabric.mu.Lock()
	defer env.fabric.mu.Unlock()
	idx := map[domain.Phase]int{
		domain.PhaseUploaded:           1,
		domain.PhasePreparedDeployment: 2,
		domain.PhaseDeployed:           2,
		domain.PhaseInstalling:         2,
		domain.PhaseUninstalled:        2,
		domain.PhaseDeletingDeployment: 2,
		domain.PhaseDeletedDeployment:  1,
	}[state.Phase]
	if idx >= 1 {
		env.fabric.blueprints[bp.ID] = true
	}
	if idx >= 2 {
		env.fabric.deployments[bp.ID] = true
	}
	return bp
}

func (env *testEnv) setActive(t *testing.T, c *domain.Container, blueprintID string) {
	t.Helper()
	c.ActiveBlueprint = blueprintID
	require.NoError(t, env.store.SaveContainer(context.Background(), c))
}

func (env *testEnv) waitIdle(t *testing.T, containerID string) *domain.Container {
	t.Helper()
	var c *domain.Container
	require.Eventually(t, func() bool {
		var err error
		c, err = env.store.GetContainer(context.Background(), containerID)
		require.NoError(t, err)
		return !c.Busy
	}, 5*time.Second, 5*time.Millisecond)
	return c
}

func (env *testEnv) sync(t *testing.T, containerID, blueprintID string, opts SyncOptions) *domain.Container {
	t.Helper()
	res, err := env.svc.SyncContainer(context.Background(), containerID, blueprintID, opts)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	return env.waitIdle(t, containerID)
}

func (env *testEnv) getBlueprint(t *testing.T, id string) *domain.Blueprint {
	t.Helper()
	bp, err := env.store.GetBlueprint(context.Background(), id)
	require.NoError(t, err)
	return bp
}
