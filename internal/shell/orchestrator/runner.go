package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fabricd/fabricd/internal/core/pipeline"
	"github.com/fabricd/fabricd/internal/shell/telemetry"
)

// StepStatus is the outcome of one step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepCancelled StepStatus = "cancelled"
)

// StepResult records what happened to a step.
type StepResult struct {
	Step     pipeline.Step
	Status   StepStatus
	Err      error
	Duration time.Duration
}

// Report summarizes a pipeline run.
type Report struct {
	ContainerID string
	Steps       []StepResult
	Err         error // first step failure, nil when every step succeeded
	ReleaseErr  error
	Duration    time.Duration
}

// Failed reports whether any step failed.
func (r Report) Failed() bool {
	return r.Err != nil || r.ReleaseErr != nil
}

// Outcome is "succeeded" or "failed".
func (r Report) Outcome() string {
	if r.Failed() {
		return "failed"
	}
	return "succeeded"
}

// stepRunner executes a single step; *Executor implements it.
type stepRunner interface {
	Execute(ctx context.Context, step pipeline.Step, handle string) (string, error)
}

// Runner executes pipelines strictly in order.
type Runner struct {
	exec    stepRunner
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// NewRunner creates a chain runner over exec.
func NewRunner(exec stepRunner, metrics *telemetry.Metrics, tracer *telemetry.Tracer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = telemetry.NoopTracer()
	}
	return &Runner{
		exec:    exec,
		logger:  logger.With("component", "runner"),
		metrics: metrics,
		tracer:  tracer,
	}
}

// Run executes steps in order, passing each step's execution handle to the
// next. After the first failure the remaining work steps are cancelled. The
// release step runs exactly once, last, even when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, containerID string, steps []pipeline.Step) Report {
	start := time.Now()
	report := Report{ContainerID: containerID, Steps: make([]StepResult, 0, len(steps)+1)}

	work, release := splitRelease(containerID, steps)

	ctx, span := r.tracer.StartPipelineSpan(ctx, containerID, len(steps))
	logger := r.logger.With("container_id", containerID)
	logger.Info("pipeline started", "steps", len(steps))

	var handle string
	for i, step := range work {
		if report.Err != nil {
			report.Steps = append(report.Steps, StepResult{Step: step, Status: StepCancelled})
			r.metrics.RecordStep(string(step.Kind), string(StepCancelled), 0)
			continue
		}

		stepStart := time.Now()
		out, err := r.execute(ctx, step, handle)
		res := StepResult{Step: step, Duration: time.Since(stepStart)}
		if err != nil {
			res.Status = StepFailed
			res.Err = err
			report.Err = err
			logger.Error("pipeline step failed, cancelling remaining steps",
				"step", step.String(),
				"index", i,
				"cancelled", len(work)-i-1,
				"error", err,
			)
		} else {
			res.Status = StepSucceeded
			handle = out
		}
		report.Steps = append(report.Steps, res)
		r.metrics.RecordStep(string(step.Kind), string(res.Status), res.Duration)
	}

	relStart := time.Now()
	_, relErr := r.execute(context.WithoutCancel(ctx), release, "")
	rel := StepResult{Step: release, Status: StepSucceeded, Duration: time.Since(relStart)}
	if relErr != nil {
		rel.Status = StepFailed
		rel.Err = relErr
		report.ReleaseErr = relErr
		logger.Error("failed to release container", "error", relErr)
	}
	report.Steps = append(report.Steps, rel)
	r.metrics.RecordStep(string(release.Kind), string(rel.Status), rel.Duration)

	report.Duration = time.Since(start)
	if report.Err != nil {
		telemetry.End(span, report.Err)
	} else {
		telemetry.End(span, report.ReleaseErr)
	}
	r.metrics.RecordPipelineCompleted(report.Outcome(), report.Duration)
	logger.Info("pipeline finished", "outcome", report.Outcome(), "duration", report.Duration)
	return report
}

// execute turns a panicking step into a failure so release still runs.
func (r *Runner) execute(ctx context.Context, step pipeline.Step, handle string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &StepError{Kind: step.Kind, ContainerID: step.ContainerID, BlueprintID: step.BlueprintID, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return r.exec.Execute(ctx, step, handle)
}

// splitRelease separates the release step from the work steps. A pipeline
// without one still gets released.
func splitRelease(containerID string, steps []pipeline.Step) ([]pipeline.Step, pipeline.Step) {
	release := pipeline.Step{Kind: pipeline.KindRelease, ContainerID: containerID}
	work := make([]pipeline.Step, 0, len(steps))
	for _, s := range steps {
		if s.Kind == pipeline.KindRelease {
			release = s
			continue
		}
		work = append(work, s)
	}
	return work, release
}
