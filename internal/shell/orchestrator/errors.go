// Package orchestrator runs container pipelines against the fabric manager.
//
// SyncContainer is the single entry point that mutates containers. It takes
// the container lock with a compare-and-swap write, plans the pipeline with
// pipeline.Build and hands it to a worker pool. The chain runner executes the
// steps in order and always finishes with the release step, which frees the
// lock whatever happened before it.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/fabricd/fabricd/internal/core/pipeline"
)

var (
	// ErrExecutionFailed is returned when a workflow execution ends in a
	// status other than terminated.
	ErrExecutionFailed = errors.New("execution did not succeed")

	// ErrNoExecution is returned when there is no execution to wait for.
	ErrNoExecution = errors.New("no execution to wait for")

	// ErrQueueFull is returned when the pool cannot accept another pipeline.
	ErrQueueFull = errors.New("pipeline queue is full")

	// ErrPoolStopped is returned when submitting to a stopped pool.
	ErrPoolStopped = errors.New("pipeline pool is stopped")

	// ErrUnknownStep is returned for a step kind without a handler.
	ErrUnknownStep = errors.New("unknown step kind")

	// ErrNoActiveBlueprint is returned when redeploying an empty container.
	ErrNoActiveBlueprint = errors.New("container has no active blueprint")
)

// StepError reports the step that failed.
type StepError struct {
	Kind        pipeline.Kind
	ContainerID string
	BlueprintID string
	Err         error
}

func (e *StepError) Error() string {
	if e.BlueprintID != "" {
		return fmt.Sprintf("step %s (container %s, blueprint %s): %v", e.Kind, e.ContainerID, e.BlueprintID, e.Err)
	}
	return fmt.Sprintf("step %s (container %s): %v", e.Kind, e.ContainerID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
