package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/fabricd/fabricd/internal/shell/fabric"
)

// =============================================================================
// Retries
// =============================================================================

// retry runs fn until it succeeds, fails permanently or has been retried
// MaxRetries times. Only transient fabric errors are retried, each after a
// fixed delay.
func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !fabric.IsTransient(err) || attempt > e.config.MaxRetries || ctx.Err() != nil {
			break
		}

		e.logger.Warn("fabric call failed, retrying",
			"operation", op,
			"attempt", attempt,
			"max_retries", e.config.MaxRetries,
			"error", err,
		)
		e.metrics.RecordRemoteRetry(op)

		if sleepErr := sleep(ctx, e.config.RetryDelay); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// =============================================================================
// Execution Polling
// =============================================================================

// waitForExecution polls an execution until it reaches a terminal status.
// With allowMissing a 404 counts as success: short-lived executions such as
// environment deletion may be gone before the first poll.
func (e *Executor) waitForExecution(ctx context.Context, executionID string, allowMissing bool) error {
	if executionID == "" {
		if allowMissing {
			return nil
		}
		return ErrNoExecution
	}

	logger := e.logger.With("execution_id", executionID)
	for {
		var exec *fabric.Execution
		err := e.retry(ctx, "get_execution", func(ctx context.Context) error {
			var err error
			exec, err = e.fabric.GetExecution(ctx, executionID)
			return err
		})
		if err != nil {
			if allowMissing && fabric.IsNotFound(err) {
				logger.Debug("execution already gone")
				return nil
			}
			return err
		}

		if exec.Status.IsTerminal() {
			if exec.Status.Succeeded() {
				logger.Debug("execution terminated", "workflow", exec.WorkflowID)
				return nil
			}
			if exec.Error != "" {
				return fmt.Errorf("%w: %s %s: %s", ErrExecutionFailed, exec.WorkflowID, exec.Status, exec.Error)
			}
			return fmt.Errorf("%w: %s %s", ErrExecutionFailed, exec.WorkflowID, exec.Status)
		}

		logger.Debug("execution in progress", "status", exec.Status)
		if err := sleep(ctx, e.config.PollInterval); err != nil {
			return err
		}
	}
}
