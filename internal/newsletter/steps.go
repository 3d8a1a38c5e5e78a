package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

// Step names a pipeline step. Names are persisted with checkpoints.
type Step string

// Pipeline steps in execution order.
const (
	StepCheckStatus   Step = "check-status"
	StepFetchNews     Step = "fetch-news"
	StepRenderContent Step = "render-content"
	StepSendEmail     Step = "send-email"
	StepScheduleNext  Step = "schedule-next"
)

// StepError is a failure inside a named step.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsRetryable delegates to the wrapped error. Unknown errors are retryable.
func (e *StepError) IsRetryable() bool {
	return isRetryable(e.Err)
}

// runStep returns the checkpointed result of step when the run already
// completed it, otherwise runs fn and saves its JSON result.
func runStep[T any](ctx context.Context, store CheckpointStore, runID string, step Step, fn func(context.Context) (T, error)) (T, error) {
	logger := ctxlog.FromContext(ctx).With("step", step)

	var result T
	raw, found, err := store.LoadStep(ctx, runID, step)
	if err != nil {
		return result, &StepError{Step: step, Err: fmt.Errorf("load checkpoint: %w", err)}
	}
	if found {
		if err := json.Unmarshal(raw, &result); err == nil {
			logger.Debug("step replayed from checkpoint")
			recordStep(step, "replayed")
			return result, nil
		}
		logger.Warn("unreadable checkpoint, running step again", "error", err)
	}

	start := time.Now()
	result, err = fn(ctx)
	recordStepDuration(step, time.Since(start))
	if err != nil {
		recordStep(step, "failed")
		return result, &StepError{Step: step, Err: err}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return result, &StepError{Step: step, Err: fmt.Errorf("encode checkpoint: %w", err)}
	}
	if err := store.SaveStep(ctx, runID, step, data); err != nil {
		return result, &StepError{Step: step, Err: fmt.Errorf("save checkpoint: %w", err)}
	}

	recordStep(step, "completed")
	logger.Debug("step completed", "duration", time.Since(start))
	return result, nil
}

// isRetryable reports whether err, or anything it wraps, asks to be retried.
// Errors that do not say are retried.
func isRetryable(err error) bool {
	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		if se, ok := r.(*StepError); ok {
			return isRetryable(se.Err)
		}
		return r.IsRetryable()
	}
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
