package newsletter

import (
	"context"
	"encoding/json"
	"time"
)

// CheckpointStore memoizes completed steps per run.
type CheckpointStore interface {
	// LoadStep returns the saved result, and false when the step has not completed.
	LoadStep(ctx context.Context, runID string, step Step) (json.RawMessage, bool, error)
	SaveStep(ctx context.Context, runID string, step Step, result json.RawMessage) error
	// PruneCheckpoints deletes checkpoints of runs finished before the cutoff.
	PruneCheckpoints(ctx context.Context, before time.Time) (int64, error)
}

// Outcome is the final state of a run.
type Outcome string

// Run outcomes.
const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// RunRecord is one audit row per finished run.
type RunRecord struct {
	RunID        string
	UserID       string
	Outcome      Outcome
	Reason       string
	ArticleCount int
	IsTest       bool
	MessageID    string
	FinishedAt   time.Time
}

// RunRecorder writes the run audit log.
type RunRecorder interface {
	RecordRun(ctx context.Context, record RunRecord) error
	RecordError(ctx context.Context, runID, userID string, step Step, runErr error) error
}
