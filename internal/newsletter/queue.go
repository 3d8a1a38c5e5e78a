package newsletter

import (
	"context"
	"time"

	"github.com/bissquit/sendly/internal/domain"
)

// Kind separates the regular cadence chain from one-off sends.
type Kind string

// Queue item kinds. At most one pending item exists per user and kind.
const (
	KindRegular   Kind = "regular"
	KindImmediate Kind = "immediate"
)

// QueueStatus represents the status of a queue item.
type QueueStatus string

// Queue statuses.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusRetrying   QueueStatus = "retrying"
	QueueStatusDone       QueueStatus = "done"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueueItem is a schedule event waiting for, or done with, its run.
type QueueItem struct {
	ID            string
	RunID         string
	UserID        string
	Kind          Kind
	Event         domain.ScheduleEvent
	ScheduledFor  time.Time
	Status        QueueStatus
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    *time.Time
}

// EnqueueRequest describes a schedule event to store.
type EnqueueRequest struct {
	Kind         Kind
	Event        domain.ScheduleEvent
	ScheduledFor time.Time
	MaxAttempts  int
	// KeepSchedule refreshes the payload of an existing pending item
	// without moving its scheduled time.
	KeepSchedule bool
}

// QueueStats contains queue size by status.
type QueueStats struct {
	Pending    int64
	Processing int64
	Retrying   int64
	Done       int64
	Failed     int64
}

// Queue is the durable schedule queue.
type Queue interface {
	// Enqueue inserts the event, or replaces the pending item of the same user and kind.
	Enqueue(ctx context.Context, req EnqueueRequest) (*QueueItem, error)
	// FetchDue claims due items, moving them to processing.
	FetchDue(ctx context.Context, limit int) ([]*QueueItem, error)
	MarkDone(ctx context.Context, id string) error
	MarkForRetry(ctx context.Context, id string, err error, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, err error) error
	// RecoverStuck returns items processing for longer than olderThan to retrying.
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	GetStats(ctx context.Context) (*QueueStats, error)
	// ListUnscheduled returns active subscribers with categories whose regular
	// chain has no pending, processing or retrying item.
	ListUnscheduled(ctx context.Context, limit int) ([]*domain.Preference, error)
}
