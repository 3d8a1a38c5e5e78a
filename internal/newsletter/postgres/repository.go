// Package postgres provides the PostgreSQL schedule queue, checkpoint store and run log.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/newsletter"
)

// ErrQueueItemNotFound is returned when a queue item id does not exist.
var ErrQueueItemNotFound = errors.New("schedule queue item not found")

const defaultMaxAttempts = 5

// Repository implements newsletter.Queue, newsletter.CheckpointStore and
// newsletter.RunRecorder using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const queueColumns = `id, run_id, user_id, kind, payload, scheduled_for, status, attempts, max_attempts,
	next_attempt_at, COALESCE(last_error, ''), created_at, updated_at, finished_at`

func scanQueueItem(row pgx.Row) (*newsletter.QueueItem, error) {
	var item newsletter.QueueItem
	var payload []byte
	err := row.Scan(
		&item.ID,
		&item.RunID,
		&item.UserID,
		&item.Kind,
		&payload,
		&item.ScheduledFor,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.NextAttemptAt,
		&item.LastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &item.Event); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", item.ID, err)
	}
	return &item, nil
}

// Enqueue inserts a pending item or replaces the pending item of the same
// user and kind. A replaced item keeps its run id.
func (r *Repository) Enqueue(ctx context.Context, req newsletter.EnqueueRequest) (*newsletter.QueueItem, error) {
	payload, err := json.Marshal(req.Event)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	query := `
		INSERT INTO newsletter_schedule (run_id, user_id, kind, payload, scheduled_for, next_attempt_at, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
		ON CONFLICT (user_id, kind) WHERE status = 'pending'
		DO UPDATE SET
			payload = CASE WHEN $7::boolean
				THEN jsonb_set(EXCLUDED.payload, '{scheduledFor}', to_jsonb(newsletter_schedule.scheduled_for))
				ELSE EXCLUDED.payload END,
			scheduled_for = CASE WHEN $7::boolean THEN newsletter_schedule.scheduled_for ELSE EXCLUDED.scheduled_for END,
			next_attempt_at = CASE WHEN $7::boolean THEN newsletter_schedule.next_attempt_at ELSE EXCLUDED.next_attempt_at END,
			max_attempts = EXCLUDED.max_attempts,
			updated_at = NOW()
		RETURNING ` + queueColumns

	item, err := scanQueueItem(r.db.QueryRow(ctx, query,
		uuid.NewString(),
		req.Event.UserID,
		req.Kind,
		payload,
		req.ScheduledFor,
		maxAttempts,
		req.KeepSchedule,
	))
	if err != nil {
		return nil, fmt.Errorf("enqueue schedule event: %w", err)
	}
	return item, nil
}

// FetchDue claims due items with SKIP LOCKED so concurrent workers never
// receive the same item.
func (r *Repository) FetchDue(ctx context.Context, limit int) ([]*newsletter.QueueItem, error) {
	query := `
		UPDATE newsletter_schedule
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM newsletter_schedule
			WHERE status IN ('pending', 'retrying') AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due runs: %w", err)
	}
	defer rows.Close()

	var items []*newsletter.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}

// MarkDone finishes an item.
func (r *Repository) MarkDone(ctx context.Context, id string) error {
	return r.exec(ctx, "mark done", `
		UPDATE newsletter_schedule
		SET status = 'done', last_error = NULL, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id)
}

// MarkForRetry counts the attempt and schedules the next one.
func (r *Repository) MarkForRetry(ctx context.Context, id string, runErr error, nextAttemptAt time.Time) error {
	return r.exec(ctx, "mark for retry", `
		UPDATE newsletter_schedule
		SET status = 'retrying', attempts = attempts + 1, next_attempt_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, nextAttemptAt, runErr.Error())
}

// MarkFailed counts the attempt and gives up on the item.
func (r *Repository) MarkFailed(ctx context.Context, id string, runErr error) error {
	return r.exec(ctx, "mark failed", `
		UPDATE newsletter_schedule
		SET status = 'failed', attempts = attempts + 1, last_error = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, runErr.Error())
}

func (r *Repository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQueueItemNotFound
	}
	return nil
}

// RecoverStuck returns items left in processing by a crashed worker.
func (r *Repository) RecoverStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE newsletter_schedule
		SET status = 'retrying', next_attempt_at = NOW(), updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("recover stuck runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetStats returns queue size by status.
func (r *Repository) GetStats(ctx context.Context) (*newsletter.QueueStats, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM newsletter_schedule GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats newsletter.QueueStats
	for rows.Next() {
		var status newsletter.QueueStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		switch status {
		case newsletter.QueueStatusPending:
			stats.Pending = count
		case newsletter.QueueStatusProcessing:
			stats.Processing = count
		case newsletter.QueueStatusRetrying:
			stats.Retrying = count
		case newsletter.QueueStatusDone:
			stats.Done = count
		case newsletter.QueueStatusFailed:
			stats.Failed = count
		}
	}
	return &stats, rows.Err()
}

// ListPending returns pending and retrying items of a user ordered by due time.
func (r *Repository) ListPending(ctx context.Context, userID string) ([]*newsletter.QueueItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+queueColumns+`
		FROM newsletter_schedule
		WHERE user_id = $1 AND status IN ('pending', 'retrying')
		ORDER BY next_attempt_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending runs: %w", err)
	}
	defer rows.Close()

	var items []*newsletter.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListUnscheduled returns active subscribers with categories and no live
// regular item, oldest change first.
func (r *Repository) ListUnscheduled(ctx context.Context, limit int) ([]*domain.Preference, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.user_id, p.email, p.categories, p.frequency, p.is_active
		FROM newsletter_preferences p
		WHERE p.is_active AND cardinality(p.categories) > 0
			AND NOT EXISTS (
				SELECT 1 FROM newsletter_schedule q
				WHERE q.user_id = p.user_id AND q.kind = 'regular'
					AND q.status IN ('pending', 'processing', 'retrying')
			)
		ORDER BY p.updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscheduled subscribers: %w", err)
	}
	defer rows.Close()

	var prefs []*domain.Preference
	for rows.Next() {
		var pref domain.Preference
		if err := rows.Scan(&pref.UserID, &pref.Email, &pref.Categories, &pref.Frequency, &pref.IsActive); err != nil {
			return nil, fmt.Errorf("scan unscheduled subscriber: %w", err)
		}
		prefs = append(prefs, &pref)
	}
	return prefs, rows.Err()
}

// LoadStep returns the checkpoint of a completed step.
func (r *Repository) LoadStep(ctx context.Context, runID string, step newsletter.Step) (json.RawMessage, bool, error) {
	var result []byte
	err := r.db.QueryRow(ctx, `
		SELECT result FROM newsletter_run_steps WHERE run_id = $1 AND step_name = $2
	`, runID, step).Scan(&result)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load step: %w", err)
	}
	return result, true, nil
}

// SaveStep stores the result of a completed step.
func (r *Repository) SaveStep(ctx context.Context, runID string, step newsletter.Step, result json.RawMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO newsletter_run_steps (run_id, step_name, result)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, step_name) DO UPDATE SET result = EXCLUDED.result, completed_at = NOW()
	`, runID, step, []byte(result))
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

// PruneCheckpoints deletes old checkpoints of runs that are no longer queued.
func (r *Repository) PruneCheckpoints(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM newsletter_run_steps s
		WHERE s.completed_at < $1
		AND NOT EXISTS (
			SELECT 1 FROM newsletter_schedule q
			WHERE q.run_id = s.run_id AND q.status IN ('pending', 'processing', 'retrying')
		)
	`, before)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordRun writes the audit row of a finished run.
func (r *Repository) RecordRun(ctx context.Context, record newsletter.RunRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO newsletter_runs (run_id, user_id, outcome, reason, article_count, is_test, message_id, finished_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (run_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			reason = EXCLUDED.reason,
			article_count = EXCLUDED.article_count,
			message_id = EXCLUDED.message_id,
			finished_at = EXCLUDED.finished_at
	`,
		record.RunID,
		record.UserID,
		record.Outcome,
		record.Reason,
		record.ArticleCount,
		record.IsTest,
		record.MessageID,
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordError appends a failed attempt to the error log.
func (r *Repository) RecordError(ctx context.Context, runID, userID string, step newsletter.Step, runErr error) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO newsletter_errors (run_id, user_id, step, error)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, runID, userID, step, runErr.Error())
	if err != nil {
		return fmt.Errorf("record run error: %w", err)
	}
	return nil
}
