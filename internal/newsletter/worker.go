package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	BatchSize           int
	PollInterval        time.Duration
	MaxAttempts         int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	BackoffMultiplier   float64
	NumWorkers          int
	StuckTimeout        time.Duration
	CheckpointTTL       time.Duration
	MaintenanceInterval time.Duration
	ReseedBatch         int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:           20,
		PollInterval:        10 * time.Second,
		MaxAttempts:         5,
		InitialBackoff:      30 * time.Second,
		MaxBackoff:          30 * time.Minute,
		BackoffMultiplier:   2.0,
		NumWorkers:          4,
		StuckTimeout:        15 * time.Minute,
		CheckpointTTL:       30 * 24 * time.Hour,
		MaintenanceInterval: time.Minute,
		ReseedBatch:         100,
	}
}

// Runner executes one run. Implemented by Engine.
type Runner interface {
	Run(ctx context.Context, runID string, event domain.ScheduleEvent) (*RunResult, error)
}

// Reseeder restarts regular chains that ended without a successor.
// Implemented by Scheduler.
type Reseeder interface {
	Reseed(ctx context.Context, limit int) (int, error)
}

// Worker processes due schedule events from the queue.
type Worker struct {
	config      WorkerConfig
	queue       Queue
	runner      Runner
	recorder    RunRecorder
	checkpoints CheckpointStore
	reseeder    Reseeder
	now         func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new schedule worker.
func NewWorker(config WorkerConfig, queue Queue, runner Runner, recorder RunRecorder, checkpoints CheckpointStore) *Worker {
	if config.MaintenanceInterval == 0 {
		config.MaintenanceInterval = time.Minute
	}
	return &Worker{
		config:      config,
		queue:       queue,
		runner:      runner,
		recorder:    recorder,
		checkpoints: checkpoints,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// WithReseeder makes the maintenance loop restart broken regular chains.
func (w *Worker) WithReseeder(r Reseeder) *Worker {
	w.reseeder = r
	return w
}

// Start launches worker goroutines and the maintenance loop.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting newsletter worker",
		"workers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}

	w.wg.Add(1)
	go w.maintain(ctx)
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("newsletter worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processBatch(ctx, workerID)
		}
	}
}

func (w *Worker) maintain(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runMaintenance(ctx)
		}
	}
}

func (w *Worker) runMaintenance(ctx context.Context) {
	if w.config.StuckTimeout > 0 {
		recovered, err := w.queue.RecoverStuck(ctx, w.config.StuckTimeout)
		if err != nil {
			slog.Error("failed to recover stuck runs", "error", err)
		} else if recovered > 0 {
			slog.Warn("recovered stuck newsletter runs", "count", recovered)
		}
	}

	if w.config.CheckpointTTL > 0 {
		pruned, err := w.checkpoints.PruneCheckpoints(ctx, w.now().Add(-w.config.CheckpointTTL))
		if err != nil {
			slog.Error("failed to prune checkpoints", "error", err)
		} else if pruned > 0 {
			slog.Debug("pruned run checkpoints", "count", pruned)
		}
	}

	if w.reseeder != nil && w.config.ReseedBatch > 0 {
		seeded, err := w.reseeder.Reseed(ctx, w.config.ReseedBatch)
		if err != nil {
			slog.Error("failed to reseed regular runs", "error", err)
		}
		if seeded > 0 {
			slog.Warn("reseeded regular runs", "count", seeded)
			queueReseeded.Add(float64(seeded))
		}
	}

	stats, err := w.queue.GetStats(ctx)
	if err != nil {
		slog.Error("failed to read queue stats", "error", err)
		return
	}
	RecordQueueStats(stats)
}

func (w *Worker) processBatch(ctx context.Context, workerID int) {
	items, err := w.queue.FetchDue(ctx, w.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch due newsletter runs", "worker", workerID, "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	slog.Debug("processing newsletter runs", "worker", workerID, "count", len(items))
	queueFetched.Add(float64(len(items)))

	for _, item := range items {
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item *QueueItem) {
	ctx = ctxlog.With(ctx, "item_id", item.ID, "run_id", item.RunID, "user_id", item.UserID)
	logger := ctxlog.FromContext(ctx)

	result, err := w.runner.Run(ctx, item.RunID, item.Event)
	if err != nil {
		w.handleRunError(ctx, item, err)
		return
	}

	if err := w.queue.MarkDone(ctx, item.ID); err != nil {
		logger.Error("failed to mark run as done", "error", err)
	}

	record := RunRecord{
		RunID:        item.RunID,
		UserID:       item.UserID,
		ArticleCount: result.ArticleCount,
		IsTest:       item.Event.IsTest,
		MessageID:    result.MessageID,
		FinishedAt:   w.now(),
	}
	if result.Skipped {
		record.Outcome = OutcomeSkipped
		record.Reason = result.Reason
	} else {
		record.Outcome = OutcomeSent
	}
	if err := w.recorder.RecordRun(ctx, record); err != nil {
		logger.Error("failed to record run", "error", err)
	}
}

func (w *Worker) handleRunError(ctx context.Context, item *QueueItem, err error) {
	logger := ctxlog.FromContext(ctx)

	// Bookkeeping must survive a canceled run context.
	ctx = context.WithoutCancel(ctx)

	var stepErr *StepError
	step := Step("")
	if errors.As(err, &stepErr) {
		step = stepErr.Step
	}
	if recErr := w.recorder.RecordError(ctx, item.RunID, item.UserID, step, err); recErr != nil {
		logger.Error("failed to record run error", "error", recErr)
	}

	logger.Warn("newsletter run failed",
		"step", step,
		"attempt", item.Attempts+1,
		"max_attempts", item.MaxAttempts,
		"error", err,
	)

	if !isRetryable(err) {
		w.fail(ctx, item, err)
		return
	}

	if item.Attempts+1 >= item.MaxAttempts {
		w.fail(ctx, item, fmt.Errorf("max attempts exceeded: %w", err))
		return
	}

	nextAttempt := w.calculateNextAttempt(item.Attempts + 1)
	if markErr := w.queue.MarkForRetry(ctx, item.ID, err, nextAttempt); markErr != nil {
		logger.Error("failed to mark run for retry", "error", markErr)
	}
	queueRetries.Inc()

	logger.Info("newsletter run scheduled for retry", "next_attempt", nextAttempt)
}

func (w *Worker) fail(ctx context.Context, item *QueueItem, err error) {
	logger := ctxlog.FromContext(ctx)

	if markErr := w.queue.MarkFailed(ctx, item.ID, err); markErr != nil {
		logger.Error("failed to mark run as failed", "error", markErr)
	}
	recordRun(OutcomeFailed)

	if recErr := w.recorder.RecordRun(ctx, RunRecord{
		RunID:      item.RunID,
		UserID:     item.UserID,
		Outcome:    OutcomeFailed,
		Reason:     err.Error(),
		IsTest:     item.Event.IsTest,
		FinishedAt: w.now(),
	}); recErr != nil {
		logger.Error("failed to record run", "error", recErr)
	}
}

func (w *Worker) calculateNextAttempt(attempt int) time.Time {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}

	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}

	return w.now().Add(time.Duration(backoff))
}
