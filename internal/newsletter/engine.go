// Package newsletter runs the recurring newsletter pipeline: status check,
// article fetch, rendering, delivery and scheduling of the next run.
package newsletter

import (
	"context"
	"time"

	"github.com/bissquit/sendly/internal/delivery"
	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

// ArticleFetcher collects articles for a set of topics.
type ArticleFetcher interface {
	Fetch(ctx context.Context, topics []string, perTopic, maxConcurrent int) ([]domain.Article, error)
}

// ContentBuilder produces newsletter content. An empty article list must still
// yield sendable content.
type ContentBuilder interface {
	Build(articles []domain.Article, topics []string, frequency domain.Frequency, generatedAt time.Time) (domain.Newsletter, error)
}

// EngineConfig tunes a run.
type EngineConfig struct {
	PerTopic      int
	MaxConcurrent int
	Schedule      ScheduleConfig
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunID         string             `json:"runId"`
	UserID        string             `json:"userId"`
	Skipped       bool               `json:"skipped,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Newsletter    *domain.Newsletter `json:"newsletter,omitempty"`
	ArticleCount  int                `json:"articleCount"`
	Categories    []string           `json:"categories,omitempty"`
	EmailSent     bool               `json:"emailSent"`
	MessageID     string             `json:"messageId,omitempty"`
	NextScheduled bool               `json:"nextScheduled"`
	NextRunAt     *time.Time         `json:"nextRunAt,omitempty"`
	Success       bool               `json:"success"`
}

type scheduleResult struct {
	NextRunAt time.Time `json:"nextRunAt"`
}

// Engine executes runs. Each step is checkpointed, so a retried run resumes
// after its last completed step.
type Engine struct {
	gate        *Gate
	fetcher     ArticleFetcher
	builder     ContentBuilder
	sender      delivery.Sender
	queue       Queue
	checkpoints CheckpointStore
	config      EngineConfig
	now         func() time.Time
}

// NewEngine creates an engine.
func NewEngine(
	gate *Gate,
	fetcher ArticleFetcher,
	builder ContentBuilder,
	sender delivery.Sender,
	queue Queue,
	checkpoints CheckpointStore,
	config EngineConfig,
) *Engine {
	config.Schedule = config.Schedule.withDefaults()
	return &Engine{
		gate:        gate,
		fetcher:     fetcher,
		builder:     builder,
		sender:      sender,
		queue:       queue,
		checkpoints: checkpoints,
		config:      config,
		now:         time.Now,
	}
}

// Run executes the pipeline for one schedule event.
func (e *Engine) Run(ctx context.Context, runID string, event domain.ScheduleEvent) (*RunResult, error) {
	ctx = ctxlog.With(ctx, "run_id", runID, "user_id", event.UserID)
	logger := ctxlog.FromContext(ctx)

	status, err := runStep(ctx, e.checkpoints, runID, StepCheckStatus, func(ctx context.Context) (GateResult, error) {
		return e.gate.Check(ctx, event.UserID), nil
	})
	if err != nil {
		return nil, err
	}
	if !status.Active {
		logger.Info("newsletter run skipped", "reason", status.Reason)
		recordRun(OutcomeSkipped)
		return &RunResult{RunID: runID, UserID: event.UserID, Skipped: true, Reason: status.Reason}, nil
	}

	articles, err := runStep(ctx, e.checkpoints, runID, StepFetchNews, func(ctx context.Context) ([]domain.Article, error) {
		return e.fetcher.Fetch(ctx, status.Categories, e.config.PerTopic, e.config.MaxConcurrent)
	})
	if err != nil {
		return nil, err
	}

	content, err := runStep(ctx, e.checkpoints, runID, StepRenderContent, func(context.Context) (domain.Newsletter, error) {
		return e.builder.Build(articles, status.Categories, status.Frequency, e.now())
	})
	if err != nil {
		return nil, err
	}

	to := status.Email
	if to == "" {
		to = event.Email
	}
	receipt, err := runStep(ctx, e.checkpoints, runID, StepSendEmail, func(ctx context.Context) (delivery.Receipt, error) {
		return e.sender.Send(ctx, delivery.Message{
			To:      to,
			Subject: Subject(status.Frequency, status.Categories),
			HTML:    content.HTML,
			Text:    content.Markdown,
		})
	})
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:        runID,
		UserID:       event.UserID,
		Newsletter:   &content,
		ArticleCount: content.ArticleCount,
		Categories:   status.Categories,
		EmailSent:    true,
		MessageID:    receipt.ID,
		Success:      true,
	}

	if !event.IsTest {
		next, err := runStep(ctx, e.checkpoints, runID, StepScheduleNext, func(ctx context.Context) (scheduleResult, error) {
			return e.scheduleNext(ctx, event, status)
		})
		if err != nil {
			return nil, err
		}
		result.NextScheduled = true
		result.NextRunAt = &next.NextRunAt
	}

	recordRun(OutcomeSent)
	logger.Info("newsletter sent",
		"articles", result.ArticleCount,
		"next_scheduled", result.NextScheduled,
	)
	return result, nil
}

func (e *Engine) scheduleNext(ctx context.Context, event domain.ScheduleEvent, status GateResult) (scheduleResult, error) {
	cfg := e.config.Schedule
	at := NextRunAt(status.Frequency, e.now(), cfg.Location, cfg.SendHour)

	next := domain.ScheduleEvent{
		EventName:    domain.ScheduleEventName,
		UserID:       event.UserID,
		Email:        status.Email,
		Categories:   status.Categories,
		Frequency:    status.Frequency,
		ScheduledFor: &at,
	}
	if _, err := e.queue.Enqueue(ctx, EnqueueRequest{
		Kind:         KindRegular,
		Event:        next,
		ScheduledFor: at,
		MaxAttempts:  cfg.MaxAttempts,
	}); err != nil {
		return scheduleResult{}, err
	}
	return scheduleResult{NextRunAt: at}, nil
}
