package newsletter

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

// Scheduling defaults.
const (
	DefaultSendHour          = 9
	DefaultReactivationDelay = 5 * time.Minute
)

// NextRunAt returns now plus the frequency interval (1, 7 or 14 days; unknown
// values count as weekly) with the time of day set to hour:00 in loc.
func NextRunAt(frequency domain.Frequency, now time.Time, loc *time.Location, hour int) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := local.AddDate(0, 0, frequency.Interval())
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, loc)
}

// ScheduleConfig configures event scheduling.
type ScheduleConfig struct {
	Location          *time.Location
	SendHour          int
	ReactivationDelay time.Duration
	MaxAttempts       int
}

// PlannedEvent is a schedule event together with its queue kind.
type PlannedEvent struct {
	Kind  Kind
	Event domain.ScheduleEvent
}

// ReactivationEvents returns the two events emitted when a paused subscriber
// resumes: a near-immediate one-off send, and the first regular send.
func ReactivationEvents(pref *domain.Preference, now time.Time, cfg ScheduleConfig) []PlannedEvent {
	cfg = cfg.withDefaults()
	return []PlannedEvent{
		{
			Kind:  KindImmediate,
			Event: domain.NewScheduleEvent(pref, now.Add(cfg.ReactivationDelay), true),
		},
		{
			Kind:  KindRegular,
			Event: domain.NewScheduleEvent(pref, NextRunAt(pref.Frequency, now, cfg.Location, cfg.SendHour), false),
		},
	}
}

func (c ScheduleConfig) withDefaults() ScheduleConfig {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.ReactivationDelay == 0 {
		c.ReactivationDelay = DefaultReactivationDelay
	}
	return c
}

// Scheduler turns preference changes into queued schedule events.
type Scheduler struct {
	queue  Queue
	config ScheduleConfig
	now    func() time.Time
}

// NewScheduler creates a scheduler.
func NewScheduler(queue Queue, config ScheduleConfig) *Scheduler {
	return &Scheduler{
		queue:  queue,
		config: config.withDefaults(),
		now:    time.Now,
	}
}

// ScheduleFirst starts the regular chain of a new subscriber with a send right away.
func (s *Scheduler) ScheduleFirst(ctx context.Context, pref *domain.Preference) error {
	return s.enqueue(ctx, KindRegular, domain.NewScheduleEvent(pref, s.now(), false), false)
}

// EnsureScheduled makes sure a regular run is pending. An already pending run
// keeps its time and gets the new payload.
func (s *Scheduler) EnsureScheduled(ctx context.Context, pref *domain.Preference) error {
	at := NextRunAt(pref.Frequency, s.now(), s.config.Location, s.config.SendHour)
	return s.enqueue(ctx, KindRegular, domain.NewScheduleEvent(pref, at, false), true)
}

// ScheduleReactivation enqueues both reactivation events.
func (s *Scheduler) ScheduleReactivation(ctx context.Context, pref *domain.Preference) error {
	for _, planned := range ReactivationEvents(pref, s.now(), s.config) {
		if err := s.enqueue(ctx, planned.Kind, planned.Event, false); err != nil {
			return err
		}
	}
	return nil
}

// Reseed restarts the regular chain of up to limit active subscribers that
// have none, for example after a run was skipped on a failed status check.
// The next send follows the subscriber's cadence.
func (s *Scheduler) Reseed(ctx context.Context, limit int) (int, error) {
	prefs, err := s.queue.ListUnscheduled(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unscheduled subscribers: %w", err)
	}

	seeded := 0
	for _, pref := range prefs {
		if err := s.EnsureScheduled(ctx, pref); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// ScheduleImmediate enqueues a one-off send that does not reschedule.
func (s *Scheduler) ScheduleImmediate(ctx context.Context, pref *domain.Preference) error {
	return s.enqueue(ctx, KindImmediate, domain.NewScheduleEvent(pref, s.now(), true), false)
}

func (s *Scheduler) enqueue(ctx context.Context, kind Kind, event domain.ScheduleEvent, keep bool) error {
	item, err := s.queue.Enqueue(ctx, EnqueueRequest{
		Kind:         kind,
		Event:        event,
		ScheduledFor: *event.ScheduledFor,
		MaxAttempts:  s.config.MaxAttempts,
		KeepSchedule: keep,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", kind, err)
	}

	ctxlog.FromContext(ctx).Info("newsletter scheduled",
		"user_id", event.UserID,
		"kind", kind,
		"run_id", item.RunID,
		"scheduled_for", item.ScheduledFor,
		"is_test", event.IsTest,
	)
	return nil
}
