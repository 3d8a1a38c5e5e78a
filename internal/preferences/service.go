package preferences

import (
	"context"
	"fmt"
	"strings"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

// Scheduler enqueues newsletter runs for a preference.
type Scheduler interface {
	// ScheduleFirst starts the chain of a new subscriber.
	ScheduleFirst(ctx context.Context, pref *domain.Preference) error
	// EnsureScheduled refreshes the pending run of an active subscriber
	// without moving its send time.
	EnsureScheduled(ctx context.Context, pref *domain.Preference) error
	// ScheduleReactivation enqueues the near-immediate and the regular run.
	ScheduleReactivation(ctx context.Context, pref *domain.Preference) error
	// ScheduleImmediate enqueues a one-off run that does not reschedule.
	ScheduleImmediate(ctx context.Context, pref *domain.Preference) error
}

// SaveInput is the subscriber-editable part of a preference.
type SaveInput struct {
	Categories []string
	Frequency  domain.Frequency
	Email      string
}

// Service provides preference business logic.
type Service struct {
	repo      Repository
	scheduler Scheduler
}

// NewService creates a new preferences service.
func NewService(repo Repository, scheduler Scheduler) *Service {
	return &Service{
		repo:      repo,
		scheduler: scheduler,
	}
}

// Validate normalizes input in place and checks it.
func (in *SaveInput) Validate() error {
	in.Categories = domain.NormalizeCategories(in.Categories)
	in.Email = strings.TrimSpace(in.Email)

	if len(in.Categories) == 0 {
		return ErrNoCategories
	}
	if !in.Frequency.IsValid() {
		return ErrInvalidFrequency
	}
	if !strings.Contains(in.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

// Save creates or updates the preference of userID. A new subscriber gets
// the first run scheduled; an active subscriber keeps the next send time
// with refreshed content.
func (s *Service) Save(ctx context.Context, userID string, in SaveInput) (pref *domain.Preference, created bool, err error) {
	if err := in.Validate(); err != nil {
		return nil, false, err
	}

	pref = &domain.Preference{
		UserID:     userID,
		Categories: in.Categories,
		Frequency:  in.Frequency,
		Email:      in.Email,
		IsActive:   true,
	}
	created, err = s.repo.Upsert(ctx, pref)
	if err != nil {
		return nil, false, fmt.Errorf("save preferences: %w", err)
	}

	switch {
	case created:
		err = s.scheduler.ScheduleFirst(ctx, pref)
	case pref.IsActive:
		err = s.scheduler.EnsureScheduled(ctx, pref)
	}
	if err != nil {
		return nil, false, fmt.Errorf("schedule newsletter: %w", err)
	}

	ctxlog.FromContext(ctx).Info("preferences saved",
		"created", created,
		"frequency", pref.Frequency,
		"categories", len(pref.Categories),
	)
	return pref, created, nil
}

// Get returns the preference of userID.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Preference, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// SetActive pauses or resumes the newsletter. Resuming a paused newsletter
// schedules a near-immediate send and the regular one. Pausing only flips
// the flag; pending runs are skipped when they come due.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) (*domain.Preference, error) {
	if active {
		existing, err := s.repo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(existing.Categories) == 0 {
			return nil, ErrNoCategories
		}
	}

	pref, wasActive, err := s.repo.SetActive(ctx, userID, active)
	if err != nil {
		return nil, err
	}

	if active && !wasActive {
		if err := s.scheduler.ScheduleReactivation(ctx, pref); err != nil {
			return nil, fmt.Errorf("schedule reactivation: %w", err)
		}
		ctxlog.FromContext(ctx).Info("newsletter reactivated")
	} else if !active && wasActive {
		ctxlog.FromContext(ctx).Info("newsletter paused")
	}
	return pref, nil
}

// SendNow enqueues a one-off send for an active subscriber.
func (s *Service) SendNow(ctx context.Context, userID string) error {
	pref, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if !pref.IsActive {
		return ErrNotActive
	}
	if err := s.scheduler.ScheduleImmediate(ctx, pref); err != nil {
		return fmt.Errorf("schedule immediate send: %w", err)
	}
	return nil
}
