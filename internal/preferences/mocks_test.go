package preferences

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bissquit/sendly/internal/domain"
)

type memoryRepository struct {
	mu    sync.Mutex
	prefs map[string]domain.Preference
	err   error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{prefs: make(map[string]domain.Preference)}
}

func (m *memoryRepository) GetByUserID(_ context.Context, userID string) (*domain.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	pref, ok := m.prefs[userID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	return &pref, nil
}

func (m *memoryRepository) Upsert(_ context.Context, pref *domain.Preference) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	now := time.Now().UTC()
	existing, ok := m.prefs[pref.UserID]
	if !ok {
		pref.ID = uuid.NewString()
		pref.SubscriptionPlan = domain.PlanFree
		pref.CreatedAt = now
		pref.UpdatedAt = now
		m.prefs[pref.UserID] = *pref
		return true, nil
	}

	blank := len(existing.Categories) == 0
	if blank {
		existing.IsActive = pref.IsActive
	}
	existing.Categories = pref.Categories
	existing.Frequency = pref.Frequency
	existing.Email = pref.Email
	existing.UpdatedAt = now
	m.prefs[pref.UserID] = existing
	*pref = existing
	return blank, nil
}

func (m *memoryRepository) SetActive(_ context.Context, userID string, active bool) (*domain.Preference, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	pref, ok := m.prefs[userID]
	if !ok {
		return nil, false, ErrPreferencesNotFound
	}
	was := pref.IsActive
	pref.IsActive = active
	m.prefs[userID] = pref
	return &pref, was, nil
}

type scheduleCall struct {
	kind string
	pref domain.Preference
}

type mockScheduler struct {
	calls []scheduleCall
	err   error
}

func (m *mockScheduler) record(kind string, pref *domain.Preference) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, scheduleCall{kind: kind, pref: *pref})
	return nil
}

func (m *mockScheduler) ScheduleFirst(_ context.Context, pref *domain.Preference) error {
	return m.record("first", pref)
}

func (m *mockScheduler) EnsureScheduled(_ context.Context, pref *domain.Preference) error {
	return m.record("ensure", pref)
}

func (m *mockScheduler) ScheduleReactivation(_ context.Context, pref *domain.Preference) error {
	return m.record("reactivation", pref)
}

func (m *mockScheduler) ScheduleImmediate(_ context.Context, pref *domain.Preference) error {
	return m.record("immediate", pref)
}

func (m *mockScheduler) kinds() []string {
	kinds := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		kinds = append(kinds, c.kind)
	}
	return kinds
}

var errStoreDown = errors.New("store down")
