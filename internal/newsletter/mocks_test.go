package newsletter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/sendly/internal/delivery"
	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/preferences"
)

type mockPreferences struct {
	prefs map[string]*domain.Preference
	err   error
	calls int
}

func (m *mockPreferences) GetByUserID(_ context.Context, userID string) (*domain.Preference, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	pref, ok := m.prefs[userID]
	if !ok {
		return nil, preferences.ErrPreferencesNotFound
	}
	return pref, nil
}

type mockFetcher struct {
	articles []domain.Article
	err      error
	calls    int
	topics   []string
	perTopic int
}

func (m *mockFetcher) Fetch(_ context.Context, topics []string, perTopic, _ int) ([]domain.Article, error) {
	m.calls++
	m.topics = topics
	m.perTopic = perTopic
	return m.articles, m.err
}

type mockSender struct {
	mu       sync.Mutex
	messages []delivery.Message
	errs     []error
}

func (m *mockSender) Send(_ context.Context, msg delivery.Message) (delivery.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return delivery.Receipt{}, err
		}
	}
	return delivery.Receipt{ID: fmt.Sprintf("msg-%d", len(m.messages)), Provider: "mock"}, nil
}

type mockQueue struct {
	mu       sync.Mutex
	enqueued []EnqueueRequest
	due      []*QueueItem
	done     []string
	retried  map[string]time.Time
	failed   map[string]error
	stats    QueueStats
	orphans  []*domain.Preference
	err      error
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		retried: make(map[string]time.Time),
		failed:  make(map[string]error),
	}
}

func (m *mockQueue) Enqueue(_ context.Context, req EnqueueRequest) (*QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.enqueued = append(m.enqueued, req)
	return &QueueItem{
		ID:           fmt.Sprintf("item-%d", len(m.enqueued)),
		RunID:        fmt.Sprintf("run-%d", len(m.enqueued)),
		UserID:       req.Event.UserID,
		Kind:         req.Kind,
		Event:        req.Event,
		ScheduledFor: req.ScheduledFor,
		Status:       QueueStatusPending,
		MaxAttempts:  req.MaxAttempts,
	}, nil
}

func (m *mockQueue) FetchDue(_ context.Context, limit int) ([]*QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(limit, len(m.due))
	items := m.due[:n]
	m.due = m.due[n:]
	return items, nil
}

func (m *mockQueue) MarkDone(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, id)
	return nil
}

func (m *mockQueue) MarkForRetry(_ context.Context, id string, _ error, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried[id] = next
	return nil
}

func (m *mockQueue) MarkFailed(_ context.Context, id string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = err
	return nil
}

func (m *mockQueue) RecoverStuck(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (m *mockQueue) GetStats(context.Context) (*QueueStats, error) {
	stats := m.stats
	return &stats, nil
}

func (m *mockQueue) ListUnscheduled(_ context.Context, limit int) ([]*domain.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	n := min(limit, len(m.orphans))
	prefs := m.orphans[:n]
	m.orphans = m.orphans[n:]
	return prefs, nil
}

type memoryCheckpoints struct {
	mu    sync.Mutex
	steps map[string]json.RawMessage
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{steps: make(map[string]json.RawMessage)}
}

func (m *memoryCheckpoints) key(runID string, step Step) string {
	return runID + "/" + string(step)
}

func (m *memoryCheckpoints) LoadStep(_ context.Context, runID string, step Step) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.steps[m.key(runID, step)]
	return raw, ok, nil
}

func (m *memoryCheckpoints) SaveStep(_ context.Context, runID string, step Step, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[m.key(runID, step)] = result
	return nil
}

func (m *memoryCheckpoints) PruneCheckpoints(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryCheckpoints) has(runID string, step Step) bool {
	_, ok, _ := m.LoadStep(context.Background(), runID, step)
	return ok
}

type mockRecorder struct {
	mu     sync.Mutex
	runs   []RunRecord
	errors []Step
}

func (m *mockRecorder) RecordRun(_ context.Context, record RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, record)
	return nil
}

func (m *mockRecorder) RecordError(_ context.Context, _, _ string, step Step, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, step)
	return nil
}
