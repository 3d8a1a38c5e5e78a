package articles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/sendly/internal/domain"
)

type fakeSearcher struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
	perCall  int
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		calls:    make(map[string]int),
		failures: make(map[string]error),
		perCall:  3,
	}
}

func (s *fakeSearcher) Name() string { return "fake" }

func (s *fakeSearcher) Search(_ context.Context, q Query) ([]domain.Article, error) {
	current := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxInFlight.Load()
		if current <= seen || s.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.calls[q.Topic]++
	err := s.failures[q.Topic]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	result := make([]domain.Article, 0, s.perCall)
	for i := 1; i <= s.perCall; i++ {
		result = append(result, testArticle(q.Topic, i))
	}
	return result, nil
}

func (s *fakeSearcher) callCount(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[topic]
}

func testArticle(topic string, i int) domain.Article {
	return domain.Article{
		Title:       fmt.Sprintf("%s story %d", topic, i),
		URL:         fmt.Sprintf("https://example.com/%s/%d", topic, i),
		Description: fmt.Sprintf("about %s", topic),
		Source:      "Example",
	}
}

func TestFetcher_Fetch_InvalidParams(t *testing.T) {
	f := NewFetcher(newFakeSearcher(), Config{})

	tests := []struct {
		name          string
		perTopic      int
		maxConcurrent int
	}{
		{"perTopic zero", 0, 3},
		{"perTopic above max", 21, 3},
		{"maxConcurrent zero", 5, 0},
		{"maxConcurrent above max", 5, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), []string{"ai"}, tt.perTopic, tt.maxConcurrent)
			assert.ErrorIs(t, err, ErrInvalidFetchParams)
		})
	}
}

func TestFetcher_Fetch_EmptyTopics(t *testing.T) {
	searcher := newFakeSearcher()
	f := NewFetcher(searcher, Config{})

	result, err := f.Fetch(context.Background(), nil, 5, 3)

	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NotNil(t, result)
}

func TestFetcher_Fetch_PerTopicIsolation(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.failures["broken"] = errors.New("connection reset")
	searcher.failures["down"] = &StatusError{Provider: "fake", StatusCode: http.StatusBadGateway}
	searcher.failures["limited"] = &StatusError{Provider: "fake", StatusCode: http.StatusTooManyRequests}

	f := NewFetcher(searcher, Config{RateLimitBackoff: time.Millisecond})

	result, err := f.Fetch(context.Background(), []string{"ai", "broken", "down", "limited", "crypto"}, 2, 2)

	require.NoError(t, err)
	require.Len(t, result, 4)
	assert.Equal(t, "ai story 1", result[0].Title)
	assert.Equal(t, "ai story 2", result[1].Title)
	assert.Equal(t, "crypto story 1", result[2].Title)
	assert.Equal(t, "crypto story 2", result[3].Title)
	for _, a := range result {
		assert.NotEmpty(t, a.Topic)
	}
}

func TestFetcher_Fetch_RateLimitBackoffRespectsContext(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.failures["limited"] = &StatusError{Provider: "fake", StatusCode: http.StatusTooManyRequests}

	f := NewFetcher(searcher, Config{RateLimitBackoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, []string{"limited"}, 2, 1)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetcher_Fetch_CacheTTL(t *testing.T) {
	searcher := newFakeSearcher()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFetcher(searcher, Config{CacheTTL: 5 * time.Minute}, WithClock(func() time.Time { return now }))

	ctx := context.Background()

	first, err := f.Fetch(ctx, []string{"ai"}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.callCount("ai"))

	now = now.Add(4 * time.Minute)
	second, err := f.Fetch(ctx, []string{"ai"}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.callCount("ai"), "cached result should be reused within TTL")
	assert.Equal(t, first, second)

	_, err = f.Fetch(ctx, []string{"ai"}, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, searcher.callCount("ai"), "different perTopic is a different cache key")

	now = now.Add(2 * time.Minute)
	_, err = f.Fetch(ctx, []string{"ai"}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, searcher.callCount("ai"), "expired entry should be refetched")
}

func TestFetcher_Fetch_ConcurrentMissesShareOneRequest(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.delay = 100 * time.Millisecond
	f := NewFetcher(searcher, Config{CacheTTL: 5 * time.Minute})

	const callers = 4
	results := make([][]domain.Article, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			<-start
			result, err := f.Fetch(context.Background(), []string{"ai"}, 5, 1)
			assert.NoError(t, err)
			results[i] = result
		})
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, searcher.callCount("ai"))
	for _, result := range results {
		assert.Len(t, result, 3)
		assert.Equal(t, results[0], result)
	}
}

func TestFetcher_Fetch_FailuresAreNotCached(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.failures["ai"] = &StatusError{Provider: "fake", StatusCode: http.StatusServiceUnavailable}
	f := NewFetcher(searcher, Config{CacheTTL: 5 * time.Minute})

	for range 2 {
		result, err := f.Fetch(context.Background(), []string{"ai"}, 2, 1)
		require.NoError(t, err)
		assert.Empty(t, result)
	}
	assert.Equal(t, 2, searcher.callCount("ai"))
}

func TestFetcher_Fetch_DedupesAcrossTopics(t *testing.T) {
	searcher := &duplicateSearcher{}
	f := NewFetcher(searcher, Config{})

	result, err := f.Fetch(context.Background(), []string{"ai", "ml"}, 5, 2)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "ai", result[0].Topic)
}

type duplicateSearcher struct{}

func (duplicateSearcher) Name() string { return "dup" }

func (duplicateSearcher) Search(_ context.Context, q Query) ([]domain.Article, error) {
	if q.Topic == "ml" {
		time.Sleep(10 * time.Millisecond)
	}
	return []domain.Article{{
		Title:       "Shared headline",
		URL:         "https://www.example.com/shared/",
		Description: "covered by both topics",
	}}, nil
}

func TestFetcher_Fetch_RespectsMaxConcurrent(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.delay = 20 * time.Millisecond
	f := NewFetcher(searcher, Config{})

	_, err := f.Fetch(context.Background(), []string{"a", "b", "c", "d", "e"}, 1, 2)

	require.NoError(t, err)
	assert.LessOrEqual(t, searcher.maxInFlight.Load(), int32(2))
	for _, topic := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, 1, searcher.callCount(topic))
	}
}

func TestFetcher_Fetch_LimitsPerTopic(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.perCall = 10
	f := NewFetcher(searcher, Config{})

	result, err := f.Fetch(context.Background(), []string{"ai"}, 4, 1)

	require.NoError(t, err)
	assert.Len(t, result, 4)
}
