package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

// Parameter bounds accepted by Fetch.
const (
	MinPerTopic      = 1
	MaxPerTopic      = 20
	MinMaxConcurrent = 1
	MaxMaxConcurrent = 5
)

const (
	defaultWindow           = 7 * 24 * time.Hour
	defaultRateLimitBackoff = 60 * time.Second
)

// Config tunes the fetcher.
type Config struct {
	Language         string
	Window           time.Duration
	RequestSpacing   time.Duration
	RateLimitBackoff time.Duration
	CacheTTL         time.Duration
	FilterLowValue   bool
}

// Fetcher collects articles for a list of topics with per-topic failure isolation.
type Fetcher struct {
	searcher Searcher
	config   Config
	cache    *cache
	flights  singleflight.Group
	limiter  *rate.Limiter
	now      func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock replaces time.Now, used for cache expiry and the search window.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a fetcher on top of a provider.
func NewFetcher(searcher Searcher, config Config, opts ...Option) *Fetcher {
	if config.Window == 0 {
		config.Window = defaultWindow
	}
	if config.RateLimitBackoff == 0 {
		config.RateLimitBackoff = defaultRateLimitBackoff
	}

	limit := rate.Inf
	if config.RequestSpacing > 0 {
		limit = rate.Every(config.RequestSpacing)
	}

	f := &Fetcher{
		searcher: searcher,
		config:   config,
		cache:    newCache(config.CacheTTL),
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns up to perTopic articles for every topic, merged in topic order
// and deduplicated. Topics run in batches of maxConcurrent. A failing topic
// contributes nothing; it never fails the whole call.
func (f *Fetcher) Fetch(ctx context.Context, topics []string, perTopic, maxConcurrent int) ([]domain.Article, error) {
	if perTopic < MinPerTopic || perTopic > MaxPerTopic {
		return nil, fmt.Errorf("%w: perTopic must be between %d and %d, got %d",
			ErrInvalidFetchParams, MinPerTopic, MaxPerTopic, perTopic)
	}
	if maxConcurrent < MinMaxConcurrent || maxConcurrent > MaxMaxConcurrent {
		return nil, fmt.Errorf("%w: maxConcurrent must be between %d and %d, got %d",
			ErrInvalidFetchParams, MinMaxConcurrent, MaxMaxConcurrent, maxConcurrent)
	}
	if len(topics) == 0 {
		return []domain.Article{}, nil
	}

	perTopicResults := make([][]domain.Article, len(topics))
	for start := 0; start < len(topics); start += maxConcurrent {
		end := min(start+maxConcurrent, len(topics))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Go(func() {
				perTopicResults[i] = f.fetchTopic(ctx, topics[i], perTopic)
			})
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var merged []domain.Article
	for _, r := range perTopicResults {
		merged = append(merged, r...)
	}
	merged = Dedupe(merged)
	if merged == nil {
		merged = []domain.Article{}
	}

	articlesReturned.Add(float64(len(merged)))
	ctxlog.FromContext(ctx).Info("articles fetched",
		"topics", len(topics),
		"articles", len(merged),
		"provider", f.searcher.Name(),
	)
	return merged, nil
}

func (f *Fetcher) fetchTopic(ctx context.Context, topic string, perTopic int) []domain.Article {
	key := cacheKey{topic: topic, perTopic: perTopic}

	if cached, ok := f.cache.get(key, f.now()); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return cached
	}
	cacheLookups.WithLabelValues("miss").Inc()

	// Concurrent misses on one key share a single provider request.
	v, _, shared := f.flights.Do(fmt.Sprintf("%s|%d", topic, perTopic), func() (any, error) {
		if cached, ok := f.cache.get(key, f.now()); ok {
			return cached, nil
		}
		return f.search(ctx, key), nil
	})

	result := v.([]domain.Article)
	if shared {
		result = append([]domain.Article(nil), result...)
	}
	return result
}

func (f *Fetcher) search(ctx context.Context, key cacheKey) []domain.Article {
	logger := ctxlog.FromContext(ctx).With("topic", key.topic, "provider", f.searcher.Name())

	if err := f.limiter.Wait(ctx); err != nil {
		return nil
	}

	found, err := f.searcher.Search(ctx, Query{
		Topic:    key.topic,
		Limit:    key.perTopic,
		From:     f.now().Add(-f.config.Window),
		Language: f.config.Language,
	})
	if err != nil {
		f.handleFailure(ctx, logger, err)
		return nil
	}

	cleaned := Clean(found, f.config.FilterLowValue)
	for i := range cleaned {
		cleaned[i].Topic = key.topic
	}
	if len(cleaned) > key.perTopic {
		cleaned = cleaned[:key.perTopic]
	}

	recordTopicRequest(f.searcher.Name(), "success")
	f.cache.set(key, cleaned, f.now())
	return cleaned
}

func (f *Fetcher) handleFailure(ctx context.Context, logger *slog.Logger, err error) {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests:
		recordTopicRequest(f.searcher.Name(), "rate_limited")
		logger.Warn("article provider rate limited, backing off", "backoff", f.config.RateLimitBackoff)

		timer := time.NewTimer(f.config.RateLimitBackoff)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}

	case errors.As(err, &statusErr) && statusErr.StatusCode >= 500:
		recordTopicRequest(f.searcher.Name(), "server_error")
		logger.Warn("article provider unavailable", "status", statusErr.StatusCode)

	default:
		recordTopicRequest(f.searcher.Name(), "error")
		logger.Error("article search failed", "error", err)
	}
}
