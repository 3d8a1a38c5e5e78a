package articles

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/bissquit/sendly/internal/domain"
)

const defaultRSSSearchURL = "https://news.google.com/rss/search"

// RSSConfig holds topic search feed configuration.
type RSSConfig struct {
	SearchURL string
	Timeout   time.Duration
}

// RSSClient searches a news aggregator that exposes topic searches as RSS.
// The query is sent as ?q=<topic>&hl=<language>.
type RSSClient struct {
	config     RSSConfig
	httpClient *http.Client
	parser     *gofeed.Parser
}

// NewRSSClient creates an RSS search client.
func NewRSSClient(config RSSConfig) *RSSClient {
	if config.SearchURL == "" {
		config.SearchURL = defaultRSSSearchURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &RSSClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		parser:     gofeed.NewParser(),
	}
}

// Name returns the provider name.
func (c *RSSClient) Name() string { return "rss" }

// Search fetches and parses the topic feed, newest items first.
func (c *RSSClient) Search(ctx context.Context, q Query) ([]domain.Article, error) {
	params := url.Values{}
	params.Set("q", q.Topic)
	if q.Language != "" {
		params.Set("hl", q.Language)
	}

	sep := "?"
	if strings.Contains(c.config.SearchURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.SearchURL+sep+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rss request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: c.Name(), StatusCode: resp.StatusCode}
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	result := make([]domain.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil && !q.From.IsZero() && published.Before(q.From) {
			continue
		}

		article := domain.Article{
			Title:       item.Title,
			URL:         item.Link,
			Description: item.Description,
			PublishedAt: published,
			Source:      feed.Title,
			Content:     item.Content,
			Topic:       q.Topic,
		}
		if item.Author != nil {
			article.Author = item.Author.Name
		}
		if item.Image != nil {
			article.URLToImage = item.Image.URL
		}
		result = append(result, article)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].PublishedAt, result[j].PublishedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})

	if q.Limit > 0 && len(result) > q.Limit*2 {
		result = result[:q.Limit*2]
	}
	return result, nil
}
