package articles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/sendly/internal/domain"
)

const (
	defaultNewsAPIURL = "https://newsapi.org"
	defaultTimeout    = 15 * time.Second
	maxPageSize       = 100
)

// NewsAPIConfig holds newsapi.org client configuration.
type NewsAPIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewsAPIClient searches the newsapi.org "everything" endpoint.
type NewsAPIClient struct {
	config     NewsAPIConfig
	httpClient *http.Client
}

// NewNewsAPIClient creates a client. The API key is required.
func NewNewsAPIClient(config NewsAPIConfig) (*NewsAPIClient, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultNewsAPIURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &NewsAPIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Name returns the provider name.
func (c *NewsAPIClient) Name() string { return "newsapi" }

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Code     string           `json:"code"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string     `json:"author"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	URLToImage  string     `json:"urlToImage"`
	PublishedAt *time.Time `json:"publishedAt"`
	Content     string     `json:"content"`
}

// Search requests the most recent articles matching the topic.
// Twice the limit is requested so filtering still leaves enough results.
func (c *NewsAPIClient) Search(ctx context.Context, q Query) ([]domain.Article, error) {
	params := url.Values{}
	params.Set("q", q.Topic)
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(min(q.Limit*2, maxPageSize)))
	if !q.From.IsZero() {
		params.Set("from", q.From.UTC().Format("2006-01-02"))
	}
	if q.Language != "" {
		params.Set("language", q.Language)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/v2/everything?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed newsAPIResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: parsed.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if parsed.Status == "error" {
		return nil, fmt.Errorf("newsapi error %s: %s", parsed.Code, parsed.Message)
	}

	result := make([]domain.Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		result = append(result, domain.Article{
			Title:       a.Title,
			URL:         a.URL,
			Description: a.Description,
			PublishedAt: a.PublishedAt,
			Author:      a.Author,
			Source:      a.Source.Name,
			URLToImage:  a.URLToImage,
			Content:     a.Content,
			Topic:       q.Topic,
		})
	}
	return result, nil
}
