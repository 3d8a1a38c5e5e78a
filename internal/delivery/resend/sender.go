// Package resend delivers email through the Resend HTTP API.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/sendly/internal/delivery"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
)

const (
	providerName   = "resend"
	defaultBaseURL = "https://api.resend.com"
	defaultTimeout = 10 * time.Second
)

// Config holds Resend sender configuration.
type Config struct {
	APIKey      string
	FromAddress string
	BaseURL     string
	Timeout     time.Duration
}

// Sender implements delivery.Sender via the Resend API.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a Resend sender. API key and from address are required.
func NewSender(config Config) (*Sender, error) {
	if config.APIKey == "" {
		return nil, errors.New("resend sender: api key is required")
	}
	if config.FromAddress == "" {
		return nil, errors.New("resend sender: from address is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type emailResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Name    string `json:"name"`
}

// Send submits one message.
func (s *Sender) Send(ctx context.Context, msg delivery.Message) (delivery.Receipt, error) {
	if err := msg.Validate(providerName); err != nil {
		return delivery.Receipt{}, err
	}

	body, err := json.Marshal(emailRequest{
		From:    s.config.FromAddress,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := strings.TrimRight(s.config.BaseURL, "/") + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return delivery.Receipt{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return delivery.Receipt{}, &delivery.Error{Provider: providerName, Retryable: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(ctx, resp)
}

func (s *Sender) handleResponse(ctx context.Context, resp *http.Response) (delivery.Receipt, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return delivery.Receipt{}, &delivery.Error{Provider: providerName, StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}

	var parsed emailResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		ctxlog.FromContext(ctx).Debug("undecodable resend response",
			"status", resp.StatusCode,
			"error", err,
		)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		ctxlog.FromContext(ctx).Debug("email accepted by resend", "message_id", parsed.ID)
		return delivery.Receipt{ID: parsed.ID, Provider: providerName}, nil
	}

	message := parsed.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	return delivery.Receipt{}, &delivery.Error{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		Err:        errors.New(message),
	}
}
