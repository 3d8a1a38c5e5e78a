// Package delivery defines the outbound email contract shared by providers.
package delivery

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("message has no recipient")

// Message is one email. The destination address is passed to the provider as is.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Receipt is the provider's acknowledgement of an accepted message.
type Receipt struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// Sender delivers a single message. Implementations never retry internally.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// Error is a failed delivery.
type Error struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s delivery failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether sending the same message later may succeed.
func (e *Error) IsRetryable() bool { return e.Retryable }

// Validate checks the fields every provider needs.
func (m Message) Validate(provider string) error {
	if m.To == "" {
		return &Error{Provider: provider, Err: ErrNoRecipient}
	}
	if m.HTML == "" && m.Text == "" {
		return &Error{Provider: provider, Err: errors.New("message has no body")}
	}
	return nil
}
