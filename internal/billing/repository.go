// Package billing applies payment provider webhook events to subscriber plans.
package billing

import (
	"context"

	"github.com/bissquit/sendly/internal/domain"
)

// CheckoutUpdate is written when a checkout completes. A nil Plan keeps the
// stored plan.
type CheckoutUpdate struct {
	UserID         string
	Email          string
	Plan           *domain.Plan
	Status         string
	CustomerID     string
	SubscriptionID string
}

// SubscriptionUpdate changes the billing fields of the subscriber owning a
// subscription. Nil fields are left untouched.
type SubscriptionUpdate struct {
	Plan              *domain.Plan
	Status            *string
	ClearSubscription bool
}

// Repository stores billing state.
type Repository interface {
	// EventSeen reports whether an event id was already applied.
	EventSeen(ctx context.Context, eventID string) (bool, error)
	// RecordEvent remembers an applied event id. Recording twice is a no-op.
	RecordEvent(ctx context.Context, eventID, eventType string) error
	// ApplyCheckout upserts the subscription fields of a user.
	ApplyCheckout(ctx context.Context, update CheckoutUpdate) error
	// UpdateSubscription returns the number of preferences changed.
	UpdateSubscription(ctx context.Context, subscriptionID string, update SubscriptionUpdate) (int64, error)
}
