package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
	"github.com/bissquit/sendly/internal/pkg/metrics"
)

const statusActive = "active"
const statusCanceled = "canceled"

var webhookEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Billing webhook events by type and result",
	},
	[]string{"type", "result"},
)

// Result describes what happened to a webhook event.
type Result struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
}

// Service applies webhook events.
type Service struct {
	repo  Repository
	plans map[string]domain.Plan
}

// NewService creates a billing service. pricePlans maps provider price ids
// to plan names.
func NewService(repo Repository, pricePlans map[string]string) *Service {
	plans := make(map[string]domain.Plan, len(pricePlans))
	for price, plan := range pricePlans {
		plans[price] = domain.Plan(plan)
	}
	return &Service{repo: repo, plans: plans}
}

// HandleEvent applies one event. Already applied event ids and unknown event
// types are acknowledged without changes.
func (s *Service) HandleEvent(ctx context.Context, event Event) (Result, error) {
	ctx = ctxlog.With(ctx, "event_id", event.ID, "event_type", event.Type)
	logger := ctxlog.FromContext(ctx)

	if event.ID == "" || event.Type == "" {
		return Result{}, ErrInvalidPayload
	}

	seen, err := s.repo.EventSeen(ctx, event.ID)
	if err != nil {
		return Result{}, fmt.Errorf("check event: %w", err)
	}
	if seen {
		logger.Info("duplicate billing event")
		webhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
		return Result{Received: true, Duplicate: true}, nil
	}

	switch event.Type {
	case EventCheckoutCompleted:
		err = s.checkoutCompleted(ctx, event)
	case EventSubscriptionUpdated:
		err = s.subscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		err = s.subscriptionDeleted(ctx, event)
	default:
		logger.Debug("billing event ignored")
		webhookEvents.WithLabelValues("other", "ignored").Inc()
		return Result{Received: true, Ignored: true}, nil
	}
	if err != nil {
		webhookEvents.WithLabelValues(event.Type, "error").Inc()
		return Result{}, err
	}

	if err := s.repo.RecordEvent(ctx, event.ID, event.Type); err != nil {
		return Result{}, fmt.Errorf("record event: %w", err)
	}
	webhookEvents.WithLabelValues(event.Type, "applied").Inc()
	return Result{Received: true}, nil
}

func (s *Service) checkoutCompleted(ctx context.Context, event Event) error {
	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	userID := session.UserID()
	if userID == "" {
		return ErrMissingUser
	}

	update := CheckoutUpdate{
		UserID:         userID,
		Email:          session.Email(),
		Plan:           s.planFor(ctx, session.Metadata["price_id"]),
		Status:         statusActive,
		CustomerID:     session.Customer,
		SubscriptionID: session.Subscription,
	}
	if err := s.repo.ApplyCheckout(ctx, update); err != nil {
		return fmt.Errorf("apply checkout: %w", err)
	}

	ctxlog.FromContext(ctx).Info("checkout applied", "user_id", userID)
	return nil
}

func (s *Service) subscriptionUpdated(ctx context.Context, event Event) error {
	var sub Subscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription id is empty", ErrInvalidPayload)
	}

	update := SubscriptionUpdate{Plan: s.planFor(ctx, sub.PriceID())}
	if sub.Status != "" {
		update.Status = &sub.Status
	}
	return s.updateSubscription(ctx, sub.ID, update)
}

func (s *Service) subscriptionDeleted(ctx context.Context, event Event) error {
	var sub Subscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if sub.ID == "" {
		return fmt.Errorf("%w: subscription id is empty", ErrInvalidPayload)
	}

	free := domain.PlanFree
	canceled := statusCanceled
	return s.updateSubscription(ctx, sub.ID, SubscriptionUpdate{
		Plan:              &free,
		Status:            &canceled,
		ClearSubscription: true,
	})
}

func (s *Service) updateSubscription(ctx context.Context, subscriptionID string, update SubscriptionUpdate) error {
	updated, err := s.repo.UpdateSubscription(ctx, subscriptionID, update)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if updated == 0 {
		ctxlog.FromContext(ctx).Warn("no subscriber for subscription", "subscription_id", subscriptionID)
	}
	return nil
}

func (s *Service) planFor(ctx context.Context, priceID string) *domain.Plan {
	if priceID == "" {
		return nil
	}
	plan, ok := s.plans[priceID]
	if !ok {
		ctxlog.FromContext(ctx).Warn("unmapped price id, keeping plan", "price_id", priceID)
		return nil
	}
	return &plan
}
