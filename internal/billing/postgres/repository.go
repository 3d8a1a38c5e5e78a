// Package postgres provides PostgreSQL implementation of the billing repository.
package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/sendly/internal/billing"
)

// Repository implements the billing.Repository interface using PostgreSQL.
type Repository struct {
	db      *pgxpool.Pool
	builder sq.StatementBuilderType
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EventSeen reports whether the event id was recorded.
func (r *Repository) EventSeen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM billing_webhook_events WHERE event_id = $1)
	`, eventID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return seen, nil
}

// RecordEvent stores the event id.
func (r *Repository) RecordEvent(ctx context.Context, eventID, eventType string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO billing_webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// ApplyCheckout upserts subscription fields. A subscriber without saved
// preferences gets an inactive record with no categories; the first
// preference save activates it.
func (r *Repository) ApplyCheckout(ctx context.Context, update billing.CheckoutUpdate) error {
	columns := []string{"user_id", "email", "is_active", "subscription_status", "stripe_customer_id", "subscription_id"}
	values := []any{
		update.UserID,
		update.Email,
		false,
		update.Status,
		nullIfEmpty(update.CustomerID),
		nullIfEmpty(update.SubscriptionID),
	}
	conflict := `ON CONFLICT (user_id) DO UPDATE SET
		subscription_status = EXCLUDED.subscription_status,
		stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, newsletter_preferences.stripe_customer_id),
		subscription_id = COALESCE(EXCLUDED.subscription_id, newsletter_preferences.subscription_id)`
	if update.Plan != nil {
		columns = append(columns, "subscription_plan")
		values = append(values, string(*update.Plan))
		conflict += `,
		subscription_plan = EXCLUDED.subscription_plan`
	}

	query, args, err := r.builder.
		Insert("newsletter_preferences").
		Columns(columns...).
		Values(values...).
		Suffix(conflict).
		ToSql()
	if err != nil {
		return fmt.Errorf("build checkout query: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("apply checkout: %w", err)
	}
	return nil
}

// UpdateSubscription updates the subscriber owning subscriptionID.
func (r *Repository) UpdateSubscription(ctx context.Context, subscriptionID string, update billing.SubscriptionUpdate) (int64, error) {
	stmt := r.builder.
		Update("newsletter_preferences").
		Where(sq.Eq{"subscription_id": subscriptionID})

	changed := false
	if update.Plan != nil {
		stmt = stmt.Set("subscription_plan", string(*update.Plan))
		changed = true
	}
	if update.Status != nil {
		stmt = stmt.Set("subscription_status", *update.Status)
		changed = true
	}
	if update.ClearSubscription {
		stmt = stmt.Set("subscription_id", nil)
		changed = true
	}
	if !changed {
		return 0, nil
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build subscription query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update subscription: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
