// Package postgres provides PostgreSQL implementation of the preferences repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/preferences"
)

// Repository implements the preferences.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const preferenceColumns = `p.id, p.user_id, p.categories, p.frequency, p.email, p.is_active, p.subscription_plan,
	COALESCE(p.subscription_status, ''), COALESCE(p.stripe_customer_id, ''), COALESCE(p.subscription_id, ''),
	p.created_at, p.updated_at`

func preferenceFields(pref *domain.Preference) []any {
	return []any{
		&pref.ID,
		&pref.UserID,
		&pref.Categories,
		&pref.Frequency,
		&pref.Email,
		&pref.IsActive,
		&pref.SubscriptionPlan,
		&pref.SubscriptionStatus,
		&pref.StripeCustomerID,
		&pref.SubscriptionID,
		&pref.CreatedAt,
		&pref.UpdatedAt,
	}
}

// GetByUserID retrieves the preference of a user.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*domain.Preference, error) {
	query := `
		SELECT ` + preferenceColumns + `
		FROM newsletter_preferences p
		WHERE p.user_id = $1
	`
	var pref domain.Preference
	err := r.db.QueryRow(ctx, query, userID).Scan(preferenceFields(&pref)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, preferences.ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("get preferences by user id: %w", err)
	}
	return &pref, nil
}

// Upsert inserts or updates the preference keyed by user id. A stored
// record without categories (created by billing) is treated as new.
func (r *Repository) Upsert(ctx context.Context, pref *domain.Preference) (bool, error) {
	query := `
		WITH prev AS (
			SELECT cardinality(categories) = 0 AS blank FROM newsletter_preferences WHERE user_id = $1
		)
		INSERT INTO newsletter_preferences AS p (user_id, categories, frequency, email, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			categories = EXCLUDED.categories,
			frequency = EXCLUDED.frequency,
			email = EXCLUDED.email,
			is_active = CASE WHEN cardinality(p.categories) = 0 THEN EXCLUDED.is_active ELSE p.is_active END
		RETURNING ` + preferenceColumns + `, (p.xmax = 0 OR COALESCE((SELECT blank FROM prev), FALSE))
	`
	var created bool
	dest := append(preferenceFields(pref), &created)
	err := r.db.QueryRow(ctx, query,
		pref.UserID,
		pref.Categories,
		pref.Frequency,
		pref.Email,
		pref.IsActive,
	).Scan(dest...)
	if err != nil {
		return false, fmt.Errorf("upsert preferences: %w", err)
	}
	return created, nil
}

// SetActive updates is_active and returns the previous value alongside the new record.
func (r *Repository) SetActive(ctx context.Context, userID string, active bool) (*domain.Preference, bool, error) {
	query := `
		WITH prev AS (
			SELECT user_id, is_active FROM newsletter_preferences WHERE user_id = $1 FOR UPDATE
		)
		UPDATE newsletter_preferences p
		SET is_active = $2
		FROM prev
		WHERE p.user_id = prev.user_id
		RETURNING ` + preferenceColumns + `, prev.is_active
	`
	var pref domain.Preference
	var wasActive bool
	dest := append(preferenceFields(&pref), &wasActive)
	err := r.db.QueryRow(ctx, query, userID, active).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, preferences.ErrPreferencesNotFound
		}
		return nil, false, fmt.Errorf("set preferences active: %w", err)
	}
	return &pref, wasActive, nil
}
