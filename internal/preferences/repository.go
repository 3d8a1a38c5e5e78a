// Package preferences manages subscriber newsletter preferences.
package preferences

import (
	"context"

	"github.com/bissquit/sendly/internal/domain"
)

// Repository stores one preference record per user.
type Repository interface {
	// GetByUserID returns ErrPreferencesNotFound when the user has no record.
	GetByUserID(ctx context.Context, userID string) (*domain.Preference, error)
	// Upsert inserts pref or replaces categories, frequency and email of the
	// existing record. is_active is only written on insert, or over a record
	// without categories, which billing creates inactive. Billing fields are
	// never touched. pref is refreshed from the stored row; created reports
	// an insert or the first save over such a record.
	Upsert(ctx context.Context, pref *domain.Preference) (created bool, err error)
	// SetActive flips is_active and returns the updated record with the previous value.
	SetActive(ctx context.Context, userID string, active bool) (pref *domain.Preference, wasActive bool, err error)
}
