package newsletter

import (
	"context"
	"errors"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/pkg/ctxlog"
	"github.com/bissquit/sendly/internal/preferences"
)

// Gate skip reasons.
const (
	ReasonNotFound     = "preferences_not_found"
	ReasonCheckFailed  = "status_check_failed"
	ReasonPaused       = "newsletter_paused"
	ReasonNoCategories = "no_categories"
)

// PreferenceReader reads the current preference record of a user.
type PreferenceReader interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Preference, error)
}

// GateResult is the outcome of the activity check.
type GateResult struct {
	Active     bool             `json:"active"`
	Frequency  domain.Frequency `json:"frequency,omitempty"`
	Categories []string         `json:"categories,omitempty"`
	Email      string           `json:"email,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Gate decides whether a run may proceed. It fails closed.
type Gate struct {
	prefs PreferenceReader
}

// NewGate creates a gate over the preference store.
func NewGate(prefs PreferenceReader) *Gate {
	return &Gate{prefs: prefs}
}

// Check reads the stored preference. The stored frequency, categories and
// email are returned because they are fresher than the triggering event.
func (g *Gate) Check(ctx context.Context, userID string) GateResult {
	logger := ctxlog.FromContext(ctx)

	pref, err := g.prefs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, preferences.ErrPreferencesNotFound) {
			logger.Info("no preferences stored, skipping run", "user_id", userID)
			return GateResult{Reason: ReasonNotFound}
		}
		logger.Error("status check failed, skipping run", "user_id", userID, "error", err)
		return GateResult{Reason: ReasonCheckFailed}
	}

	if !pref.IsActive {
		return GateResult{Reason: ReasonPaused}
	}
	if len(pref.Categories) == 0 {
		return GateResult{Reason: ReasonNoCategories}
	}

	return GateResult{
		Active:     true,
		Frequency:  pref.Frequency.OrDefault(),
		Categories: pref.Categories,
		Email:      pref.Email,
	}
}
