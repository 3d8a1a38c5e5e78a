package domain

import (
	"strings"
	"time"
)

// Frequency is the delivery cadence chosen by a subscriber.
type Frequency string

// Supported frequencies.
const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
)

// IsValid reports whether f is one of the supported frequencies.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly:
		return true
	}
	return false
}

// Interval returns the cadence length in days. Unknown values fall back to weekly.
func (f Frequency) Interval() int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyBiweekly:
		return 14
	default:
		return 7
	}
}

// OrDefault returns f, or weekly when f is not a supported value.
func (f Frequency) OrDefault() Frequency {
	if f.IsValid() {
		return f
	}
	return FrequencyWeekly
}

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// Preference is a subscriber's newsletter configuration. One record per user.
type Preference struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Categories         []string  `json:"categories"`
	Frequency          Frequency `json:"frequency"`
	Email              string    `json:"email"`
	IsActive           bool      `json:"is_active"`
	SubscriptionPlan   Plan      `json:"subscription_plan"`
	SubscriptionStatus string    `json:"subscription_status,omitempty"`
	StripeCustomerID   string    `json:"stripe_customer_id,omitempty"`
	SubscriptionID     string    `json:"subscription_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NormalizeCategories trims topics, drops blanks and removes case-insensitive
// duplicates while keeping the first occurrence order.
func NormalizeCategories(categories []string) []string {
	seen := make(map[string]bool, len(categories))
	result := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, c)
	}
	return result
}
