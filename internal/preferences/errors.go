package preferences

import "errors"

// Repository errors.
var (
	ErrPreferencesNotFound = errors.New("preferences not found")
)

// Validation errors.
var (
	ErrNoCategories     = errors.New("at least one category is required")
	ErrInvalidFrequency = errors.New("frequency must be one of: daily, weekly, biweekly")
	ErrInvalidEmail     = errors.New("email must contain @")
	ErrNotActive        = errors.New("newsletter is paused")
)
