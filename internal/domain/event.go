package domain

import "time"

// ScheduleEventName is the name carried by every schedule event.
const ScheduleEventName = "newsletter.schedule"

// ScheduleEvent asks for one newsletter run. Events are immutable once enqueued.
type ScheduleEvent struct {
	EventName    string     `json:"eventName"`
	UserID       string     `json:"userId"`
	Email        string     `json:"email"`
	Categories   []string   `json:"categories"`
	Frequency    Frequency  `json:"frequency"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	IsTest       bool       `json:"isTest"`
}

// NewScheduleEvent builds an event for the given preference.
func NewScheduleEvent(pref *Preference, scheduledFor time.Time, isTest bool) ScheduleEvent {
	at := scheduledFor
	categories := make([]string, len(pref.Categories))
	copy(categories, pref.Categories)
	return ScheduleEvent{
		EventName:    ScheduleEventName,
		UserID:       pref.UserID,
		Email:        pref.Email,
		Categories:   categories,
		Frequency:    pref.Frequency,
		ScheduledFor: &at,
		IsTest:       isTest,
	}
}
