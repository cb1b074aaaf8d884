package models

import "time"

// RoleLimits caps booking duration and concurrent items for one role.
type RoleLimits struct {
	MaxDays  int `json:"max_days"`
	MaxItems int `json:"max_items"`
}

// Settings is the singleton record of operating parameters. It gates every
// booking validation rule and is always read through a provider that falls
// back to Defaults() when the settings row is slow or unavailable.
type Settings struct {
	BookingEnabled bool                  `json:"booking_enabled"`
	OpeningTime    string                `json:"opening_time"` // HH:MM
	ClosingTime    string                `json:"closing_time"` // HH:MM
	ClosedWeekdays []time.Weekday        `json:"closed_weekdays"`
	ClosedDates    []string              `json:"closed_dates"` // YYYY-MM-DD
	MaxAdvanceDays int                   `json:"max_advance_days"`
	Limits         map[string]RoleLimits `json:"limits"` // keyed by role
	UpdatedAt      time.Time             `json:"updated_at"`
}

// DefaultSettings returns the hardcoded conservative fallback used when the
// settings store cannot be reached within the configured timeout.
func DefaultSettings() Settings {
	return Settings{
		BookingEnabled: true,
		OpeningTime:    "08:00",
		ClosingTime:    "17:00",
		ClosedWeekdays: []time.Weekday{time.Saturday, time.Sunday},
		ClosedDates:    nil,
		MaxAdvanceDays: 30,
		Limits: map[string]RoleLimits{
			RoleStudent:  {MaxDays: 3, MaxItems: 2},
			RoleLecturer: {MaxDays: 7, MaxItems: 3},
			RoleStaff:    {MaxDays: 7, MaxItems: 5},
		},
	}
}

// LimitsFor returns the limits for a role, falling back to the staff limits
// for admin and to student limits for anything unknown.
func (s Settings) LimitsFor(role string) RoleLimits {
	if l, ok := s.Limits[role]; ok {
		return l
	}
	if role == RoleAdmin {
		if l, ok := s.Limits[RoleStaff]; ok {
			return l
		}
	}
	return DefaultSettings().Limits[RoleStudent]
}

// WeekdayClosed reports whether the given weekday is configured closed.
func (s Settings) WeekdayClosed(d time.Weekday) bool {
	for _, wd := range s.ClosedWeekdays {
		if wd == d {
			return true
		}
	}
	return false
}

// DateClosed reports whether the given calendar date is configured closed.
func (s Settings) DateClosed(t time.Time) bool {
	key := t.Format("2006-01-02")
	for _, d := range s.ClosedDates {
		if d == key {
			return true
		}
	}
	return false
}

// UpdateSettingsRequest is the request body for admin settings updates.
type UpdateSettingsRequest struct {
	BookingEnabled *bool                 `json:"booking_enabled,omitempty"`
	OpeningTime    *string               `json:"opening_time,omitempty"`
	ClosingTime    *string               `json:"closing_time,omitempty"`
	ClosedWeekdays []int                 `json:"closed_weekdays,omitempty"`
	ClosedDates    []string              `json:"closed_dates,omitempty"`
	MaxAdvanceDays *int                  `json:"max_advance_days,omitempty"`
	Limits         map[string]RoleLimits `json:"limits,omitempty"`
}
