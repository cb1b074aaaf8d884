package booking

import (
	"context"
	"fmt"
	"time"

	"gear-lending-api/internal/settings"
)

// Kind distinguishes immediate loans from forward-dated reservations.
type Kind string

const (
	KindLoan        Kind = "loan"
	KindReservation Kind = "reservation"
)

// Request is a raw booking submission before validation.
type Request struct {
	UserID      int64
	Role        string
	EquipmentID int64
	Kind        Kind
	StartDate   string // YYYY-MM-DD
	EndDate     string // YYYY-MM-DD
	PickupTime  string // HH:MM, optional
}

// Validated carries the parsed dates and any non-blocking warnings of a
// request that passed every rule.
type Validated struct {
	Start    time.Time
	End      time.Time
	Days     int
	Warnings []string
}

// Validator enforces the per-user, per-role submission rules, in order,
// first failure wins. Limits come from the settings provider, which
// degrades to hardcoded defaults when the settings store is unavailable.
type Validator struct {
	Settings *settings.Provider
	Store    Store
	Now      func() time.Time
}

func NewValidator(provider *settings.Provider, store Store) *Validator {
	return &Validator{Settings: provider, Store: store, Now: time.Now}
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Validate runs the rule list against a request. Every returned
// *ValidationError names the violated rule and cites the offending value;
// that specificity is the only feedback loop guiding the user to a valid
// request.
func (v *Validator) Validate(ctx context.Context, req Request) (*Validated, error) {
	cfg := v.Settings.Settings(ctx)

	// 1. Global feature toggle.
	if !cfg.BookingEnabled {
		return nil, failRule("booking_disabled", "booking is currently disabled")
	}

	// 2. Dates present and parseable.
	if req.StartDate == "" || req.EndDate == "" {
		return nil, failRule("dates_required", "start date and end date are required")
	}
	start, err := ParseDate(req.StartDate)
	if err != nil {
		return nil, failRule("dates_required", "start date %q is not a valid date (expected YYYY-MM-DD)", req.StartDate)
	}
	end, err := ParseDate(req.EndDate)
	if err != nil {
		return nil, failRule("dates_required", "end date %q is not a valid date (expected YYYY-MM-DD)", req.EndDate)
	}

	// 3. No past start; reservations are strictly forward-dated.
	today := DateOnly(v.now())
	if req.Kind == KindReservation {
		tomorrow := today.AddDate(0, 0, 1)
		if start.Before(tomorrow) {
			return nil, failRule("start_too_early", "reservations must start tomorrow or later")
		}
	} else if start.Before(today) {
		return nil, failRule("start_too_early", "start date must not be in the past")
	}

	// 4. Range ordering.
	if end.Before(start) {
		return nil, failRule("end_before_start", "end date must not be before start date")
	}

	// 5. Duration cap per role.
	limits := cfg.LimitsFor(req.Role)
	days := DurationDays(start, end)
	if days > limits.MaxDays {
		return nil, failRule("max_days",
			"requested %d days exceeds the %d-day limit for role %s", days, limits.MaxDays, req.Role)
	}

	// 6. Concurrent item cap per role, counted separately per kind.
	var active int
	if req.Kind == KindReservation {
		active, err = v.Store.CountActiveReservations(ctx, req.UserID)
	} else {
		active, err = v.Store.CountActiveLoans(ctx, req.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}
	if active >= limits.MaxItems {
		return nil, failRule("max_items",
			"you already have %d active %ss; the limit for role %s is %d", active, req.Kind, req.Role, limits.MaxItems)
	}

	// 7. Closed days. Reservations check closed weekdays and closed dates;
	// immediate loans check closed dates only. The asymmetry matches the
	// current product behavior; see DESIGN.md before unifying.
	if req.Kind == KindReservation {
		if cfg.WeekdayClosed(start.Weekday()) {
			return nil, failRule("closed_weekday", "start date falls on a closed weekday (%s)", start.Weekday())
		}
		if cfg.WeekdayClosed(end.Weekday()) {
			return nil, failRule("closed_weekday", "end date falls on a closed weekday (%s)", end.Weekday())
		}
	}
	if cfg.DateClosed(start) {
		return nil, failRule("closed_date", "start date %s falls on a closed date", start.Format(DateLayout))
	}
	if cfg.DateClosed(end) {
		return nil, failRule("closed_date", "end date %s falls on a closed date", end.Format(DateLayout))
	}

	// 8. Advance-booking window for reservations.
	if req.Kind == KindReservation && cfg.MaxAdvanceDays > 0 {
		horizon := today.AddDate(0, 0, cfg.MaxAdvanceDays)
		if start.After(horizon) {
			return nil, failRule("advance_window",
				"start date is more than %d days ahead", cfg.MaxAdvanceDays)
		}
	}

	// 9. Pickup time within operating hours, when supplied.
	if req.PickupTime != "" {
		if _, err := time.Parse(TimeLayout, req.PickupTime); err != nil {
			return nil, failRule("operating_hours", "pickup time %q is not a valid time (expected HH:MM)", req.PickupTime)
		}
		if req.PickupTime < cfg.OpeningTime || req.PickupTime > cfg.ClosingTime {
			return nil, failRule("operating_hours",
				"pickup time %s is outside operating hours (%s-%s)", req.PickupTime, cfg.OpeningTime, cfg.ClosingTime)
		}
	}

	out := &Validated{Start: start, End: end, Days: days}

	// Soft warnings: close to a cap but still allowed.
	if limits.MaxDays-days <= 1 {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("requested duration is within one day of the %d-day limit", limits.MaxDays))
	}
	if limits.MaxItems-active <= 1 {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("this booking brings you to your limit of %d concurrent %ss", limits.MaxItems, req.Kind))
	}
	return out, nil
}
