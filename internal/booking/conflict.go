package booking

import (
	"context"
	"fmt"
	"time"
)

// Checker decides at submission time whether a requested booking may
// proceed. It is a best-effort early rejection for user feedback; the
// database overlap constraint remains the final authority, so a failed
// check query must propagate as an error rather than allow the booking.
type Checker struct {
	store Store
}

func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// TimeConflict reports whether any non-terminal booking on the equipment
// intersects the requested inclusive date range.
func (c *Checker) TimeConflict(ctx context.Context, equipmentID int64, start, end time.Time) (bool, error) {
	reservations, err := c.store.ActiveReservationsForEquipment(ctx, equipmentID)
	if err != nil {
		return false, fmt.Errorf("fetch active reservations: %w", err)
	}
	for _, r := range reservations {
		if Overlaps(r.StartDate, r.EndDate, start, end) {
			return true, nil
		}
	}

	loans, err := c.store.ActiveLoansForEquipment(ctx, equipmentID)
	if err != nil {
		return false, fmt.Errorf("fetch active loans: %w", err)
	}
	for _, l := range loans {
		if Overlaps(l.StartDate, l.EndDate, start, end) {
			return true, nil
		}
	}
	return false, nil
}

// TypeConflict reports whether the user already holds a non-terminal
// booking for equipment of the same category as the requested unit, across
// all physical units of that category.
func (c *Checker) TypeConflict(ctx context.Context, userID, equipmentID int64) (bool, error) {
	eq, err := c.store.EquipmentByID(ctx, equipmentID)
	if err != nil {
		return false, fmt.Errorf("fetch equipment: %w", err)
	}
	holds, err := c.store.UserHoldsCategory(ctx, userID, eq.CategoryID)
	if err != nil {
		return false, fmt.Errorf("check category holdings: %w", err)
	}
	return holds, nil
}
