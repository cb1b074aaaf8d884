package booking

import "time"

// DateLayout is the wire format for booking dates.
const DateLayout = "2006-01-02"

// TimeLayout is the wire format for pickup/return times of day.
const TimeLayout = "15:04"

// DateOnly strips the time-of-day component; all booking comparisons work
// on calendar dates.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a date-only time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(t), nil
}

// DurationDays is the inclusive day count of a range: same-day start/end
// counts as 1 day.
func DurationDays(start, end time.Time) int {
	return int(DateOnly(end).Sub(DateOnly(start)).Hours()/24) + 1
}

// Overlaps reports whether two inclusive date ranges intersect. Boundary
// touches count as overlap: a return date equal to another booking's pickup
// date conflicts rather than allowing a same-day handoff race.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !DateOnly(aStart).After(DateOnly(bEnd)) && !DateOnly(aEnd).Before(DateOnly(bStart))
}
