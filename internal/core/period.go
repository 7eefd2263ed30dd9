package core

import "time"

// Period selects the time window a report covers. Cutoffs are computed in
// the local time zone of the supplied reference instant.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodThisWeek  Period = "this_week"
	PeriodThisMonth Period = "this_month"
	PeriodThisYear  Period = "this_year"
	PeriodAll       Period = "all"
)

// valid reports whether p is one of the defined periods.
func (p Period) valid() bool {
	switch p {
	case PeriodToday, PeriodThisWeek, PeriodThisMonth, PeriodThisYear, PeriodAll:
		return true
	}
	return false
}

// Cutoff returns the inclusive lower bound of the period relative to now.
// ok is false for PeriodAll (and unknown periods), meaning no bound.
// Weeks start on Monday.
func (p Period) Cutoff(now time.Time) (cutoff time.Time, ok bool) {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch p {
	case PeriodToday:
		return startOfDay, true
	case PeriodThisWeek:
		weekday := int(now.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return startOfDay.AddDate(0, 0, -(weekday - 1)), true
	case PeriodThisMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()), true
	case PeriodThisYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

// Contains reports whether an instant t falls inside the period as seen
// from now. The lower bound is inclusive.
func (p Period) Contains(now, t time.Time) bool {
	cutoff, ok := p.Cutoff(now)
	if !ok {
		return true
	}
	return !t.Before(cutoff)
}
