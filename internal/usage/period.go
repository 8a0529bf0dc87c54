package usage

import "time"

// Period returns the calendar-month label (YYYY-MM, UTC) containing t.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ResetAt returns the first instant of the UTC month after t.
func ResetAt(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
