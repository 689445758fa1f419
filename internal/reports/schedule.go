package reports

import "time"

// NextDaily returns the next 00:01 in loc after now, matching the daily
// summary schedule.
func NextDaily(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 1, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// NextWeekly returns the next Monday 09:00 in loc after now, matching the
// inactive-tenant follow-up schedule.
func NextWeekly(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 9, 0, 0, 0, loc)

	daysAhead := (int(time.Monday) - int(local.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, daysAhead)
	if !next.After(local) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
