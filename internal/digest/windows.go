package digest

import (
	"time"

	"calbot/internal/calendar"
)

// Day returns the calendar-day window containing now, in loc.
func Day(now time.Time, loc *time.Location) calendar.Window {
	now = now.In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return calendar.Window{From: from, To: from.AddDate(0, 0, 1)}
}

// Week returns the Monday-through-Sunday window containing now, in loc.
func Week(now time.Time, loc *time.Location) calendar.Window {
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	// time.Weekday counts Sunday as 0; shift so Monday opens the week.
	back := (int(day.Weekday()) + 6) % 7
	from := day.AddDate(0, 0, -back)
	return calendar.Window{From: from, To: from.AddDate(0, 0, 7)}
}

// Lookahead returns the window polled for new events.
func Lookahead(now time.Time, span time.Duration) calendar.Window {
	return calendar.Window{From: now, To: now.Add(span)}
}
