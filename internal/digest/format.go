// Package digest renders calendar events into the Telegram messages the bot
// sends: a daily agenda, a weekly overview, and new-event announcements.
// Output uses Telegram HTML parse mode; all user-controlled text is escaped.
package digest

import (
	"html"
	"sort"
	"strings"
	"time"

	"calbot/internal/calendar"
)

const (
	dayHeaderFormat    = "Monday, 2 January"
	weekRangeFormat    = "2 Jan"
	eventTimeFormat    = "15:04"
	allDayLabel        = "all day"
	noTitlePlaceholder = "(untitled)"
)

// Daily renders the agenda for the day containing now. Empty input renders
// an empty string; the caller sends nothing in that case.
func Daily(events []calendar.Event, now time.Time, loc *time.Location) string {
	if len(events) == 0 {
		return ""
	}
	events = sorted(events)

	var b strings.Builder
	b.WriteString("<b>Today, " + now.In(loc).Format(dayHeaderFormat) + "</b>\n")
	for _, ev := range events {
		b.WriteByte('\n')
		b.WriteString(eventLine(ev, loc))
	}
	return b.String()
}

// Weekly renders the Monday-through-Sunday overview for the given window,
// grouped by day. Days without events are omitted; a week without events
// renders an empty string.
func Weekly(events []calendar.Event, week calendar.Window, loc *time.Location) string {
	if len(events) == 0 {
		return ""
	}
	events = sorted(events)

	var b strings.Builder
	b.WriteString("<b>Week of " + week.From.In(loc).Format(weekRangeFormat) +
		" – " + week.To.AddDate(0, 0, -1).In(loc).Format(weekRangeFormat) + "</b>\n")

	var currentDay string
	for _, ev := range events {
		day := ev.Start.In(loc).Format(dayHeaderFormat)
		if day != currentDay {
			currentDay = day
			b.WriteString("\n<b>" + day + "</b>\n")
		}
		b.WriteString(eventLine(ev, loc))
	}
	return b.String()
}

// NewEvents announces freshly discovered events. Empty input renders an
// empty string.
func NewEvents(events []calendar.Event, loc *time.Location) string {
	if len(events) == 0 {
		return ""
	}
	events = sorted(events)

	var b strings.Builder
	if len(events) == 1 {
		b.WriteString("<b>New event</b>\n")
	} else {
		b.WriteString("<b>New events</b>\n")
	}
	for _, ev := range events {
		b.WriteByte('\n')
		b.WriteString(ev.Start.In(loc).Format("Mon, 2 Jan"))
		b.WriteByte(' ')
		b.WriteString(eventLine(ev, loc))
	}
	return b.String()
}

func eventLine(ev calendar.Event, loc *time.Location) string {
	title := strings.TrimSpace(ev.Summary)
	if title == "" {
		title = noTitlePlaceholder
	}
	title = html.EscapeString(title)

	if ev.AllDay {
		return "• " + allDayLabel + " — " + title + "\n"
	}
	return "• " + ev.Start.In(loc).Format(eventTimeFormat) + " — " + title + "\n"
}

func sorted(events []calendar.Event) []calendar.Event {
	out := append([]calendar.Event(nil), events...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
