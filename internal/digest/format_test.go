package digest

import (
	"strings"
	"testing"
	"time"

	"calbot/internal/calendar"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func ev(id, summary string, start time.Time) calendar.Event {
	return calendar.Event{ID: id, Summary: summary, Start: start, End: start.Add(time.Hour)}
}

func TestDayWindow(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2024, 6, 12, 14, 30, 0, 0, loc)

	w := Day(now, loc)
	if want := time.Date(2024, 6, 12, 0, 0, 0, 0, loc); !w.From.Equal(want) {
		t.Fatalf("From = %v, want %v", w.From, want)
	}
	if want := time.Date(2024, 6, 13, 0, 0, 0, 0, loc); !w.To.Equal(want) {
		t.Fatalf("To = %v, want %v", w.To, want)
	}
	if !w.Contains(now) {
		t.Fatal("window does not contain now")
	}
	if w.Contains(w.To) {
		t.Fatal("window upper bound must be exclusive")
	}
}

func TestWeekWindowStartsMonday(t *testing.T) {
	loc := berlin(t)
	tests := []struct {
		name string
		now  time.Time
	}{
		{"wednesday", time.Date(2024, 6, 12, 14, 0, 0, 0, loc)},
		{"monday itself", time.Date(2024, 6, 10, 0, 0, 0, 0, loc)},
		{"sunday", time.Date(2024, 6, 16, 23, 59, 0, 0, loc)},
	}
	wantFrom := time.Date(2024, 6, 10, 0, 0, 0, 0, loc)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Week(tt.now, loc)
			if !w.From.Equal(wantFrom) {
				t.Fatalf("From = %v, want %v", w.From, wantFrom)
			}
			if w.From.Weekday() != time.Monday {
				t.Fatalf("week starts on %v", w.From.Weekday())
			}
			if got := w.To.Sub(w.From); got != 7*24*time.Hour {
				t.Fatalf("week span = %v", got)
			}
		})
	}
}

func TestDailyRendersSortedAgenda(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2024, 6, 12, 7, 0, 0, 0, loc)

	events := []calendar.Event{
		ev("2", "Standup", time.Date(2024, 6, 12, 9, 30, 0, 0, loc)),
		ev("1", "Gym", time.Date(2024, 6, 12, 7, 0, 0, 0, loc)),
	}
	out := Daily(events, now, loc)

	if !strings.Contains(out, "Today, Wednesday, 12 June") {
		t.Fatalf("missing day header:\n%s", out)
	}
	gym := strings.Index(out, "Gym")
	standup := strings.Index(out, "Standup")
	if gym == -1 || standup == -1 || gym > standup {
		t.Fatalf("events missing or out of order:\n%s", out)
	}
	if !strings.Contains(out, "07:00") || !strings.Contains(out, "09:30") {
		t.Fatalf("missing start times:\n%s", out)
	}
}

func TestDailyEmptyRendersNothing(t *testing.T) {
	loc := berlin(t)
	if out := Daily(nil, time.Now(), loc); out != "" {
		t.Fatalf("empty agenda rendered %q", out)
	}
}

func TestDailyShowsAllDayEvents(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2024, 6, 12, 7, 0, 0, 0, loc)
	e := ev("1", "Public holiday", time.Date(2024, 6, 12, 0, 0, 0, 0, loc))
	e.AllDay = true

	out := Daily([]calendar.Event{e}, now, loc)
	if !strings.Contains(out, "all day") {
		t.Fatalf("all-day marker missing:\n%s", out)
	}
}

func TestDailyEscapesHTML(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2024, 6, 12, 7, 0, 0, 0, loc)
	e := ev("1", "<script>1on1 & review</script>", now)

	out := Daily([]calendar.Event{e}, now, loc)
	if strings.Contains(out, "<script>") {
		t.Fatalf("summary not escaped:\n%s", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") || !strings.Contains(out, "&amp;") {
		t.Fatalf("expected escaped entities:\n%s", out)
	}
}

func TestWeeklyGroupsByDay(t *testing.T) {
	loc := berlin(t)
	week := Week(time.Date(2024, 6, 12, 0, 0, 0, 0, loc), loc)

	events := []calendar.Event{
		ev("1", "Planning", time.Date(2024, 6, 10, 10, 0, 0, 0, loc)),
		ev("2", "Retro", time.Date(2024, 6, 14, 16, 0, 0, 0, loc)),
		ev("3", "Review", time.Date(2024, 6, 14, 11, 0, 0, 0, loc)),
	}
	out := Weekly(events, week, loc)

	if !strings.Contains(out, "Week of 10 Jun") || !strings.Contains(out, "16 Jun") {
		t.Fatalf("missing week header:\n%s", out)
	}
	mon := strings.Index(out, "Monday, 10 June")
	fri := strings.Index(out, "Friday, 14 June")
	if mon == -1 || fri == -1 || mon > fri {
		t.Fatalf("day groups missing or out of order:\n%s", out)
	}
	// Friday's two events sort by start time under the one Friday header.
	review := strings.Index(out, "Review")
	retro := strings.Index(out, "Retro")
	if review == -1 || retro == -1 || review > retro {
		t.Fatalf("events within a day out of order:\n%s", out)
	}
	if strings.Count(out, "Friday, 14 June") != 1 {
		t.Fatalf("day header duplicated:\n%s", out)
	}
}

func TestWeeklyEmptyRendersNothing(t *testing.T) {
	loc := berlin(t)
	week := Week(time.Now(), loc)
	if out := Weekly(nil, week, loc); out != "" {
		t.Fatalf("empty week rendered %q", out)
	}
}

func TestNewEventsHeaderAgreesWithCount(t *testing.T) {
	loc := berlin(t)
	start := time.Date(2024, 6, 12, 10, 0, 0, 0, loc)

	one := NewEvents([]calendar.Event{ev("1", "Dentist", start)}, loc)
	if !strings.Contains(one, "<b>New event</b>") || strings.Contains(one, "New events") {
		t.Fatalf("singular header wrong:\n%s", one)
	}

	many := NewEvents([]calendar.Event{
		ev("1", "Dentist", start),
		ev("2", "Dinner", start.Add(8*time.Hour)),
	}, loc)
	if !strings.Contains(many, "New events") {
		t.Fatalf("plural header wrong:\n%s", many)
	}
	if out := NewEvents(nil, loc); out != "" {
		t.Fatalf("empty announcement rendered %q", out)
	}
}

func TestUntitledEventsGetPlaceholder(t *testing.T) {
	loc := berlin(t)
	now := time.Date(2024, 6, 12, 7, 0, 0, 0, loc)
	out := Daily([]calendar.Event{ev("1", "  ", now)}, now, loc)
	if !strings.Contains(out, "(untitled)") {
		t.Fatalf("placeholder missing:\n%s", out)
	}
}
