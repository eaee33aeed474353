package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind enumerates the supported schedule shapes.
type ScheduleKind int

const (
	KindDaily ScheduleKind = iota
	KindWeekly
	KindInterval
	KindCron
)

func (k ScheduleKind) String() string {
	switch k {
	case KindDaily:
		return "daily"
	case KindWeekly:
		return "weekly"
	case KindInterval:
		return "interval"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// TimeOfDay is a wall-clock HH:MM in the scheduler timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// Schedule is a tagged variant; exactly the fields for its Kind are set.
type Schedule struct {
	Kind    ScheduleKind
	At      TimeOfDay     // daily, weekly
	Weekday time.Weekday  // weekly
	Every   time.Duration // interval

	cronSched cron.Schedule // cron
	cronSpec  string
}

// Daily fires once a day at the given wall-clock time.
func Daily(at TimeOfDay) Schedule {
	return Schedule{Kind: KindDaily, At: at}
}

// Weekly fires once a week on the given weekday at the given wall-clock time.
func Weekly(weekday time.Weekday, at TimeOfDay) Schedule {
	return Schedule{Kind: KindWeekly, Weekday: weekday, At: at}
}

// Every fires at a fixed interval; the first fire is immediate when there is
// no persisted run marker.
func Every(interval time.Duration) Schedule {
	return Schedule{Kind: KindInterval, Every: interval}
}

// Cron fires per a standard 5-field cron expression, evaluated in the
// scheduler timezone.
func Cron(spec string) (Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Schedule{}, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return Schedule{Kind: KindCron, cronSched: sched, cronSpec: spec}, nil
}

func (s Schedule) String() string {
	switch s.Kind {
	case KindDaily:
		return "daily@" + s.At.String()
	case KindWeekly:
		return fmt.Sprintf("weekly@%s %s", s.Weekday, s.At)
	case KindInterval:
		return "every " + s.Every.String()
	case KindCron:
		return "cron " + s.cronSpec
	default:
		return "unknown"
	}
}

// Task couples a named schedule with its handler. Handlers for distinct
// tasks run concurrently; a second fire of the same task is skipped while a
// previous run is still in flight.
type Task struct {
	Name     string
	Schedule Schedule
	Handler  func(ctx context.Context) error
}

// RunMarker records the last successful fire of a task. It is persisted only
// after the handler returns nil, so a failed run retries at the next tick.
type RunMarker struct {
	Task        string    `json:"task"`
	LastFiredAt time.Time `json:"last_fired_at"`
}
