package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults applied when optional fields are omitted.
const (
	DefaultDailyAt     = "07:30"
	DefaultWeeklyDay   = "monday"
	DefaultWeeklyAt    = "18:00"
	DefaultPollEvery   = 60 * time.Second
	DefaultLookahead   = 28 * 24 * time.Hour
	DefaultRetention   = 45 * 24 * time.Hour
	DefaultMinInterval = time.Second
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lowercase English weekday name; empty means Monday.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		name = DefaultWeeklyDay
	}
	wd, ok := weekdays[name]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return wd, nil
}

// Validate checks cross-field consistency. It never mutates cfg; readers
// apply the documented defaults where fields are empty.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if cfg.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id is required"))
	}
	if _, err := ParseDurationField("telegram.min_interval", cfg.Telegram.MinInterval); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.Retries < 0 {
		errs = append(errs, errors.New("telegram.retries must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Calendar.Provider)) {
	case "google":
		if strings.TrimSpace(cfg.Calendar.CalendarID) == "" {
			errs = append(errs, errors.New("calendar.calendar_id is required for the google provider"))
		}
		if strings.TrimSpace(cfg.Calendar.ClientID) == "" || strings.TrimSpace(cfg.Calendar.ClientSecret) == "" {
			errs = append(errs, errors.New("calendar.client_id and calendar.client_secret are required for the google provider"))
		}
	case "ics":
		url := strings.TrimSpace(cfg.Calendar.ICSURL)
		if url == "" {
			errs = append(errs, errors.New("calendar.ics_url is required for the ics provider"))
		} else if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			errs = append(errs, fmt.Errorf("calendar.ics_url %q must be an http(s) URL", url))
		}
	case "":
		errs = append(errs, errors.New("calendar.provider is required (google or ics)"))
	default:
		errs = append(errs, fmt.Errorf("calendar.provider %q is not supported (google or ics)", cfg.Calendar.Provider))
	}

	lookahead, err := ParseDurationOrDefault("calendar.lookahead", cfg.Calendar.Lookahead, DefaultLookahead)
	if err != nil {
		errs = append(errs, err)
	}

	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		}
	}
	if cfg.Schedule.Daily.Enabled {
		if err := validTimeOfDay("schedule.daily.at", cfg.Schedule.Daily.At, DefaultDailyAt); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Schedule.Weekly.Enabled {
		if _, err := ParseWeekday(cfg.Schedule.Weekly.Weekday); err != nil {
			errs = append(errs, fmt.Errorf("schedule.weekly.weekday: %w", err))
		}
		if err := validTimeOfDay("schedule.weekly.at", cfg.Schedule.Weekly.At, DefaultWeeklyAt); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Schedule.Poll.Enabled {
		every, err := ParseDurationOrDefault("schedule.poll.every", cfg.Schedule.Poll.Every, DefaultPollEvery)
		if err != nil {
			errs = append(errs, err)
		} else if every < 10*time.Second {
			errs = append(errs, errors.New("schedule.poll.every must be at least 10s"))
		}
	}

	retention, err := ParseDurationOrDefault("dedup.retention", cfg.Dedup.Retention, DefaultRetention)
	if err != nil {
		errs = append(errs, err)
	} else if lookahead > 0 && retention < lookahead {
		// A retention shorter than the poll window can evict an event that
		// is still visible, which would announce it twice.
		errs = append(errs, fmt.Errorf("dedup.retention (%s) must be at least calendar.lookahead (%s)", retention, lookahead))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported (sqlite or file)", cfg.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validTimeOfDay(path, raw, def string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = def
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return fmt.Errorf("%s: invalid time %q (want HH:MM)", path, raw)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("%s: invalid time %q (want HH:MM)", path, raw)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%s: invalid time %q (want HH:MM)", path, raw)
	}
	return nil
}
