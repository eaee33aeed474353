package config

// Config is the full on-disk configuration. YAML and JSON are both accepted;
// YAML is coerced to JSON before the strict decode, so unknown keys are
// rejected in either format.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Calendar CalendarConfig `json:"calendar"`
	Schedule ScheduleConfig `json:"schedule"`
	Dedup    DedupConfig    `json:"dedup,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`

	// MinInterval spaces consecutive sends (Go duration string).
	MinInterval string `json:"min_interval,omitempty"`
	Retries     int    `json:"retries,omitempty"`
}

// CalendarConfig selects and configures the event source.
//
// provider "google" reads the calendar API with OAuth credentials;
// provider "ics" polls a published iCalendar URL.
type CalendarConfig struct {
	Provider string `json:"provider"`

	// Google provider fields.
	CalendarID   string `json:"calendar_id,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	// ICS provider field.
	ICSURL string `json:"ics_url,omitempty"`

	// Lookahead bounds the window polled for new events (Go duration
	// string). Defaults to 28 days.
	Lookahead string `json:"lookahead,omitempty"`
}

type ScheduleConfig struct {
	// Timezone is the IANA zone all wall-clock times below resolve in.
	Timezone string `json:"timezone,omitempty"`

	Daily  DailyConfig  `json:"daily"`
	Weekly WeeklyConfig `json:"weekly"`
	Poll   PollConfig   `json:"poll"`
}

type DailyConfig struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at,omitempty"` // "HH:MM", default "07:30"
}

type WeeklyConfig struct {
	Enabled bool   `json:"enabled"`
	Weekday string `json:"weekday,omitempty"` // default "monday"
	At      string `json:"at,omitempty"`      // default "18:00"
}

type PollConfig struct {
	Enabled bool   `json:"enabled"`
	Every   string `json:"every,omitempty"` // Go duration string, default "60s"
}

type DedupConfig struct {
	// Retention is how long seen entries outlive their event's end (Go
	// duration string). Must not be shorter than calendar.lookahead.
	Retention string `json:"retention,omitempty"`

	// RenotifyOnUpdate announces an event again when its last-modified
	// stamp changes.
	RenotifyOnUpdate bool `json:"renotify_on_update,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "sqlite" (default) or "file"
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
