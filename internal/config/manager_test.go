package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
telegram:
  token: "123:abc"
  chat_id: -100200300
calendar:
  provider: ics
  ics_url: "https://example.org/cal.ics"
schedule:
  timezone: Europe/Berlin
  daily:
    enabled: true
    at: "07:30"
  weekly:
    enabled: true
    weekday: monday
    at: "18:00"
  poll:
    enabled: true
    every: 60s
dedup:
  retention: 1080h
storage:
  driver: sqlite
  path: ./calbot.db
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != -100200300 {
		t.Errorf("chat_id = %d", cfg.Telegram.ChatID)
	}
	if cfg.Calendar.Provider != "ics" {
		t.Errorf("provider = %q", cfg.Calendar.Provider)
	}
	if cfg.Schedule.Daily.At != "07:30" {
		t.Errorf("daily.at = %q", cfg.Schedule.Daily.At)
	}
	if got := m.Get(); got != cfg {
		t.Error("Get() did not return the committed config")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	bad := validYAML + "\nsurprise_section:\n  x: 1\n"
	m := NewManager(writeConfig(t, "config.yaml", bad))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level key accepted")
	}

	bad = strings.Replace(validYAML, "chat_id:", "chat_idd:", 1)
	m = NewManager(writeConfig(t, "config.yaml", bad))
	if _, err := m.Load(); err == nil {
		t.Fatal("misspelled key accepted")
	}
}

func TestLoadRejectsTrailingJSON(t *testing.T) {
	m := NewManager(writeConfig(t, "config.json", `{"telegram":{"token":"t","chat_id":1},"calendar":{"provider":"ics","ics_url":"https://x/c.ics"},"schedule":{"daily":{"enabled":false},"weekly":{"enabled":false},"poll":{"enabled":false}},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}}}{}`))
	if _, err := m.Load(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestValidateCatchesFieldErrors(t *testing.T) {
	base := func() *Config {
		m := NewManager(writeConfig(t, "config.yaml", validYAML))
		cfg, err := m.Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = " " }},
		{"missing chat", func(c *Config) { c.Telegram.ChatID = 0 }},
		{"bad provider", func(c *Config) { c.Calendar.Provider = "caldav" }},
		{"ics without url", func(c *Config) { c.Calendar.ICSURL = "" }},
		{"google without credentials", func(c *Config) {
			c.Calendar.Provider = "google"
			c.Calendar.CalendarID = "primary"
		}},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"bad daily time", func(c *Config) { c.Schedule.Daily.At = "25:00" }},
		{"bad weekday", func(c *Config) { c.Schedule.Weekly.Weekday = "funday" }},
		{"poll too frequent", func(c *Config) { c.Schedule.Poll.Every = "1s" }},
		{"retention below lookahead", func(c *Config) {
			c.Calendar.Lookahead = "672h"
			c.Dedup.Retention = "24h"
		}},
		{"bad storage driver", func(c *Config) { c.Storage.Driver = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestParseWeekday(t *testing.T) {
	if wd, err := ParseWeekday(""); err != nil || wd != time.Monday {
		t.Fatalf("empty weekday = %v, %v; want Monday", wd, err)
	}
	if wd, err := ParseWeekday("  Sunday "); err != nil || wd != time.Sunday {
		t.Fatalf("sunday = %v, %v", wd, err)
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Fatal("bad weekday accepted")
	}
}

func TestSummarizeChange(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	oldCfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	newCfg := *oldCfg
	newCfg.Logging.Level = "debug"
	newCfg.Schedule.Poll.Every = "120s"

	changed, _ := SummarizeChange(oldCfg, &newCfg)
	if len(changed) != 2 || changed[0] != "logging" || changed[1] != "schedule" {
		t.Fatalf("changed = %v, want [logging schedule]", changed)
	}

	if changed, _ := SummarizeChange(oldCfg, oldCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported change: %v", changed)
	}
}

func TestReloadKeepsLastGoodConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", validYAML)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Break the file on disk, then trigger the internal reload directly.
	if err := os.WriteFile(path, []byte("telegram: {token: ''}"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload()
	if got := m.Get(); got != cfg {
		t.Fatal("invalid reload replaced the committed config")
	}

	// A valid change commits and publishes.
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)
	good := strings.Replace(validYAML, "level: info", "level: debug", 1)
	if err := os.WriteFile(path, []byte(good), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload()

	select {
	case next := <-sub:
		if next.Logging.Level != "debug" {
			t.Fatalf("published level = %q", next.Logging.Level)
		}
	default:
		t.Fatal("valid reload did not publish")
	}
	if m.Get() == cfg {
		t.Fatal("valid reload did not commit")
	}
}
