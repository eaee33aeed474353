package config

import (
	"sort"
	"strings"

	logx "calbot/pkg/logx"
)

// SummarizeChange reports which config sections differ plus structured
// attributes safe for logging. Secrets (tokens, client credentials) are only
// ever surfaced as set/unset booleans.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.chat_set", newCfg.Telegram.ChatID != 0),
			logx.String("telegram.min_interval", strings.TrimSpace(newCfg.Telegram.MinInterval)),
			logx.Int("telegram.retries", newCfg.Telegram.Retries),
		)
	}

	if oldCfg.Calendar != newCfg.Calendar {
		changed = append(changed, "calendar")
		attrs = append(attrs,
			logx.String("calendar.provider", strings.TrimSpace(newCfg.Calendar.Provider)),
			logx.Bool("calendar.credentials_set", strings.TrimSpace(newCfg.Calendar.ClientSecret) != ""),
			logx.String("calendar.lookahead", strings.TrimSpace(newCfg.Calendar.Lookahead)),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
			logx.Bool("schedule.daily", newCfg.Schedule.Daily.Enabled),
			logx.Bool("schedule.weekly", newCfg.Schedule.Weekly.Enabled),
			logx.Bool("schedule.poll", newCfg.Schedule.Poll.Enabled),
		)
	}

	if oldCfg.Dedup != newCfg.Dedup {
		changed = append(changed, "dedup")
		attrs = append(attrs,
			logx.String("dedup.retention", strings.TrimSpace(newCfg.Dedup.Retention)),
			logx.Bool("dedup.renotify_on_update", newCfg.Dedup.RenotifyOnUpdate),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
