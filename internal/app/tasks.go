package app

import (
	"context"
	"fmt"
	"time"

	"calbot/internal/config"
	"calbot/internal/digest"
	"calbot/internal/scheduler"
	logx "calbot/pkg/logx"
)

// registerTasks maps the schedule config onto scheduler tasks. Disabled
// kinds are simply not registered.
func (a *App) registerTasks(cfg config.ScheduleConfig) error {
	if cfg.Daily.Enabled {
		at, err := scheduler.ParseTimeOfDay(orDefault(cfg.Daily.At, config.DefaultDailyAt))
		if err != nil {
			return fmt.Errorf("schedule.daily.at: %w", err)
		}
		if err := a.sched.Register(scheduler.Task{
			Name:     "digest.daily",
			Schedule: scheduler.Daily(at),
			Handler:  a.runDailyDigest,
		}); err != nil {
			return err
		}
	}

	if cfg.Weekly.Enabled {
		weekday, err := config.ParseWeekday(cfg.Weekly.Weekday)
		if err != nil {
			return fmt.Errorf("schedule.weekly.weekday: %w", err)
		}
		at, err := scheduler.ParseTimeOfDay(orDefault(cfg.Weekly.At, config.DefaultWeeklyAt))
		if err != nil {
			return fmt.Errorf("schedule.weekly.at: %w", err)
		}
		if err := a.sched.Register(scheduler.Task{
			Name:     "digest.weekly",
			Schedule: scheduler.Weekly(weekday, at),
			Handler:  a.runWeeklyDigest,
		}); err != nil {
			return err
		}
	}

	if cfg.Poll.Enabled {
		every, err := config.ParseDurationOrDefault(
			"schedule.poll.every", cfg.Poll.Every, config.DefaultPollEvery)
		if err != nil {
			return err
		}
		if err := a.sched.Register(scheduler.Task{
			Name:     "events.poll",
			Schedule: scheduler.Every(every),
			Handler:  a.runNewEventsPoll,
		}); err != nil {
			return err
		}
	}

	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// runDailyDigest sends today's agenda. A day without events sends nothing.
func (a *App) runDailyDigest(ctx context.Context) error {
	loc := a.sched.Location()
	now := time.Now().In(loc)

	events, err := a.cal.ListEvents(ctx, digest.Day(now, loc))
	if err != nil {
		return fmt.Errorf("daily digest: %w", err)
	}
	text := digest.Daily(events, now, loc)
	if text == "" {
		a.log.Debug("daily digest empty; nothing to send")
		return nil
	}
	if err := a.notifier.Send(ctx, text); err != nil {
		return fmt.Errorf("daily digest: %w", err)
	}
	a.log.Info("daily digest sent", logx.Int("events", len(events)))
	return nil
}

// runWeeklyDigest sends the Monday-through-Sunday overview of the current
// week. An empty week sends nothing.
func (a *App) runWeeklyDigest(ctx context.Context) error {
	loc := a.sched.Location()
	week := digest.Week(time.Now(), loc)

	events, err := a.cal.ListEvents(ctx, week)
	if err != nil {
		return fmt.Errorf("weekly digest: %w", err)
	}
	text := digest.Weekly(events, week, loc)
	if text == "" {
		a.log.Debug("weekly digest empty; nothing to send")
		return nil
	}
	if err := a.notifier.Send(ctx, text); err != nil {
		return fmt.Errorf("weekly digest: %w", err)
	}
	a.log.Info("weekly digest sent", logx.Int("events", len(events)))
	return nil
}

// runNewEventsPoll announces events that appeared since the last poll.
// The seen set is committed only after the announcement went out, so a
// crash in between re-sends at most one batch and never drops one.
func (a *App) runNewEventsPoll(ctx context.Context) error {
	loc := a.sched.Location()
	now := time.Now()
	scope := a.cal.Name()

	events, err := a.cal.ListEvents(ctx, digest.Lookahead(now, a.lookahead))
	if err != nil {
		return fmt.Errorf("poll events: %w", err)
	}

	fresh, err := a.dedup.FilterNew(ctx, events, scope, now)
	if err != nil {
		return fmt.Errorf("poll events: %w", err)
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := a.notifier.Send(ctx, digest.NewEvents(fresh, loc)); err != nil {
		return fmt.Errorf("poll events: %w", err)
	}
	if err := a.dedup.Commit(ctx, fresh, scope); err != nil {
		return fmt.Errorf("poll events: %w", err)
	}
	a.log.Info("new events announced", logx.Int("count", len(fresh)))
	return nil
}
