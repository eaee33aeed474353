// Package app assembles the bot: configuration, storage, the calendar
// client, the Telegram notifier, and the scheduled digest and poll tasks.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/component"
	"calbot/internal/config"
	"calbot/internal/dedup"
	"calbot/internal/notify"
	rtsup "calbot/internal/runtime/supervisor"
	"calbot/internal/scheduler"
	"calbot/internal/storage"
	logx "calbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	comps *component.Manager
	sup   *rtsup.Supervisor

	store    storage.Store
	cal      calendar.Client
	notifier notify.Notifier
	sched    *scheduler.Service
	dedup    *dedup.Engine

	lookahead time.Duration
}

// New loads and validates the config and prepares the component graph.
// Nothing touches the network until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:  cfgm,
		logs:  logs,
		log:   log,
		comps: component.NewManager(log.With(logx.String("comp", "lifecycle"))),
	}
	if err := a.register(cfg); err != nil {
		logs.Close()
		return nil, err
	}
	return a, nil
}

// register wires the component graph in dependency order: storage first,
// then the calendar client and notifier, then the scheduler tasks.
func (a *App) register(cfg *config.Config) error {
	if err := a.comps.Register(component.Funcs{
		ComponentName: "storage",
		InitFunc: func(ctx context.Context) error {
			busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
			if err != nil {
				return err
			}
			st, err := storage.Open(storage.Config{
				Driver:      cfg.Storage.Driver,
				Path:        cfg.Storage.Path,
				BusyTimeout: busy,
			}, a.log.With(logx.String("comp", "storage")))
			if err != nil {
				return err
			}
			a.store = st
			return nil
		},
		ShutdownFunc: func(ctx context.Context) error {
			if a.store == nil {
				return nil
			}
			return a.store.Close()
		},
	}); err != nil {
		return err
	}

	if err := a.comps.Register(component.Funcs{
		ComponentName: "calendar",
		InitFunc: func(ctx context.Context) error {
			cal, err := a.buildCalendar(ctx, cfg.Calendar)
			if err != nil {
				return err
			}
			a.cal = cal
			return nil
		},
	}); err != nil {
		return err
	}

	if err := a.comps.Register(component.Funcs{
		ComponentName: "notifier",
		InitFunc: func(ctx context.Context) error {
			minInterval, err := config.ParseDurationOrDefault(
				"telegram.min_interval", cfg.Telegram.MinInterval, config.DefaultMinInterval)
			if err != nil {
				return err
			}
			tg, err := notify.NewTelegram(notify.Config{
				Token:       cfg.Telegram.Token,
				ChatID:      cfg.Telegram.ChatID,
				MinInterval: minInterval,
				Retries:     cfg.Telegram.Retries,
			}, a.log.With(logx.String("comp", "notify")))
			if err != nil {
				return err
			}
			a.notifier = tg
			return nil
		},
	}); err != nil {
		return err
	}

	return a.comps.Register(component.Funcs{
		ComponentName: "scheduler",
		InitFunc: func(ctx context.Context) error {
			return a.buildScheduler(cfg)
		},
	})
}

func (a *App) buildCalendar(ctx context.Context, cfg config.CalendarConfig) (calendar.Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "google":
		return calendar.NewGoogleClient(ctx, calendar.GoogleConfig{
			CalendarID:   cfg.CalendarID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		}, a.store, a.log.With(logx.String("comp", "calendar")))
	case "ics":
		return calendar.NewICSClient(cfg.ICSURL, a.log.With(logx.String("comp", "calendar")))
	default:
		return nil, fmt.Errorf("calendar provider %q is not supported", cfg.Provider)
	}
}

func (a *App) buildScheduler(cfg *config.Config) error {
	lookahead, err := config.ParseDurationOrDefault(
		"calendar.lookahead", cfg.Calendar.Lookahead, config.DefaultLookahead)
	if err != nil {
		return err
	}
	a.lookahead = lookahead

	retention, err := config.ParseDurationOrDefault(
		"dedup.retention", cfg.Dedup.Retention, config.DefaultRetention)
	if err != nil {
		return err
	}
	a.dedup = dedup.New(dedup.Config{
		Retention:        retention,
		RenotifyOnUpdate: cfg.Dedup.RenotifyOnUpdate,
	}, a.store, a.log.With(logx.String("comp", "dedup")))

	sched, err := scheduler.New(scheduler.Config{
		Timezone: cfg.Schedule.Timezone,
	}, a.store, a.log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return err
	}
	a.sched = sched

	return a.registerTasks(cfg.Schedule)
}

// Start brings all components up, then launches the scheduler loop and the
// config watcher. A failed init rolls back and returns the error.
func (a *App) Start(ctx context.Context) error {
	if err := a.comps.InitAll(ctx); err != nil {
		return err
	}

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.sup.Go("scheduler.run", func(c context.Context) error {
		return a.sched.Run(c)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.log.Info("started")
	return nil
}

// reloadLoop applies hot-reloadable config changes. Logging applies live;
// everything else needs a restart and is only reported.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeChange(last, cfg)
			last = cfg
			if len(sections) == 0 {
				continue
			}

			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})

			var restart []string
			for _, s := range sections {
				if s != "logging" {
					restart = append(restart, s)
				}
			}
			if len(restart) > 0 {
				a.log.Warn("config sections changed that need a restart to apply",
					logx.String("sections", strings.Join(restart, ",")))
			}
			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		}
	}
}

// Done is closed when the supervisor context ends, either through Stop or a
// fatal component error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop unwinds the app: background loops first, then components in reverse
// init order, then the log sinks.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("background loops did not stop cleanly", logx.Err(err))
		}
	}

	err := a.comps.ShutdownAll(ctx)
	if err != nil {
		a.log.Error("shutdown finished with errors", logx.Err(err))
	} else {
		a.log.Info("stopped")
	}
	a.logs.Close()
	return err
}
