package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "calbot/internal/runtime/supervisor"
	"calbot/internal/storage"
	logx "calbot/pkg/logx"
)

// Config controls the scheduling loop.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means UTC

	// Grace bounds how long Stop waits for in-flight handlers.
	Grace time.Duration
}

const (
	// maxSleep caps a single timer wait so the loop re-evaluates fire times
	// periodically; this keeps it honest across clock skew and DST shifts.
	maxSleep = 5 * time.Minute

	// storeRetry is the wake interval used when the marker store is
	// unreachable and due-ness cannot be decided.
	storeRetry = 30 * time.Second
)

type taskState struct {
	task    Task
	running atomic.Bool

	// next is the cached fire target, written only by the run loop. It is
	// advanced when an attempt is dispatched, not when it succeeds, so a
	// failing handler retries at its normal next tick instead of spinning.
	// Zero means recompute from the persisted marker.
	next time.Time

	// markerFails counts consecutive marker persistence failures; a task
	// whose completion can never be recorded re-fires every tick, which
	// deserves escalation but never a crash.
	markerFails int
}

// Service drives all registered tasks from a single loop with one timer.
// Handlers run on supervised goroutines so a slow handler never delays
// another task's wake check.
type Service struct {
	mu    sync.Mutex
	log   logx.Logger
	cfg   Config
	loc   *time.Location
	store storage.Store
	tasks []*taskState
	wake  chan struct{}

	now func() time.Time // test hook
}

func New(cfg Config, st storage.Store, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone %q: %w", tz, err)
		}
		loc = l
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 10 * time.Second
	}
	return &Service{
		log:   log,
		cfg:   cfg,
		loc:   loc,
		store: st,
		wake:  make(chan struct{}, 1),
		now:   time.Now,
	}, nil
}

// Location returns the scheduler timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Register adds a task. Names must be unique; registering while Run is
// active wakes the loop so the new task is considered immediately.
func (s *Service) Register(t Task) error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("task name required")
	}
	if t.Handler == nil {
		return errors.New("task handler required")
	}
	s.mu.Lock()
	for _, st := range s.tasks {
		if st.task.Name == t.Name {
			s.mu.Unlock()
			return fmt.Errorf("task %q already registered", t.Name)
		}
	}
	s.tasks = append(s.tasks, &taskState{task: t})
	s.mu.Unlock()

	s.log.Info("task registered",
		logx.String("task", t.Name),
		logx.String("schedule", t.Schedule.String()))

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run blocks until ctx is cancelled, sleeping until the earliest next fire
// across all tasks and firing every task whose time has arrived. In-flight
// handlers get a bounded grace period after cancellation.
func (s *Service) Run(ctx context.Context) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(s.log))
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))

	for {
		sleep := s.fireDue(ctx, sup)

		timer.Reset(sleep)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			return s.drain(sup)
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}
	}
}

// drain waits for in-flight handlers up to the configured grace period.
func (s *Service) drain(sup *rtsup.Supervisor) error {
	n := sup.Active()
	if n > 0 {
		s.log.Info("waiting for in-flight handlers", logx.Int64("count", n), logx.Duration("grace", s.cfg.Grace))
	}
	wctx, cancel := context.WithTimeout(context.Background(), s.cfg.Grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("handlers did not drain in time", logx.Err(err))
	}
	s.log.Info("scheduler stopped")
	return nil
}

// fireDue fires every due task and returns how long to sleep until the next
// wake. It never blocks on handler execution.
func (s *Service) fireDue(ctx context.Context, sup *rtsup.Supervisor) time.Duration {
	now := s.now().In(s.loc)
	sleep := maxSleep

	s.mu.Lock()
	tasks := make([]*taskState, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	for _, ts := range tasks {
		// Cooperative cancellation: checked before each fire.
		if ctx.Err() != nil {
			return time.Second
		}

		target := ts.next
		if target.IsZero() {
			marker, err := loadMarker(ctx, s.store, ts.task.Name)
			if err != nil {
				s.log.Warn("run marker unreadable; deferring task",
					logx.String("task", ts.task.Name), logx.Err(err))
				if storeRetry < sleep {
					sleep = storeRetry
				}
				continue
			}
			target = ts.task.Schedule.Next(now, s.loc, marker)
			ts.next = target
		}
		if target.After(now) {
			if d := target.Sub(now); d < sleep {
				sleep = d
			}
			continue
		}

		if !ts.running.CompareAndSwap(false, true) {
			s.log.Debug("previous run still in flight; skipping tick",
				logx.String("task", ts.task.Name))
			// Re-check soon rather than waiting a full schedule period.
			if time.Second < sleep {
				sleep = time.Second
			}
			continue
		}

		due := target
		if ts.task.Schedule.Kind == KindInterval && due.Before(now) {
			// A backed-up marker (downtime, or a handler that kept
			// failing) yields one catch-up fire anchored at the attempt
			// time, never a rapid replay of every missed interval.
			due = now
		}
		// Advance the target as if this attempt lands. A failed handler
		// leaves the marker untouched but still waits out a full tick.
		ts.next = ts.task.Schedule.Next(now, s.loc, due)

		task := ts
		fireAt := due
		sup.Go0("task."+ts.task.Name, func(c context.Context) {
			defer task.running.Store(false)
			s.runOnce(c, task, fireAt)
		})

		if d := ts.next.Sub(now); d > 0 && d < sleep {
			sleep = d
		}
	}

	if sleep < 10*time.Millisecond {
		sleep = 10 * time.Millisecond
	}
	return sleep
}

// runOnce executes a single fire: re-check the marker immediately before the
// handler (a restart between the scheduled instant and marker persistence
// must not produce a second fire once the marker lands), run the handler,
// and persist the marker only on success.
func (s *Service) runOnce(ctx context.Context, ts *taskState, due time.Time) {
	name := ts.task.Name

	marker, err := loadMarker(ctx, s.store, name)
	if err != nil {
		s.log.Warn("pre-fire marker check failed; skipping fire",
			logx.String("task", name), logx.Err(err))
		return
	}
	if !due.After(marker) {
		s.log.Debug("fire already recorded; skipping", logx.String("task", name), logx.Time("due", due))
		return
	}

	start := s.now()
	s.log.Info("task firing", logx.String("task", name), logx.Time("due", due))

	if err := ts.task.Handler(ctx); err != nil {
		// Marker stays untouched so the task retries at its normal next
		// tick (at-least-once for digests; dedup gives per-event
		// at-most-once).
		s.log.Error("task failed; will retry at next tick",
			logx.String("task", name),
			logx.Duration("took", s.now().Sub(start)),
			logx.Err(err))
		return
	}

	if err := saveMarker(ctx, s.store, name, due); err != nil {
		s.mu.Lock()
		ts.markerFails++
		fails := ts.markerFails
		s.mu.Unlock()
		if fails > 1 {
			s.log.Error("run marker persistence keeps failing; task will re-fire every tick",
				logx.String("task", name), logx.Int("consecutive", fails), logx.Err(err))
		} else {
			s.log.Warn("run marker persist failed", logx.String("task", name), logx.Err(err))
		}
		return
	}
	s.mu.Lock()
	ts.markerFails = 0
	s.mu.Unlock()

	s.log.Info("task completed",
		logx.String("task", name),
		logx.Duration("took", s.now().Sub(start)))
}
