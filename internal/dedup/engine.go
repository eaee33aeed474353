// Package dedup keeps track of already-notified calendar events so a poll
// cycle only surfaces genuinely new ones. Seen keys persist across restarts;
// filtering and committing are split so the caller can commit only after
// the notification actually went out.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/storage"
	logx "calbot/pkg/logx"
)

// Config controls key policy and seen-set retention.
type Config struct {
	// Retention is how long a seen entry outlives its event's end before
	// eviction. It must exceed the poll lookahead window, otherwise a
	// still-visible event could be evicted and notified twice.
	Retention time.Duration

	// RenotifyOnUpdate folds the event's last-modified stamp into the seen
	// key, so an updated event counts as new again.
	RenotifyOnUpdate bool
}

const defaultRetention = 45 * 24 * time.Hour

// Engine filters event batches against a persisted seen set, one set per
// scope (calendar).
type Engine struct {
	store storage.Store
	log   logx.Logger
	cfg   Config
}

func New(cfg Config, st storage.Store, log logx.Logger) *Engine {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{store: st, log: log, cfg: cfg}
}

func seenStoreKey(scope string) string { return "seen:" + scope }

// Key returns the dedup identity of an event under the configured policy.
func (e *Engine) Key(ev calendar.Event) string {
	if e.cfg.RenotifyOnUpdate && !ev.LastModified.IsZero() {
		return ev.ID + "|" + ev.LastModified.UTC().Format(time.RFC3339)
	}
	return ev.ID
}

// seenSet maps a dedup key to the event's end instant, which drives
// retention eviction.
type seenSet map[string]time.Time

func (e *Engine) load(ctx context.Context, scope string) (seenSet, error) {
	b, ok, err := e.store.Get(ctx, seenStoreKey(scope))
	if err != nil {
		return nil, fmt.Errorf("load seen set %q: %w", scope, err)
	}
	if !ok {
		return seenSet{}, nil
	}
	var set seenSet
	if err := json.Unmarshal(b, &set); err != nil {
		// Refuse to guess: an unreadable set could hide already-notified
		// events, and guessing "all new" would spam every subscriber.
		return nil, fmt.Errorf("seen set %q corrupt: %w", scope, err)
	}
	if set == nil {
		set = seenSet{}
	}
	return set, nil
}

func (e *Engine) save(ctx context.Context, scope string, set seenSet) error {
	b, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, seenStoreKey(scope), b, 0)
}

// FilterNew returns the events not yet committed for scope, ordered by start
// time then ID. It never adds to the seen set; repeated calls without an
// intervening Commit return the same events.
//
// Any store read error fails the whole call. The poll simply retries next
// tick; suppressing a batch beats double-sending one.
//
// Entries whose event ended more than the retention window ago are evicted
// here. The shrunken set is persisted best-effort; if the write fails the
// eviction happens again next call.
func (e *Engine) FilterNew(ctx context.Context, events []calendar.Event, scope string, now time.Time) ([]calendar.Event, error) {
	set, err := e.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	if evicted := evictExpired(set, now, e.cfg.Retention); evicted > 0 {
		if err := e.save(ctx, scope, set); err != nil {
			e.log.Warn("seen set eviction not persisted",
				logx.String("scope", scope), logx.Int("evicted", evicted), logx.Err(err))
		} else {
			e.log.Debug("seen set evicted expired entries",
				logx.String("scope", scope), logx.Int("evicted", evicted))
		}
	}

	var fresh []calendar.Event
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		if _, seen := set[e.Key(ev)]; seen {
			continue
		}
		fresh = append(fresh, ev)
	}

	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].Start.Equal(fresh[j].Start) {
			return fresh[i].Start.Before(fresh[j].Start)
		}
		return fresh[i].ID < fresh[j].ID
	})
	return fresh, nil
}

// Commit marks events as notified for scope. Call it only after delivery
// succeeded; a crash between delivery and Commit re-sends at most that one
// batch.
func (e *Engine) Commit(ctx context.Context, events []calendar.Event, scope string) error {
	if len(events) == 0 {
		return nil
	}
	set, err := e.load(ctx, scope)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		end := ev.End
		if end.IsZero() {
			end = ev.Start
		}
		set[e.Key(ev)] = end
	}
	if err := e.save(ctx, scope, set); err != nil {
		return fmt.Errorf("commit seen set %q: %w", scope, err)
	}
	return nil
}

// Forget drops the whole seen set for a scope.
func (e *Engine) Forget(ctx context.Context, scope string) error {
	return e.store.Delete(ctx, seenStoreKey(scope))
}

func evictExpired(set seenSet, now time.Time, retention time.Duration) int {
	evicted := 0
	for k, end := range set {
		if end.IsZero() {
			continue
		}
		if end.Add(retention).Before(now) {
			delete(set, k)
			evicted++
		}
	}
	return evicted
}
