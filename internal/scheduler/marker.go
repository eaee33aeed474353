package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"calbot/internal/storage"
)

const markerPrefix = "marker:"

func markerKey(task string) string { return markerPrefix + task }

// loadMarker returns the persisted last-fired instant for a task, or zero if
// the task has never fired.
func loadMarker(ctx context.Context, st storage.Store, task string) (time.Time, error) {
	b, ok, err := st.Get(ctx, markerKey(task))
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, nil
	}
	var m RunMarker
	if err := json.Unmarshal(b, &m); err != nil {
		// A corrupt marker is treated as absent: firing once more is the
		// safe direction for digests (at-least-once).
		return time.Time{}, nil
	}
	return m.LastFiredAt, nil
}

func saveMarker(ctx context.Context, st storage.Store, task string, firedAt time.Time) error {
	b, err := json.Marshal(RunMarker{Task: task, LastFiredAt: firedAt})
	if err != nil {
		return err
	}
	return st.Set(ctx, markerKey(task), b, 0)
}
