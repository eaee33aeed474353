package calendar

import (
	"context"
	"errors"
	"time"
)

var ErrNoToken = errors.New("calendar: no stored oauth token")

// Event is a single calendar entry, immutable once fetched. ID is the
// provider-stable identifier used for deduplication.
type Event struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	LastModified time.Time `json:"last_modified,omitempty"`
	AllDay       bool      `json:"all_day,omitempty"`
}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Client lists events from an external calendar source. Implementations must
// return a consistent snapshot for the given window; any error (auth, rate
// limit, network) is reported uniformly and the caller skips the cycle.
type Client interface {
	Name() string
	ListEvents(ctx context.Context, w Window) ([]Event, error)
}
