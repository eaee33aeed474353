package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"calbot/internal/storage"
	logx "calbot/pkg/logx"
)

// GoogleClient lists events from a single Google Calendar via the Calendar v3
// API. The stored oauth token is refreshed transparently and persisted back.
type GoogleClient struct {
	calendarID string
	service    *gcal.Service
	log        logx.Logger
}

type GoogleConfig struct {
	CalendarID   string
	ClientID     string
	ClientSecret string
}

func NewGoogleClient(ctx context.Context, cfg GoogleConfig, st storage.Store, log logx.Logger) (*GoogleClient, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	tok, err := LoadToken(ctx, st)
	if err != nil {
		return nil, err
	}
	oc := OAuthConfig(cfg.ClientID, cfg.ClientSecret)
	ts := newPersistingSource(oc.TokenSource(ctx, tok), st, log, tok)

	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return &GoogleClient{calendarID: cfg.CalendarID, service: svc, log: log}, nil
}

func (g *GoogleClient) Name() string { return "google" }

func (g *GoogleClient) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	var events []Event
	pageToken := ""
	for {
		call := g.service.Events.List(g.calendarID).
			TimeMin(w.From.Format(time.RFC3339)).
			TimeMax(w.To.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}

		for _, item := range res.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev := Event{ID: item.Id, Summary: item.Summary}
			ev.Start, ev.AllDay = parseEventTime(item.Start)
			ev.End, _ = parseEventTime(item.End)
			if item.Updated != "" {
				if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
					ev.LastModified = t
				}
			}
			if ev.ID == "" || ev.Start.IsZero() {
				continue
			}
			events = append(events, ev)
		}

		// The API caps a page at 250 items; a busy lookahead window
		// spans several pages.
		pageToken = res.NextPageToken
		if pageToken == "" {
			break
		}
	}
	sortEvents(events)
	return events, nil
}

func parseEventTime(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t, false
	}
	if dt.Date != "" {
		t, err := time.Parse("2006-01-02", dt.Date)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}
