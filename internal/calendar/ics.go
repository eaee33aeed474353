package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	logx "calbot/pkg/logx"
)

// ICSClient lists events from an ICS subscription URL. Conditional requests
// (ETag / Last-Modified) reuse the last parsed body on 304.
//
// Recurring events are NOT expanded: an RRULE-bearing VEVENT contributes only
// its first instance. Feeds that matter here (team calendars) rarely recur,
// and server-side expansion is available through the Google provider.
type ICSClient struct {
	url  string
	http *http.Client
	log  logx.Logger

	mu           sync.Mutex
	etag         string
	lastModified string
	cached       []Event
}

func NewICSClient(url string, log logx.Logger) (*ICSClient, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("ics url is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ICSClient{
		url:  url,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}, nil
}

func (c *ICSClient) Name() string { return "ics" }

func (c *ICSClient) ListEvents(ctx context.Context, w Window) ([]Event, error) {
	all, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(all))
	for _, ev := range all {
		if w.Contains(ev.Start) {
			events = append(events, ev)
		}
	}
	sortEvents(events)
	return events, nil
}

func (c *ICSClient) fetch(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	if c.lastModified != "" {
		req.Header.Set("If-Modified-Since", c.lastModified)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ics fetch: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ics read: %w", err)
		}
		events, err := ParseICS(body)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.etag = resp.Header.Get("ETag")
		c.lastModified = resp.Header.Get("Last-Modified")
		c.cached = events
		c.mu.Unlock()
		return events, nil

	case http.StatusNotModified:
		c.mu.Lock()
		cached := c.cached
		c.mu.Unlock()
		c.log.Debug("ics not modified; using cached snapshot", logx.Int("events", len(cached)))
		return cached, nil

	default:
		return nil, fmt.Errorf("ics fetch: unexpected status %d", resp.StatusCode)
	}
}

// ParseICS parses an ICS payload into events. VEVENTs without UID or DTSTART
// are skipped rather than failing the whole feed.
func ParseICS(body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics parse: %w", err)
	}

	events := make([]Event, 0)
	for _, ve := range cal.Events() {
		ev, ok := parseVEvent(ve)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (Event, bool) {
	var ev Event

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, false
	}
	ev.ID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil || start.IsZero() {
		return ev, false
	}
	ev.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		ev.End = end
	}
	if ev.End.IsZero() {
		ev.End = ev.Start
	}

	ev.AllDay = isAllDay(ve)

	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		if t, err := time.Parse("20060102T150405Z", p.Value); err == nil {
			ev.LastModified = t
		}
	}
	return ev, true
}

func isAllDay(ve *ical.VEvent) bool {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return false
	}
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}
