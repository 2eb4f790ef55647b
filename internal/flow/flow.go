// Package flow brackets page visits within a session and derives the session
// summary. Click and scroll figures are queries over the tracker's action log
// rather than separate counters.
package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/dom"
	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/models"
	"github.com/vincentbai/classtrace/internal/tracker"
)

// ActionLog is the read side of a tracker.
type ActionLog interface {
	ActionsSince(since time.Time, kinds ...tracker.Kind) []tracker.Action
	MaxScrollDepth() int
	ScrollDepthSince(since time.Time) int
}

// EventType names a flow event.
type EventType string

const (
	EventSessionStart   EventType = "session_start"
	EventPageView       EventType = "page_view"
	EventPageExit       EventType = "page_exit"
	EventDashboardEvent EventType = "dashboard_event"
	EventUserFlow       EventType = "user_flow"
	EventTimeOnPage     EventType = "time_on_page"
	EventSessionEnd     EventType = "session_end"
)

// Event is one sink-bound flow event.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId"`
	UserID    string         `json:"userId,omitempty"`
	UserName  string         `json:"userName,omitempty"`
	UserRole  string         `json:"userRole,omitempty"`
	Timestamp int64          `json:"timestamp"`
	URL       string         `json:"url,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Emitter delivers flow events. Implementations must not block for long and
// handle their own failures.
type Emitter interface {
	Emit(Event)
}

// PageView is one bracketed visit. EndTime and TimeSpent stay nil while the
// page is active.
type PageView struct {
	Page           string `json:"page"`
	URL            string `json:"url"`
	StartTime      int64  `json:"startTime"`
	EndTime        *int64 `json:"endTime,omitempty"`
	TimeSpent      *int64 `json:"timeSpent,omitempty"`
	MaxScrollDepth int    `json:"maxScrollDepth"`
	ClicksOnPage   int    `json:"clicksOnPage"`
}

// NavigationRecord is one page_enter or page_exit entry.
type NavigationRecord struct {
	Action    string `json:"action"`
	Page      string `json:"page"`
	Timestamp int64  `json:"timestamp"`
	TimeSpent *int64 `json:"timeSpent,omitempty"`
}

// Options configure an Aggregator.
type Options struct {
	Clock   clock.Clock
	Emitter Emitter
	// Source supplies window details for session_start and batch metadata.
	// Optional.
	Source dom.Source
}

// Aggregator owns one session.
type Aggregator struct {
	log     ActionLog
	clk     clock.Clock
	emitter Emitter
	src     dom.Source
	logger  zerolog.Logger

	mu        sync.Mutex
	sessionID string
	userID    string
	userName  string
	userRole  string
	start     time.Time
	pageViews []PageView
	nav       []NavigationRecord
	active    int // index into pageViews, -1 when idle
	// clicks and scrolls at or after countFrom belong to the active page
	countFrom time.Time
	// end of the last finalized page, unix millis; zero before the first
	lastEnd int64
}

// New starts a session reading clicks and scrolls from log.
func New(log ActionLog, opts Options) *Aggregator {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Aggregator{
		log:       log,
		clk:       opts.Clock,
		emitter:   opts.Emitter,
		src:       opts.Source,
		logger:    logging.Component("flow"),
		sessionID: "session_" + uuid.NewString(),
		start:     opts.Clock.Now(),
		active:    -1,
	}
}

// SessionID returns the session token.
func (a *Aggregator) SessionID() string { return a.sessionID }

// Identify attaches the user to the session and emits session_start.
func (a *Aggregator) Identify(userID, userName, role string) {
	if role == "" {
		role = "unknown"
	}
	a.mu.Lock()
	a.userID, a.userName, a.userRole = userID, userName, role
	data := map[string]any{}
	if a.src != nil {
		w := a.src.Window()
		data["userAgent"] = w.UserAgent
		data["screenResolution"] = fmt.Sprintf("%dx%d", w.ScreenWidth, w.ScreenHeight)
		data["viewport"] = fmt.Sprintf("%dx%d", w.InnerWidth, w.InnerHeight)
		data["referrer"] = w.Referrer
	}
	ev := a.eventLocked(EventSessionStart, data)
	a.mu.Unlock()

	a.logger.Info().Str("session_id", a.sessionID).Str("user_id", userID).Str("role", role).Msg("Session identified")
	a.emit(ev)
}

// StartPage opens a page view. An active page is finalized first.
func (a *Aggregator) StartPage(name, url string) {
	a.mu.Lock()
	var events []Event
	if ev, ok := a.endPageLocked(); ok {
		events = append(events, ev)
	}
	if url == "" && a.src != nil {
		url = a.src.Window().Path
	}
	now := a.clk.Now()
	ts := clock.Millis(now)
	a.pageViews = append(a.pageViews, PageView{Page: name, URL: url, StartTime: ts})
	a.active = len(a.pageViews) - 1
	a.countFrom = now
	if a.lastEnd != 0 && ts <= a.lastEnd {
		// the previous page already owns that millisecond
		a.countFrom = time.UnixMilli(a.lastEnd + 1)
	}
	a.nav = append(a.nav, NavigationRecord{Action: "page_enter", Page: name, Timestamp: ts})
	events = append(events, a.eventLocked(EventPageView, map[string]any{
		"page":      name,
		"url":       url,
		"startTime": ts,
	}))
	a.mu.Unlock()

	a.logger.Debug().Str("page", name).Msg("Page tracking started")
	a.emit(events...)
}

// EndPage finalizes the active page view. No-op when idle.
func (a *Aggregator) EndPage() {
	a.mu.Lock()
	ev, ok := a.endPageLocked()
	a.mu.Unlock()
	if ok {
		a.emit(ev)
	}
}

func (a *Aggregator) endPageLocked() (Event, bool) {
	if a.active < 0 {
		return Event{}, false
	}
	now := a.clk.Now()
	end := clock.Millis(now)
	pv := &a.pageViews[a.active]
	spent := end - pv.StartTime
	pv.EndTime = &end
	pv.TimeSpent = &spent
	pv.ClicksOnPage = len(a.log.ActionsSince(a.countFrom, tracker.KindClick))
	pv.MaxScrollDepth = a.log.ScrollDepthSince(a.countFrom)
	a.lastEnd = end

	exitSpent := spent
	a.nav = append(a.nav, NavigationRecord{Action: "page_exit", Page: pv.Page, Timestamp: end, TimeSpent: &exitSpent})
	ev := a.eventLocked(EventPageExit, map[string]any{
		"page":           pv.Page,
		"timeSpent":      spent,
		"maxScrollDepth": pv.MaxScrollDepth,
		"clicksOnPage":   pv.ClicksOnPage,
		"endTime":        end,
	})
	a.logger.Debug().Str("page", pv.Page).Int64("time_spent_ms", spent).Msg("Page tracking ended")
	a.active = -1
	return ev, true
}

// ActivePage returns the open page name, if any.
func (a *Aggregator) ActivePage() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active < 0 {
		return "", false
	}
	return a.pageViews[a.active].Page, true
}

// TrackDashboardEvent emits an application-level dashboard event.
func (a *Aggregator) TrackDashboardEvent(kind string, data map[string]any) {
	payload := copyData(data)
	payload["eventType"] = kind
	a.mu.Lock()
	ev := a.eventLocked(EventDashboardEvent, payload)
	a.mu.Unlock()
	a.emit(ev)
}

// TrackUserFlow emits a user_flow event with the session counters attached.
func (a *Aggregator) TrackUserFlow(flowType string, data map[string]any) {
	payload := copyData(data)
	a.mu.Lock()
	now := a.clk.Now()
	payload["flowType"] = flowType
	payload["sessionDuration"] = now.Sub(a.start).Milliseconds()
	payload["totalClicks"] = len(a.log.ActionsSince(a.start, tracker.KindClick))
	payload["maxScrollDepth"] = a.log.MaxScrollDepth()
	payload["pageViewCount"] = len(a.pageViews)
	ev := a.eventLocked(EventUserFlow, payload)
	a.mu.Unlock()
	a.emit(ev)
}

// TrackTimeOnPage emits the time spent in a section since the given instant,
// or since session start when since is zero.
func (a *Aggregator) TrackTimeOnPage(section string, since time.Time) {
	if section == "" {
		section = "page"
	}
	a.mu.Lock()
	if since.IsZero() {
		since = a.start
	}
	ev := a.eventLocked(EventTimeOnPage, map[string]any{
		"section":   section,
		"timeSpent": a.clk.Now().Sub(since).Milliseconds(),
	})
	a.mu.Unlock()
	a.emit(ev)
}

// End finalizes the active page and emits session_end carrying the summary.
func (a *Aggregator) End() Summary {
	a.mu.Lock()
	var events []Event
	if ev, ok := a.endPageLocked(); ok {
		events = append(events, ev)
	}
	s := a.summaryLocked()
	events = append(events, a.eventLocked(EventSessionEnd, map[string]any{
		"sessionDuration": s.SessionDuration,
		"totalClicks":     s.TotalClicks,
		"maxScrollDepth":  s.MaxScrollDepth,
		"pagesVisited":    s.PagesVisited,
		"behaviorPattern": s.BehaviorPattern,
		"engagementScore": s.EngagementScore,
		"mostVisitedPage": s.MostVisitedPage,
	}))
	a.mu.Unlock()

	a.logger.Info().
		Str("session_id", s.SessionID).
		Int64("duration_ms", s.SessionDuration).
		Int("clicks", s.TotalClicks).
		Str("pattern", s.BehaviorPattern).
		Msg("Session ended")
	a.emit(events...)
	return s
}

// Metadata describes the session for upload batches.
func (a *Aggregator) Metadata() models.BatchMetadata {
	a.mu.Lock()
	defer a.mu.Unlock()
	md := models.BatchMetadata{
		SessionID: a.sessionID,
		UserID:    a.userID,
		UserRole:  a.userRole,
		UserName:  a.userName,
		Timestamp: clock.Millis(a.clk.Now()),
	}
	if a.active >= 0 {
		md.URL = a.pageViews[a.active].URL
	}
	if a.src != nil {
		w := a.src.Window()
		md.UserAgent = w.UserAgent
		if md.URL == "" {
			md.URL = w.Path
		}
	}
	return md
}

func (a *Aggregator) eventLocked(typ EventType, data map[string]any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: a.sessionID,
		UserID:    a.userID,
		UserName:  a.userName,
		UserRole:  a.userRole,
		Timestamp: clock.Millis(a.clk.Now()),
		Data:      data,
	}
	if a.active >= 0 {
		ev.URL = a.pageViews[a.active].URL
	} else if a.src != nil {
		ev.URL = a.src.Window().Path
	}
	return ev
}

func (a *Aggregator) emit(events ...Event) {
	if a.emitter == nil {
		return
	}
	for _, ev := range events {
		a.emitter.Emit(ev)
	}
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	return out
}
