// Package tracker captures user interactions from a dom.Source into an
// append-only action log and derives summaries and behavior patterns from it.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/dom"
	"github.com/vincentbai/classtrace/internal/logging"
)

// Forwarder receives every appended action, outside the tracker lock.
type Forwarder interface {
	RecordAction(Action)
	Flush()
}

// Options configure a Tracker. Zero values pick the defaults below.
type Options struct {
	Clock clock.Clock
	// ScrollThrottle is the minimum spacing between processed scroll events
	// that do not raise the max depth. Zero disables throttling.
	ScrollThrottle time.Duration
	// HoverTTL drops open hover records older than this. Zero keeps them
	// until Clear or Stop.
	HoverTTL time.Duration
	// TickInterval drives time-on-page bookkeeping. Zero disables the tick
	// goroutine; Tick can still be called directly.
	TickInterval  time.Duration
	RecentActions int
	Forwarder     Forwarder
}

const defaultRecentActions = 20

// SessionData is the time-tracking state updated on every tick.
type SessionData struct {
	TotalTime    int64 `json:"totalTime"` // millis since Start
	PageVisits   int   `json:"pageVisits"`
	LastActivity int64 `json:"lastActivity"` // unix millis
}

// Tracker owns one action log. All methods are safe for concurrent use.
type Tracker struct {
	src  dom.Source
	clk  clock.Clock
	opts Options
	log  zerolog.Logger

	mu         sync.Mutex
	tracking   bool
	listeners  []dom.ListenerID
	observer   dom.ObserverID
	stopTick   context.CancelFunc
	tickDone   chan struct{}
	pageStart  time.Time
	lastStamp  int64
	actions    []Action
	scroll     ScrollState
	limiter    *rate.Limiter
	hovers     map[hoverKey]hoverRecord
	session    SessionData
	formFields map[string]FieldInfo
	fieldOrder []string
}

// New returns a stopped tracker bound to src.
func New(src dom.Source, opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.RecentActions <= 0 {
		opts.RecentActions = defaultRecentActions
	}
	t := &Tracker{
		src:  src,
		clk:  opts.Clock,
		opts: opts,
		log:  logging.Component("tracker"),
	}
	t.reset()
	return t
}

// reset clears all captured state. Caller holds mu or owns t exclusively.
func (t *Tracker) reset() {
	t.actions = nil
	t.scroll = ScrollState{Direction: DirectionNone}
	t.hovers = make(map[hoverKey]hoverRecord)
	t.formFields = make(map[string]FieldInfo)
	t.fieldOrder = nil
	t.session = SessionData{LastActivity: clock.Millis(t.clk.Now())}
	if t.opts.ScrollThrottle > 0 {
		t.limiter = rate.NewLimiter(rate.Every(t.opts.ScrollThrottle), 1)
	} else {
		t.limiter = nil
	}
}

// Start attaches every listener and the visibility observer. Calling it
// while already started does nothing.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracking {
		return
	}
	t.tracking = true
	t.pageStart = t.clk.Now()
	t.session.PageVisits++

	capture := dom.ListenOptions{Capture: true}
	for kind, h := range t.handlers() {
		t.listeners = append(t.listeners, t.src.AddListener(kind, h, capture))
	}
	// window-level listeners are not capture listeners
	t.listeners = append(t.listeners,
		t.src.AddListener(dom.EventResize, t.handleResize, dom.ListenOptions{}),
		t.src.AddListener(dom.EventBeforeUnload, t.handleBeforeUnload, dom.ListenOptions{}),
	)
	t.observer = t.src.Observe(dom.ObserveOptions{
		Thresholds: VisibilityThresholds,
		Match:      Observed,
	}, t.handleIntersections)

	if t.opts.TickInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		t.stopTick = cancel
		t.tickDone = make(chan struct{})
		go t.runTick(ctx, t.opts.TickInterval, t.tickDone)
	}
	t.log.Debug().Int("listeners", len(t.listeners)).Msg("Tracking started")
}

// Stop detaches everything attached by Start and cancels the tick. Safe to
// call repeatedly and before Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.tracking {
		t.mu.Unlock()
		return
	}
	t.tracking = false
	for _, id := range t.listeners {
		t.src.RemoveListener(id)
	}
	t.listeners = nil
	t.src.Unobserve(t.observer)
	t.observer = 0
	cancel, done := t.stopTick, t.tickDone
	t.stopTick, t.tickDone = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	t.log.Debug().Msg("Tracking stopped")
}

// IsTracking reports whether the tracker is started.
func (t *Tracker) IsTracking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracking
}

func (t *Tracker) runTick(ctx context.Context, every time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Tick updates elapsed time and expires stale hover records.
func (t *Tracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking {
		return
	}
	now := t.clk.Now()
	t.session.TotalTime = now.Sub(t.pageStart).Milliseconds()
	t.session.LastActivity = clock.Millis(now)
	t.expireHoversAt(t.session.LastActivity)
}

// stamp returns a capture timestamp that never goes backwards. Caller holds mu.
func (t *Tracker) stamp() (time.Time, int64) {
	now := t.clk.Now()
	ms := clock.Millis(now)
	if ms < t.lastStamp {
		ms = t.lastStamp
	}
	t.lastStamp = ms
	return now, ms
}

// appendLocked adds a to the log. Caller holds mu.
func (t *Tracker) appendLocked(a Action) Action {
	if a.URL == "" {
		a.URL = t.src.Window().Path
	}
	t.actions = append(t.actions, a)
	return a
}

func (t *Tracker) forward(actions ...Action) {
	if t.opts.Forwarder == nil {
		return
	}
	for _, a := range actions {
		t.opts.Forwarder.RecordAction(a)
	}
}

// TrackInteraction appends an application-level action that the capture
// layer cannot see, such as an export button's semantic meaning. Ignored
// while stopped.
func (t *Tracker) TrackInteraction(kind string, data map[string]any) {
	t.mu.Lock()
	if !t.tracking || kind == "" {
		t.mu.Unlock()
		return
	}
	_, ts := t.stamp()
	payload := make(map[string]any, len(data))
	for k, v := range data {
		payload[k] = v
	}
	a := t.appendLocked(Action{Kind: Kind(kind), Timestamp: ts, Payload: payload})
	t.mu.Unlock()
	t.forward(a)
}
