// Package replay drives the tracking pipeline from a recorded session.
//
// A recording is JSON lines. Every line carries "at", the offset in
// milliseconds from the start of the recording, and exactly one of:
//
//	{"at": 0,    "identify":  {"userId": "u1", "userName": "Sarah", "role": "teacher"}}
//	{"at": 10,   "window":    {"path": "/teacher", "scrollHeight": 3000, "clientHeight": 800}}
//	{"at": 20,   "navigate":  {"page": "teacher", "url": "/teacher"}}
//	{"at": 900,  "event":     {"type": "click", "target": {"tag": "button", "id": "save"}}}
//	{"at": 950,  "intersect": [{"target": {"tag": "div", "id": "chart"}, "isIntersecting": true, "intersectionRatio": 0.6}]}
//	{"at": 1000, "track":     {"kind": "chart_filter", "data": {"filter": "week"}}}
//
// Lines must be in non-decreasing "at" order. Targets with an id are the
// same element on every line; an id-less target needs an explicit "ref" to
// be matched across lines, as a hover's enter and leave must be.
package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/config"
	"github.com/vincentbai/classtrace/internal/dom"
	"github.com/vincentbai/classtrace/internal/flow"
	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/models"
	"github.com/vincentbai/classtrace/internal/stream"
	"github.com/vincentbai/classtrace/internal/tracker"
	"github.com/vincentbai/classtrace/internal/upload"
)

const maxLine = 1 << 20

// Line is one entry of a recording.
type Line struct {
	At        int64                   `json:"at"`
	Identify  *Identity               `json:"identify,omitempty"`
	Window    *dom.Window             `json:"window,omitempty"`
	Navigate  *Navigation             `json:"navigate,omitempty"`
	Event     *dom.Event              `json:"event,omitempty"`
	Intersect []dom.IntersectionEntry `json:"intersect,omitempty"`
	Track     *Tracked                `json:"track,omitempty"`
}

type Identity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

type Navigation struct {
	Page string `json:"page"`
	URL  string `json:"url"`
}

type Tracked struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data"`
}

// Options configure a replay.
type Options struct {
	Tracker config.TrackerConfig
	Sink    config.SinkConfig
	// Start is the wall time of offset zero.
	Start time.Time
	// Sender uploads batches. Nil replays offline.
	Sender upload.Sender
	Spool  upload.Spool
}

// Report is the outcome of a replay.
type Report struct {
	SessionID   string                   `json:"sessionId"`
	Lines       int                      `json:"lines"`
	Session     flow.Summary             `json:"session"`
	Actions     tracker.ActionSummary    `json:"actions"`
	Patterns    tracker.BehaviorPatterns `json:"patterns"`
	FlowEvents  map[string]int           `json:"flowEvents"`
	Undelivered int                      `json:"undelivered"`
}

// counter is the stream sink: it counts flow events by type and hands them
// on to the upload queue when there is one.
type counter struct {
	counts map[string]int
	next   stream.Sink
}

func (c *counter) RecordFlowEvent(ev flow.Event) {
	c.counts[string(ev.Type)]++
	if c.next != nil {
		c.next.RecordFlowEvent(ev)
	}
}

// Run replays r through dispatcher, tracker, flow aggregator, event stream
// and, when a sender is set, the upload queue.
func Run(ctx context.Context, r io.Reader, opts Options) (*Report, error) {
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	log := logging.Component("replay")
	clk := clock.NewManual(opts.Start)
	dispatcher := dom.NewDispatcher(dom.Window{VisibilityState: "visible"})
	sink := &counter{counts: make(map[string]int)}

	var (
		agg   *flow.Aggregator
		queue *upload.Queue
	)
	trackerOpts := tracker.Options{
		Clock:          clk,
		ScrollThrottle: opts.Tracker.ScrollThrottle,
		HoverTTL:       opts.Tracker.HoverTTL,
		RecentActions:  opts.Tracker.RecentActions,
	}
	if opts.Sender != nil {
		queue = upload.NewQueue(opts.Sender, upload.QueueConfig{
			BatchSize:   opts.Sink.BatchSize,
			MaxAttempts: opts.Sink.MaxAttempts,
			Metadata:    func() models.BatchMetadata { return agg.Metadata() },
			Spool:       opts.Spool,
		})
		sink.next = queue
		trackerOpts.Forwarder = queue
	}

	bus := stream.NewBus(0)
	defer bus.Close()
	trk := tracker.New(dispatcher, trackerOpts)
	agg = flow.New(trk, flow.Options{Clock: clk, Emitter: bus, Source: dispatcher})

	if queue != nil {
		if err := queue.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start upload queue: %w", err)
		}
	}
	if err := bus.Forward(ctx, sink); err != nil {
		return nil, err
	}

	stop := func() int {
		trk.Stop()
		if queue == nil {
			return 0
		}
		stopCtx := ctx
		if opts.Sink.Timeout > 0 {
			var cancel context.CancelFunc
			stopCtx, cancel = context.WithTimeout(ctx, opts.Sink.Timeout)
			defer cancel()
		}
		if err := queue.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Msg("upload queue did not stop cleanly")
		}
		return queue.Pending()
	}

	trk.Start()
	report := &Report{SessionID: agg.SessionID()}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	var last int64
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		report.Lines++
		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			stop()
			return nil, fmt.Errorf("line %d: %w", report.Lines, err)
		}
		if line.At < last {
			stop()
			return nil, fmt.Errorf("line %d: offset %d goes back in time", report.Lines, line.At)
		}
		last = line.At
		clk.Set(opts.Start.Add(time.Duration(line.At) * time.Millisecond))
		apply(line, dispatcher, agg)
		trk.Tick()
	}
	if err := scanner.Err(); err != nil {
		stop()
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	report.Session = agg.End()
	report.Actions = trk.ActionSummary()
	report.Patterns = trk.BehaviorPatterns()
	report.Undelivered = stop()
	report.FlowEvents = sink.counts

	log.Info().
		Str("session_id", report.SessionID).
		Int("lines", report.Lines).
		Int("undelivered", report.Undelivered).
		Msg("replay finished")
	return report, nil
}

func apply(line Line, d *dom.Dispatcher, agg *flow.Aggregator) {
	switch {
	case line.Identify != nil:
		agg.Identify(line.Identify.UserID, line.Identify.UserName, line.Identify.Role)
	case line.Window != nil:
		d.SetWindow(*line.Window)
	case line.Navigate != nil:
		agg.StartPage(line.Navigate.Page, line.Navigate.URL)
	case line.Event != nil:
		ev := *line.Event
		d.Dispatch(&ev)
	case len(line.Intersect) > 0:
		d.Intersect(line.Intersect...)
	case line.Track != nil:
		agg.TrackDashboardEvent(line.Track.Kind, line.Track.Data)
	}
}
