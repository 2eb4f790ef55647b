package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/dom"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func setupTracker(t *testing.T, opts Options) (*Tracker, *dom.Dispatcher, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	src := dom.NewDispatcher(dom.Window{
		Path:         "/attendance",
		ScrollHeight: 1100,
		ClientHeight: 100,
		InnerWidth:   1280,
		InnerHeight:  800,
	})
	opts.Clock = clk
	tr := New(src, opts)
	tr.Start()
	t.Cleanup(tr.Stop)
	return tr, src, clk
}

type fakeForwarder struct {
	mu      sync.Mutex
	actions []Action
	flushes int
}

func (f *fakeForwarder) RecordAction(a Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
}

func (f *fakeForwarder) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func TestStartIsIdempotent(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	attached := src.ListenerCount()
	if attached == 0 {
		t.Fatal("Expected listeners after Start")
	}

	tr.Start()
	if src.ListenerCount() != attached {
		t.Errorf("Expected %d listeners after second Start, got %d", attached, src.ListenerCount())
	}
	if !tr.Status().IsTracking {
		t.Error("Expected tracking after Start")
	}

	src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "button"}})
	if got := len(tr.ActionsByType(KindClick)); got != 1 {
		t.Errorf("Expected one click action, got %d", got)
	}

	tr.Stop()
	if tr.Status().IsTracking {
		t.Error("Expected not tracking after Stop")
	}
	if src.ListenerCount() != 0 || src.ObserverCount() != 0 {
		t.Errorf("Expected clean teardown, listeners=%d observers=%d", src.ListenerCount(), src.ObserverCount())
	}
	tr.Stop()
}

func TestStopBeforeStart(t *testing.T) {
	src := dom.NewDispatcher(dom.Window{})
	tr := New(src, Options{})
	tr.Stop()
	tr.Stop()
	if tr.IsTracking() {
		t.Error("Expected not tracking")
	}
}

func TestRepeatedStartStopDoesNotLeak(t *testing.T) {
	src := dom.NewDispatcher(dom.Window{})
	tr := New(src, Options{Clock: clock.NewManual(epoch), TickInterval: time.Millisecond})

	for i := 0; i < 5; i++ {
		tr.Start()
		tr.Start()
		tr.Stop()
		if src.ListenerCount() != 0 {
			t.Fatalf("Cycle %d: expected 0 listeners, got %d", i, src.ListenerCount())
		}
	}

	tr.Start()
	defer tr.Stop()
	src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "a"}})
	if got := len(tr.ActionsByType(KindClick)); got != 1 {
		t.Errorf("Expected exactly one click after restart, got %d", got)
	}
	if got := tr.Status().PageVisits; got != 6 {
		t.Errorf("Expected 6 page visits, got %d", got)
	}
}

func TestEventsIgnoredWhileStopped(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	tr.Stop()
	src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "a"}})
	tr.TrackInteraction("export_clicked", nil)
	if tr.Status().TotalActions != 0 {
		t.Errorf("Expected no actions, got %d", tr.Status().TotalActions)
	}
}

func TestCaptureSurvivesStopPropagation(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	src.AddListener(dom.EventClick, func(ev *dom.Event) { ev.StopPropagation() }, dom.ListenOptions{})

	src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "button", Text: "Save grade"}})

	clicks := tr.ActionsByType(KindClick)
	if len(clicks) != 1 {
		t.Fatalf("Expected click despite stopPropagation, got %d", len(clicks))
	}
	if clicks[0].PayloadString("buttonAction") != "save" {
		t.Errorf("Expected save button action, got %v", clicks[0].Payload["buttonAction"])
	}
}

func TestClickDetails(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'x'
	}
	src.Dispatch(&dom.Event{
		Type:    dom.EventClick,
		ClientX: 10, ClientY: 20, PageX: 10, PageY: 520,
		Modifiers: dom.Modifiers{Shift: true},
		Target: &dom.Element{
			Tag:           "DIV",
			Class:         "card",
			Text:          string(long),
			DashboardItem: "grades",
		},
	})

	a := tr.ActionsByType(KindClick)[0]
	if a.Target.Tag != "div" {
		t.Errorf("Expected lower-case tag, got %s", a.Target.Tag)
	}
	if a.Target.ID != nil {
		t.Errorf("Expected nil id, got %v", *a.Target.ID)
	}
	if len([]rune(*a.Target.Text)) != 100 {
		t.Errorf("Expected text truncated to 100, got %d", len([]rune(*a.Target.Text)))
	}
	if a.Position.PageY != 520 {
		t.Errorf("Expected pageY 520, got %v", a.Position.PageY)
	}
	if a.PayloadString("dashboardItem") != "grades" {
		t.Errorf("Expected dashboard item, got %v", a.Payload["dashboardItem"])
	}
	if a.URL != "/attendance" {
		t.Errorf("Expected url from window path, got %s", a.URL)
	}
	if a.HeatmapKey() != "div.card" {
		t.Errorf("Expected heatmap key div.card, got %s", a.HeatmapKey())
	}
}

func TestMissingTargetDoesNotPanic(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	for _, typ := range []string{
		dom.EventClick, dom.EventMouseEnter, dom.EventMouseLeave, dom.EventFocus,
		dom.EventInput, dom.EventSubmit, dom.EventKeyDown, dom.EventDragStart,
		dom.EventPlay, dom.EventLoad, dom.EventError,
	} {
		src.Dispatch(&dom.Event{Type: typ})
	}
	clicks := tr.ActionsByType(KindClick)
	if len(clicks) != 1 || clicks[0].Target != nil {
		t.Errorf("Expected one click with nil target, got %+v", clicks)
	}
}

func TestHoverDuration(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{})
	el := &dom.Element{Ref: 7, Tag: "div", Class: "kpi"}

	src.Dispatch(&dom.Event{Type: dom.EventMouseEnter, Target: el, ClientX: 5, ClientY: 6})
	clk.Advance(1234 * time.Millisecond)
	src.Dispatch(&dom.Event{Type: dom.EventMouseLeave, Target: el})

	hovers := tr.ActionsByType(KindHover)
	if len(hovers) != 1 {
		t.Fatalf("Expected one hover, got %d", len(hovers))
	}
	if d, _ := hovers[0].PayloadFloat("duration"); d != 1234 {
		t.Errorf("Expected duration 1234ms, got %v", d)
	}
	if hovers[0].Position.X != 5 {
		t.Errorf("Expected entry position, got %+v", hovers[0].Position)
	}
	if tr.OpenHovers() != 0 {
		t.Errorf("Expected hover record consumed, got %d open", tr.OpenHovers())
	}
}

func TestHoverKeyedByInstance(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{})
	a := &dom.Element{Ref: 1, Tag: "li", Class: "row"}
	b := &dom.Element{Ref: 2, Tag: "li", Class: "row"}

	src.Dispatch(&dom.Event{Type: dom.EventMouseEnter, Target: a})
	clk.Advance(100 * time.Millisecond)
	src.Dispatch(&dom.Event{Type: dom.EventMouseEnter, Target: b})
	clk.Advance(100 * time.Millisecond)
	src.Dispatch(&dom.Event{Type: dom.EventMouseLeave, Target: a})

	hovers := tr.ActionsByType(KindHover)
	if len(hovers) != 1 {
		t.Fatalf("Expected one hover, got %d", len(hovers))
	}
	if d, _ := hovers[0].PayloadFloat("duration"); d != 200 {
		t.Errorf("Expected 200ms for the first element, got %v", d)
	}
	if tr.OpenHovers() != 1 {
		t.Errorf("Expected the second element still open, got %d", tr.OpenHovers())
	}
}

func TestHoverWithoutSourceRefs(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{})
	a := &dom.Element{Tag: "li", Class: "row"}
	b := &dom.Element{Tag: "li", Class: "row"}

	src.Dispatch(&dom.Event{Type: dom.EventMouseEnter, Target: a})
	clk.Advance(100 * time.Millisecond)
	src.Dispatch(&dom.Event{Type: dom.EventMouseEnter, Target: b})
	clk.Advance(100 * time.Millisecond)
	src.Dispatch(&dom.Event{Type: dom.EventMouseLeave, Target: a})

	hovers := tr.ActionsByType(KindHover)
	if len(hovers) != 1 {
		t.Fatalf("Expected one hover, got %d", len(hovers))
	}
	if d, _ := hovers[0].PayloadFloat("duration"); d != 200 {
		t.Errorf("Expected 200ms for the first row, got %v", d)
	}
	if tr.OpenHovers() != 1 {
		t.Errorf("Expected the second row still open, got %d", tr.OpenHovers())
	}
}

func TestHoverLeaveWithoutEnter(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	src.Dispatch(&dom.Event{Type: dom.EventMouseLeave, Target: &dom.Element{Ref: 3, Tag: "span"}})
	if len(tr.ActionsByType(KindHover)) != 0 {
		t.Error("Expected unmatched leave to be dropped")
	}
}

func TestHoverTTL(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{HoverTTL: time.Minute})
	src.Dispatch(&dom.Event{Type: dom.EventMouseEnter, Target: &dom.Element{Ref: 9, Tag: "div"}})
	clk.Advance(2 * time.Minute)
	tr.Tick()
	if tr.OpenHovers() != 0 {
		t.Errorf("Expected stale hover expired, got %d open", tr.OpenHovers())
	}
}

func scrollTo(src *dom.Dispatcher, pct float64) {
	src.UpdateWindow(func(w *dom.Window) { w.ScrollTop = pct * 10 })
	src.Dispatch(&dom.Event{Type: dom.EventScroll})
}

func TestScrollMaxDepthIsMonotonic(t *testing.T) {
	// a long throttle drops most non-deepening events
	tr, src, clk := setupTracker(t, Options{ScrollThrottle: time.Hour})
	seq := []float64{10, 35, 20, 80, 5, 60, 95, 40}

	prev := 0
	best := 0
	for _, p := range seq {
		clk.Advance(10 * time.Millisecond)
		scrollTo(src, p)
		if int(p) > best {
			best = int(p)
		}
		got := tr.MaxScrollDepth()
		if got < prev {
			t.Fatalf("Max depth decreased from %d to %d", prev, got)
		}
		if got != best {
			t.Fatalf("Expected max depth %d, got %d", best, got)
		}
		prev = got
	}
}

func TestScrollDirectionChanges(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{})
	for _, p := range []float64{10, 20, 15, 15, 30} {
		clk.Advance(time.Second)
		scrollTo(src, p)
	}

	changes := tr.ActionsByType(KindScrollDirectionChange)
	want := []string{"down", "up", "down"}
	if len(changes) != len(want) {
		t.Fatalf("Expected %d direction changes, got %d", len(want), len(changes))
	}
	for i, w := range want {
		if changes[i].PayloadString("direction") != w {
			t.Errorf("Change %d: expected %s, got %s", i, w, changes[i].PayloadString("direction"))
		}
	}
	if n := len(tr.Scroll().Samples); n != 5 {
		t.Errorf("Expected 5 samples, got %d", n)
	}
}

func TestScrollThrottle(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{ScrollThrottle: 100 * time.Millisecond})
	scrollTo(src, 50) // deeper, always processed
	clk.Advance(10 * time.Millisecond)
	scrollTo(src, 40)
	clk.Advance(10 * time.Millisecond)
	scrollTo(src, 45) // within 100ms of the previous shallow sample
	clk.Advance(10 * time.Millisecond)
	scrollTo(src, 60) // deeper
	clk.Advance(200 * time.Millisecond)
	scrollTo(src, 30) // throttle window passed

	samples := tr.Scroll().Samples
	if len(samples) != 4 {
		t.Fatalf("Expected 4 processed samples, got %d", len(samples))
	}
	for i, want := range []int{50, 40, 60, 30} {
		if samples[i].Percentage != want {
			t.Errorf("Sample %d: expected %d, got %d", i, want, samples[i].Percentage)
		}
	}
}

func TestScrollPercentage(t *testing.T) {
	tests := []struct {
		name string
		w    dom.Window
		want int
	}{
		{"top", dom.Window{ScrollTop: 0, ScrollHeight: 2000, ClientHeight: 1000}, 0},
		{"half", dom.Window{ScrollTop: 500, ScrollHeight: 2000, ClientHeight: 1000}, 50},
		{"rounds", dom.Window{ScrollTop: 333, ScrollHeight: 2000, ClientHeight: 1000}, 33},
		{"bottom", dom.Window{ScrollTop: 1000, ScrollHeight: 2000, ClientHeight: 1000}, 100},
		{"overscroll", dom.Window{ScrollTop: 1200, ScrollHeight: 2000, ClientHeight: 1000}, 100},
		{"negative", dom.Window{ScrollTop: -50, ScrollHeight: 2000, ClientHeight: 1000}, 0},
		{"not scrollable", dom.Window{ScrollTop: 10, ScrollHeight: 800, ClientHeight: 800}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScrollPercentage(tt.w); got != tt.want {
				t.Errorf("ScrollPercentage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormTracking(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	input := &dom.Element{Tag: "INPUT", Name: "grade", InputType: "number", Value: "A+ with distinction honours", DefaultValue: "B"}

	src.Dispatch(&dom.Event{Type: dom.EventFocus, Target: &dom.Element{Tag: "div"}})
	src.Dispatch(&dom.Event{Type: dom.EventFocus, Target: input})
	src.Dispatch(&dom.Event{Type: dom.EventInput, Target: input})
	src.Dispatch(&dom.Event{Type: dom.EventChange, Target: input})
	src.Dispatch(&dom.Event{Type: dom.EventBlur, Target: input})
	src.Dispatch(&dom.Event{
		Type:     dom.EventSubmit,
		Target:   &dom.Element{Tag: "form", ID: "grade-form", FormMethod: "post"},
		FormData: map[string]string{"grade": "A+"},
	})

	if n := len(tr.ActionsByType(KindFormFocus)); n != 1 {
		t.Errorf("Expected focus on form controls only, got %d", n)
	}
	in := tr.ActionsByType(KindFormInput)[0]
	if in.PayloadString("valuePreview") != "A+ with distinction " {
		t.Errorf("Expected 20 char preview, got %q", in.PayloadString("valuePreview"))
	}

	s := tr.ActionSummary()
	if s.Forms.Submissions != 1 || s.Forms.TotalForms != 2 {
		t.Errorf("Expected 1 submission and 2 form totals, got %+v", s.Forms)
	}
	if len(s.Forms.Fields) != 1 || s.Forms.Fields[0].Name != "grade" {
		t.Errorf("Expected grade field, got %+v", s.Forms.Fields)
	}
	if s.ActionTypes["form"] != 5 {
		t.Errorf("Expected 5 form actions, got %d", s.ActionTypes["form"])
	}

	p := tr.BehaviorPatterns()
	if p.Forms == nil || p.Forms.Pattern != FormSubmitter || p.Forms.Engagement != 100 {
		t.Errorf("Expected submitter with 100%% engagement, got %+v", p.Forms)
	}
}

func TestMediaAndImageTracking(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	video := &dom.Element{Tag: "video", ID: "lecture", Src: "/lecture.mp4"}
	img := &dom.Element{Tag: "img", Src: "/chart.png", Alt: "chart", NaturalWidth: 640, NaturalHeight: 480}

	src.Dispatch(&dom.Event{Type: dom.EventPlay, Target: video, Media: &dom.MediaState{CurrentTime: 12, Duration: 300, Volume: 0.5}})
	src.Dispatch(&dom.Event{Type: dom.EventSeeked, Target: video})
	src.Dispatch(&dom.Event{Type: dom.EventPlay, Target: &dom.Element{Tag: "div"}})
	src.Dispatch(&dom.Event{Type: dom.EventLoad, Target: img})
	src.Dispatch(&dom.Event{Type: dom.EventClick, Target: img, ClientX: 3, ClientY: 4})
	src.Dispatch(&dom.Event{Type: dom.EventError, Target: img})

	play := tr.ActionsByType(KindMediaPlay)
	if len(play) != 1 {
		t.Fatalf("Expected one media_play, got %d", len(play))
	}
	if v, _ := play[0].PayloadFloat("currentTime"); v != 12 {
		t.Errorf("Expected currentTime 12, got %v", v)
	}
	if len(tr.ActionsByType(MediaKind("seek"))) != 1 {
		t.Error("Expected seeked mapped to media_seek")
	}
	clicks := tr.ActionsByType(ImageKind("click"))
	if len(clicks) != 1 || clicks[0].Position == nil {
		t.Errorf("Expected image_click with position, got %+v", clicks)
	}
	if len(tr.ActionsByType(ImageKind("error"))) != 1 || len(tr.ActionsByType(MediaKind("error"))) != 0 {
		t.Error("Expected img error routed to image_error only")
	}

	s := tr.ActionSummary()
	if s.Media.Total != 2 || s.Images.Total != 3 {
		t.Errorf("Expected 2 media and 3 image actions, got %d and %d", s.Media.Total, s.Images.Total)
	}
	if p := tr.BehaviorPatterns(); p.Media.Pattern != MediaConsumer || p.Media.VideoInteractions != 2 {
		t.Errorf("Expected media consumer, got %+v", p.Media)
	}
}

func TestVisibilityTracking(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	chart := &dom.Element{Ref: 1, Tag: "section", ID: "chart"}
	marked := &dom.Element{Ref: 2, Tag: "div", Attrs: map[string]string{"data-track": ""}}
	plain := &dom.Element{Ref: 3, Tag: "div"}

	src.Intersect(
		dom.IntersectionEntry{Target: chart, IsIntersecting: true, IntersectionRatio: 0.5},
		dom.IntersectionEntry{Target: marked, IsIntersecting: true, IntersectionRatio: 1},
		dom.IntersectionEntry{Target: plain, IsIntersecting: true, IntersectionRatio: 1},
	)
	src.Intersect(dom.IntersectionEntry{Target: chart, IsIntersecting: false})

	if n := len(tr.ActionsByType(KindElementVisible)); n != 2 {
		t.Errorf("Expected 2 visible actions, got %d", n)
	}
	hidden := tr.ActionsByType(KindElementHidden)
	if len(hidden) != 1 || *hidden[0].Target.ID != "chart" {
		t.Errorf("Expected chart hidden, got %+v", hidden)
	}
}

func TestWindowEvents(t *testing.T) {
	fwd := &fakeForwarder{}
	tr, src, clk := setupTracker(t, Options{Forwarder: fwd})

	src.UpdateWindow(func(w *dom.Window) { w.Hidden = true; w.VisibilityState = "hidden" })
	src.Dispatch(&dom.Event{Type: dom.EventVisibilityChange})
	src.Dispatch(&dom.Event{Type: dom.EventResize})
	src.Dispatch(&dom.Event{Type: dom.EventKeyDown, Key: "a", Code: "KeyA", Target: &dom.Element{Tag: "input"}})
	src.Dispatch(&dom.Event{Type: dom.EventDrop, DataTransferTypes: []string{"Files"}})
	clk.Advance(90 * time.Second)
	src.Dispatch(&dom.Event{Type: dom.EventBeforeUnload})

	vis := tr.ActionsByType(KindPageVisibilityChange)
	if len(vis) != 1 || vis[0].Payload["hidden"] != true {
		t.Errorf("Expected hidden visibility change, got %+v", vis)
	}
	if v, _ := tr.ActionsByType(KindWindowResize)[0].PayloadFloat("width"); v != 1280 {
		t.Errorf("Expected width 1280, got %v", v)
	}
	unload := tr.ActionsByType(KindPageUnload)
	if len(unload) != 1 {
		t.Fatalf("Expected page_unload, got %d", len(unload))
	}
	if d, _ := unload[0].PayloadFloat("sessionDuration"); d != 90000 {
		t.Errorf("Expected 90s session duration, got %v", d)
	}

	if len(fwd.actions) != tr.Status().TotalActions {
		t.Errorf("Expected every action forwarded, got %d of %d", len(fwd.actions), tr.Status().TotalActions)
	}
	if fwd.flushes != 1 {
		t.Errorf("Expected one flush on unload, got %d", fwd.flushes)
	}
}

func TestTimestampsNonDecreasing(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{})
	for i := 0; i < 10; i++ {
		src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "a"}})
		if i%3 == 0 {
			clk.Advance(time.Millisecond)
		}
	}
	var last int64
	for _, a := range tr.ActionsByType(KindClick) {
		if a.Timestamp < last {
			t.Fatalf("Timestamp went backwards: %d < %d", a.Timestamp, last)
		}
		last = a.Timestamp
	}
}

func TestSummaryAndClear(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{RecentActions: 3})
	for i := 0; i < 5; i++ {
		src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "button", Class: "btn"}})
	}
	scrollTo(src, 85)
	clk.Advance(2 * time.Second)
	tr.Tick()

	s := tr.ActionSummary()
	if s.TotalActions != 7 {
		t.Errorf("Expected 7 actions (5 clicks, scroll, direction change), got %d", s.TotalActions)
	}
	if s.ActionTypes["click"] != 5 || s.ActionTypes["scroll"] != 1 {
		t.Errorf("Unexpected action types: %v", s.ActionTypes)
	}
	if len(s.RecentActions) != 3 {
		t.Errorf("Expected 3 recent actions, got %d", len(s.RecentActions))
	}
	if s.MaxScrollDepth != 85 || s.TimeOnPage != 2000 {
		t.Errorf("Expected depth 85 and 2000ms on page, got %d and %d", s.MaxScrollDepth, s.TimeOnPage)
	}

	p := tr.BehaviorPatterns()
	if p.Scroll == nil || p.Scroll.Pattern != ScrollDeep {
		t.Errorf("Expected deep scroller, got %+v", p.Scroll)
	}
	if p.Clicks == nil || p.Clicks.Pattern != ClickHigh || p.Clicks.MostClickedElements["button.btn"] != 5 {
		t.Errorf("Expected high click activity on button.btn, got %+v", p.Clicks)
	}

	// the summary is a snapshot
	s.RecentActions[0].Kind = "tampered"
	if tr.ActionSummary().RecentActions[0].Kind == "tampered" {
		t.Error("Expected summary to be detached from the log")
	}

	tr.Clear()
	if tr.Status().TotalActions != 0 || tr.MaxScrollDepth() != 0 {
		t.Error("Expected Clear to reset actions and scroll depth")
	}
	if !tr.IsTracking() {
		t.Error("Expected Clear to keep tracking")
	}
}

func TestTimeAnalytics(t *testing.T) {
	tr, src, clk := setupTracker(t, Options{})
	click := func() { src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "a"}}) }

	click()
	clk.Advance(20 * time.Minute)
	click()
	clk.Advance(4 * time.Minute)
	click()
	clk.Advance(90 * time.Second)
	click()

	ta := tr.TimeAnalytics()
	if len(ta.LastMinute) != 1 || len(ta.Last5Minutes) != 2 || len(ta.Last15Minutes) != 3 || len(ta.LastHour) != 4 {
		t.Errorf("Unexpected buckets: %d %d %d %d",
			len(ta.LastMinute), len(ta.Last5Minutes), len(ta.Last15Minutes), len(ta.LastHour))
	}
}

func TestTrackInteraction(t *testing.T) {
	fwd := &fakeForwarder{}
	tr, _, _ := setupTracker(t, Options{Forwarder: fwd})
	data := map[string]any{"format": "csv"}
	tr.TrackInteraction("export_clicked", data)
	data["format"] = "changed"

	got := tr.ActionsByType("export_clicked")
	if len(got) != 1 || got[0].PayloadString("format") != "csv" {
		t.Errorf("Expected copied payload, got %+v", got)
	}
	if len(fwd.actions) != 1 {
		t.Errorf("Expected forwarded action, got %d", len(fwd.actions))
	}
}

func TestExport(t *testing.T) {
	tr, src, _ := setupTracker(t, Options{})
	src.Dispatch(&dom.Event{Type: dom.EventClick, Target: &dom.Element{Tag: "a"}})

	data, err := tr.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Export is not valid JSON: %v", err)
	}
	for _, key := range []string{"actions", "summary", "timeAnalytics", "behaviorPatterns"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("Expected %s in export", key)
		}
	}
}

func TestClassifyButton(t *testing.T) {
	tests := []struct {
		el   dom.Element
		want string
	}{
		{dom.Element{Tag: "button", Text: "Save changes"}, "save"},
		{dom.Element{Tag: "button", Class: "btn-delete"}, "delete"},
		{dom.Element{Tag: "button", Text: "Log out", Class: "logout"}, "logout"},
		{dom.Element{Tag: "button", Text: "Go"}, "unknown"},
	}
	for _, tt := range tests {
		if got := classifyButton(&tt.el); got != tt.want {
			t.Errorf("classifyButton(%+v) = %s, want %s", tt.el, got, tt.want)
		}
	}
}
