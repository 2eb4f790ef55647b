package tracker

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vincentbai/classtrace/internal/clock"
)

// FieldInfo is a distinct form field the user focused.
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FormSummary aggregates form actions.
type FormSummary struct {
	Fields      []FieldInfo `json:"fields"`
	Submissions int         `json:"submissions"`
	TotalForms  int         `json:"totalForms"`
}

// ElementAction pairs an action kind with the element tag it hit.
type ElementAction struct {
	Action  Kind   `json:"action"`
	Element string `json:"element"`
}

// MediaSummary lists media or image actions.
type MediaSummary struct {
	Actions []ElementAction `json:"actions"`
	Total   int             `json:"total"`
}

// ActionSummary is a read-only projection of the log and scroll state.
type ActionSummary struct {
	TotalActions   int            `json:"totalActions"`
	ActionTypes    map[string]int `json:"actionTypes"`
	Scroll         ScrollState    `json:"scrollData"`
	Session        SessionData    `json:"sessionData"`
	Forms          FormSummary    `json:"formData"`
	Media          MediaSummary   `json:"mediaData"`
	Images         MediaSummary   `json:"imageData"`
	RecentActions  []Action       `json:"recentActions"`
	TimeOnPage     int64          `json:"timeOnPage"`
	MaxScrollDepth int            `json:"maxScrollDepth"`
}

// ActionSummary computes the current summary. The result shares no mutable
// state with the tracker.
func (t *Tracker) ActionSummary() ActionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summaryLocked()
}

func (t *Tracker) summaryLocked() ActionSummary {
	s := ActionSummary{
		TotalActions:   len(t.actions),
		ActionTypes:    make(map[string]int),
		Scroll:         t.scrollCopy(),
		Session:        t.session,
		TimeOnPage:     t.session.TotalTime,
		MaxScrollDepth: t.scroll.MaxDepth,
		Media:          MediaSummary{Actions: []ElementAction{}},
		Images:         MediaSummary{Actions: []ElementAction{}},
	}

	var focus, forms int
	for _, a := range t.actions {
		s.ActionTypes[string(a.Kind)]++
		switch {
		case a.Kind.IsForm():
			forms++
			switch a.Kind {
			case KindFormFocus:
				focus++
			case KindFormSubmit:
				s.Forms.Submissions++
			}
		case a.Kind.IsMedia():
			s.Media.Actions = append(s.Media.Actions, ElementAction{Action: a.Kind, Element: tagOf(a)})
		case a.Kind.IsImage():
			s.Images.Actions = append(s.Images.Actions, ElementAction{Action: a.Kind, Element: tagOf(a)})
		}
	}
	s.Media.Total = len(s.Media.Actions)
	s.Images.Total = len(s.Images.Actions)
	// group totals alongside the per-kind counts
	s.ActionTypes["form"] = forms
	s.ActionTypes["media"] = s.Media.Total
	s.ActionTypes["image"] = s.Images.Total

	s.Forms.TotalForms = focus + s.Forms.Submissions
	s.Forms.Fields = make([]FieldInfo, 0, len(t.fieldOrder))
	for _, name := range t.fieldOrder {
		s.Forms.Fields = append(s.Forms.Fields, t.formFields[name])
	}

	n := t.opts.RecentActions
	if n > len(t.actions) {
		n = len(t.actions)
	}
	s.RecentActions = append([]Action{}, t.actions[len(t.actions)-n:]...)
	return s
}

func tagOf(a Action) string {
	if a.Target == nil || a.Target.Tag == "" {
		return "unknown"
	}
	return a.Target.Tag
}

// ActionsByType returns every action of the given kind in capture order.
func (t *Tracker) ActionsByType(kind Kind) []Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Action
	for _, a := range t.actions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// ActionsSince returns actions captured at or after since, optionally
// restricted to kinds.
func (t *Tracker) ActionsSince(since time.Time, kinds ...Kind) []Action {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actionsSinceLocked(clock.Millis(since), kinds)
}

func (t *Tracker) actionsSinceLocked(from int64, kinds []Kind) []Action {
	// the log is ordered by timestamp, so scan back to the first match
	start := len(t.actions)
	for start > 0 && t.actions[start-1].Timestamp >= from {
		start--
	}
	var out []Action
	for _, a := range t.actions[start:] {
		if len(kinds) == 0 || containsKind(kinds, a.Kind) {
			out = append(out, a)
		}
	}
	return out
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

// TimeAnalytics buckets recent actions by age.
type TimeAnalytics struct {
	LastMinute    []Action `json:"lastMinute"`
	Last5Minutes  []Action `json:"last5Minutes"`
	Last15Minutes []Action `json:"last15Minutes"`
	LastHour      []Action `json:"lastHour"`
}

// TimeAnalytics returns the actions captured within the last minute, five
// minutes, fifteen minutes and hour.
func (t *Tracker) TimeAnalytics() TimeAnalytics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeAnalyticsLocked()
}

func (t *Tracker) timeAnalyticsLocked() TimeAnalytics {
	now := clock.Millis(t.clk.Now())
	window := func(d time.Duration) []Action {
		out := t.actionsSinceLocked(now-d.Milliseconds(), nil)
		if out == nil {
			out = []Action{}
		}
		return out
	}
	return TimeAnalytics{
		LastMinute:    window(time.Minute),
		Last5Minutes:  window(5 * time.Minute),
		Last15Minutes: window(15 * time.Minute),
		LastHour:      window(time.Hour),
	}
}

// TrackingStatus is a snapshot of tracker liveness.
type TrackingStatus struct {
	IsTracking      bool  `json:"isTracking"`
	TotalActions    int   `json:"totalActions"`
	SessionDuration int64 `json:"sessionDuration"`
	PageVisits      int   `json:"pageVisits"`
	LastActivity    int64 `json:"lastActivity"`
}

// Status returns the tracking status.
func (t *Tracker) Status() TrackingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackingStatus{
		IsTracking:      t.tracking,
		TotalActions:    len(t.actions),
		SessionDuration: t.session.TotalTime,
		PageVisits:      t.session.PageVisits,
		LastActivity:    t.session.LastActivity,
	}
}

// Clear discards every captured action and resets scroll, hover, form and
// time state. Listeners stay attached.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
	t.log.Debug().Msg("Tracked actions cleared")
}

type export struct {
	Actions          []Action         `json:"actions"`
	Summary          ActionSummary    `json:"summary"`
	TimeAnalytics    TimeAnalytics    `json:"timeAnalytics"`
	BehaviorPatterns BehaviorPatterns `json:"behaviorPatterns"`
}

// Export renders the log, summary, time analytics and behavior patterns as
// indented JSON.
func (t *Tracker) Export() ([]byte, error) {
	t.mu.Lock()
	doc := export{
		Actions:          append([]Action{}, t.actions...),
		Summary:          t.summaryLocked(),
		TimeAnalytics:    t.timeAnalyticsLocked(),
		BehaviorPatterns: t.patternsLocked(),
	}
	t.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tracked actions: %w", err)
	}
	return data, nil
}
