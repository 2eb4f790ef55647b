package tracker

import (
	"math"
	"time"

	"github.com/vincentbai/classtrace/internal/dom"
)

// Direction is the vertical scroll direction.
type Direction string

const (
	DirectionNone Direction = "none"
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ScrollSample is one processed scroll event.
type ScrollSample struct {
	Timestamp  int64   `json:"timestamp"`
	ScrollTop  float64 `json:"scrollTop"`
	Percentage int     `json:"scrollPercentage"`
	MaxDepth   int     `json:"maxDepth"`
}

// ScrollState tracks depth and direction. MaxDepth never decreases until
// Clear.
type ScrollState struct {
	MaxDepth      int            `json:"maxDepth"`
	Direction     Direction      `json:"direction"`
	LastScrollTop float64        `json:"lastScrollTop"`
	Samples       []ScrollSample `json:"scrollEvents"`
}

// ScrollPercentage converts window metrics to a 0-100 depth. Pages that
// cannot scroll report 0.
func ScrollPercentage(w dom.Window) int {
	denom := w.ScrollHeight - w.ClientHeight
	if denom <= 0 {
		return 0
	}
	pct := int(math.Round(w.ScrollTop / denom * 100))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// handleScroll samples the window. Events arriving faster than the throttle
// are skipped unless they reach a new max depth.
func (t *Tracker) handleScroll(*dom.Event) {
	w := t.src.Window()
	pct := ScrollPercentage(w)
	t.capture(func(ts int64) []Action {
		deeper := pct > t.scroll.MaxDepth
		if !deeper && t.limiter != nil && !t.limiter.AllowN(time.UnixMilli(ts), 1) {
			return nil
		}
		if deeper {
			t.scroll.MaxDepth = pct
		}

		sample := ScrollSample{
			Timestamp:  ts,
			ScrollTop:  w.ScrollTop,
			Percentage: pct,
			MaxDepth:   t.scroll.MaxDepth,
		}
		t.scroll.Samples = append(t.scroll.Samples, sample)
		out := []Action{{
			Kind:      KindScroll,
			Timestamp: ts,
			Payload: map[string]any{
				"scrollTop":        w.ScrollTop,
				"scrollPercentage": pct,
				"maxDepth":         t.scroll.MaxDepth,
			},
		}}

		var dir Direction
		switch {
		case w.ScrollTop > t.scroll.LastScrollTop:
			dir = DirectionDown
		case w.ScrollTop < t.scroll.LastScrollTop:
			dir = DirectionUp
		}
		if dir != "" && dir != t.scroll.Direction {
			t.scroll.Direction = dir
			out = append(out, Action{
				Kind:      KindScrollDirectionChange,
				Timestamp: ts,
				Payload: map[string]any{
					"direction":        string(dir),
					"scrollPercentage": pct,
					"maxDepth":         t.scroll.MaxDepth,
				},
			})
		}
		t.scroll.LastScrollTop = w.ScrollTop
		return out
	})
}

// Scroll returns a copy of the scroll state.
func (t *Tracker) Scroll() ScrollState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scrollCopy()
}

func (t *Tracker) scrollCopy() ScrollState {
	s := t.scroll
	s.Samples = append([]ScrollSample(nil), t.scroll.Samples...)
	return s
}

// MaxScrollDepth returns the deepest scroll percentage seen.
func (t *Tracker) MaxScrollDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scroll.MaxDepth
}

// ScrollDepthSince returns the deepest sampled percentage at or after since.
func (t *Tracker) ScrollDepthSince(since time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := since.UnixMilli()
	depth := 0
	for i := len(t.scroll.Samples) - 1; i >= 0; i-- {
		s := t.scroll.Samples[i]
		if s.Timestamp < from {
			break
		}
		if s.Percentage > depth {
			depth = s.Percentage
		}
	}
	return depth
}
