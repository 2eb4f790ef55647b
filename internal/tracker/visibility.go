package tracker

import (
	"github.com/vincentbai/classtrace/internal/dom"
)

// VisibilityThresholds are the intersection ratios reported for observed
// elements.
var VisibilityThresholds = []float64{0, 0.25, 0.5, 0.75, 1.0}

// Observed selects elements for visibility tracking: anything with an id, an
// important or tracked class, or a data-track attribute.
func Observed(e *dom.Element) bool {
	if e == nil {
		return false
	}
	if e.ID != "" || e.HasClass("important") || e.HasClass("tracked") {
		return true
	}
	_, ok := e.Attr("data-track")
	return ok
}

func (t *Tracker) handleIntersections(entries []dom.IntersectionEntry) {
	t.capture(func(ts int64) []Action {
		out := make([]Action, 0, len(entries))
		for _, e := range entries {
			if e.Target == nil {
				continue
			}
			kind := KindElementHidden
			if e.IsIntersecting {
				kind = KindElementVisible
			}
			out = append(out, Action{
				Kind:      kind,
				Timestamp: ts,
				Target: &Target{
					Tag:   e.Target.TagName(),
					ID:    nullable(e.Target.ID),
					Class: nullable(e.Target.Class),
					Ref:   e.Target.Ref,
				},
				Payload: map[string]any{
					"intersectionRatio": e.IntersectionRatio,
					"boundingRect":      e.BoundingRect,
				},
			})
		}
		return out
	})
}
