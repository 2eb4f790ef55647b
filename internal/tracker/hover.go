package tracker

import (
	"github.com/vincentbai/classtrace/internal/dom"
)

// hoverKey identifies the hovered element. Sources that assign instance refs
// get one record per element; otherwise tag and id-or-class stand in.
type hoverKey struct {
	ref       dom.NodeID
	synthetic string
}

type hoverRecord struct {
	start  int64 // unix millis
	target *Target
	pos    Position
}

func keyFor(el *dom.Element) hoverKey {
	if el.Ref != 0 {
		return hoverKey{ref: el.Ref}
	}
	ident := el.ID
	if ident == "" {
		ident = el.Class
	}
	if ident == "" {
		ident = "unknown"
	}
	return hoverKey{synthetic: el.TagName() + "-" + ident}
}

func (t *Tracker) handleMouseEnter(ev *dom.Event) {
	el := ev.Target
	if el == nil {
		return
	}
	t.capture(func(ts int64) []Action {
		t.expireHoversAt(ts)
		t.hovers[keyFor(el)] = hoverRecord{
			start:  ts,
			target: describe(el, 50),
			pos:    Position{X: ev.ClientX, Y: ev.ClientY},
		}
		return nil
	})
}

// handleMouseLeave closes the matching hover record. A leave with no open
// record is dropped.
func (t *Tracker) handleMouseLeave(ev *dom.Event) {
	el := ev.Target
	if el == nil {
		return
	}
	t.capture(func(ts int64) []Action {
		key := keyFor(el)
		rec, ok := t.hovers[key]
		if !ok {
			return nil
		}
		delete(t.hovers, key)
		pos := rec.pos
		return []Action{{
			Kind:      KindHover,
			Timestamp: ts,
			Target:    rec.target,
			Position:  &pos,
			Payload:   map[string]any{"duration": ts - rec.start},
		}}
	})
}

// expireHoversAt drops records older than HoverTTL. Caller holds mu.
func (t *Tracker) expireHoversAt(nowMillis int64) {
	if t.opts.HoverTTL <= 0 {
		return
	}
	ttl := t.opts.HoverTTL.Milliseconds()
	for k, rec := range t.hovers {
		if nowMillis-rec.start > ttl {
			delete(t.hovers, k)
		}
	}
}

// OpenHovers returns the number of unmatched hover records.
func (t *Tracker) OpenHovers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hovers)
}
