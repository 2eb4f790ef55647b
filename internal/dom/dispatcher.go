package dom

import (
	"sync"
)

type listener struct {
	id      ListenerID
	kind    string
	handler Handler
	opts    ListenOptions
}

type observer struct {
	opts    ObserveOptions
	handler IntersectionHandler
	// last reported threshold bucket per element
	buckets map[NodeID]int
}

// assignedRefBase keeps refs handed out by the dispatcher clear of refs the
// caller set itself.
const assignedRefBase NodeID = 1 << 48

// Dispatcher is an in-memory Source. Events are delivered synchronously on
// the caller's goroutine: capture listeners first, in registration order,
// then bubble listeners until one stops propagation.
//
// Targets arriving without a Ref get one: elements with an id share a ref
// per tag and id, so separate snapshots of the same element agree; other
// elements get a fresh ref stamped on the snapshot itself.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    uint64
	nextRef   NodeID
	refsByID  map[string]NodeID
	listeners []listener
	observers map[ObserverID]*observer
	window    Window
}

// NewDispatcher returns a dispatcher reporting w from Window.
func NewDispatcher(w Window) *Dispatcher {
	return &Dispatcher{
		nextRef:   assignedRefBase,
		refsByID:  make(map[string]NodeID),
		observers: make(map[ObserverID]*observer),
		window:    w,
	}
}

// identifyLocked gives el a ref when it has none. The caller holds mu for
// writing.
func (d *Dispatcher) identifyLocked(el *Element) {
	if el == nil || el.Ref != 0 {
		return
	}
	if el.ID != "" {
		key := el.TagName() + "#" + el.ID
		ref, ok := d.refsByID[key]
		if !ok {
			d.nextRef++
			ref = d.nextRef
			d.refsByID[key] = ref
		}
		el.Ref = ref
		return
	}
	d.nextRef++
	el.Ref = d.nextRef
}

// AddListener implements Source.
func (d *Dispatcher) AddListener(eventType string, h Handler, opts ListenOptions) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := ListenerID(d.nextID)
	d.listeners = append(d.listeners, listener{id: id, kind: eventType, handler: h, opts: opts})
	return id
}

// RemoveListener implements Source. Unknown ids are ignored.
func (d *Dispatcher) RemoveListener(id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, l := range d.listeners {
		if l.id == id {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

// Observe implements Source.
func (d *Dispatcher) Observe(opts ObserveOptions, h IntersectionHandler) ObserverID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := ObserverID(d.nextID)
	d.observers[id] = &observer{opts: opts, handler: h, buckets: make(map[NodeID]int)}
	return id
}

// Unobserve implements Source.
func (d *Dispatcher) Unobserve(id ObserverID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.observers, id)
}

// Window implements Source.
func (d *Dispatcher) Window() Window {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.window
}

// SetWindow replaces the window snapshot.
func (d *Dispatcher) SetWindow(w Window) {
	d.mu.Lock()
	d.window = w
	d.mu.Unlock()
}

// UpdateWindow mutates the window snapshot in place.
func (d *Dispatcher) UpdateWindow(fn func(*Window)) {
	d.mu.Lock()
	fn(&d.window)
	d.mu.Unlock()
}

// ListenerCount returns the number of registered listeners.
func (d *Dispatcher) ListenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// ObserverCount returns the number of registered intersection observers.
func (d *Dispatcher) ObserverCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

// Dispatch delivers ev to every listener registered for its type. Handlers
// run without the dispatcher lock held, so they may add or remove listeners.
func (d *Dispatcher) Dispatch(ev *Event) {
	if ev == nil {
		return
	}
	if ev.Target != nil && ev.Target.Ref == 0 {
		d.mu.Lock()
		d.identifyLocked(ev.Target)
		d.mu.Unlock()
	}

	d.mu.RLock()
	var capture, bubble []Handler
	for _, l := range d.listeners {
		if l.kind != ev.Type {
			continue
		}
		if l.opts.Capture {
			capture = append(capture, l.handler)
		} else {
			bubble = append(bubble, l.handler)
		}
	}
	d.mu.RUnlock()

	for _, h := range capture {
		h(ev)
	}
	for _, h := range bubble {
		if ev.PropagationStopped() {
			return
		}
		h(ev)
	}
}

// Intersect reports visibility changes to observers. An entry is delivered
// to an observer only when the element matches it and its ratio moved into
// a different threshold bucket since the last report, or on first sight.
func (d *Dispatcher) Intersect(entries ...IntersectionEntry) {
	type delivery struct {
		h       IntersectionHandler
		entries []IntersectionEntry
	}

	d.mu.Lock()
	for _, e := range entries {
		d.identifyLocked(e.Target)
	}
	var out []delivery
	for _, o := range d.observers {
		var matched []IntersectionEntry
		for _, e := range entries {
			if e.Target == nil {
				continue
			}
			if o.opts.Match != nil && !o.opts.Match(e.Target) {
				continue
			}
			b := bucket(e, o.opts.Thresholds)
			if prev, seen := o.buckets[e.Target.Ref]; seen && prev == b {
				continue
			}
			o.buckets[e.Target.Ref] = b
			matched = append(matched, e)
		}
		if len(matched) > 0 {
			out = append(out, delivery{h: o.handler, entries: matched})
		}
	}
	d.mu.Unlock()

	for _, dl := range out {
		dl.h(dl.entries)
	}
}

// bucket counts the thresholds at or below the entry ratio; -1 when the
// element is not intersecting at all.
func bucket(e IntersectionEntry, thresholds []float64) int {
	if !e.IsIntersecting {
		return -1
	}
	n := 0
	for _, t := range thresholds {
		if e.IntersectionRatio >= t {
			n++
		}
	}
	return n
}
