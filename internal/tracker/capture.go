package tracker

import (
	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/dom"
)

// mediaEvents maps media element DOM events to action suffixes.
var mediaEvents = map[string]string{
	dom.EventPlay:             "play",
	dom.EventPause:            "pause",
	dom.EventSeeked:           "seek",
	dom.EventVolumeChange:     "volume_change",
	dom.EventFullscreenChange: "fullscreen_change",
	dom.EventTimeUpdate:       "time_update",
	dom.EventEnded:            "ended",
	dom.EventError:            "error",
}

// imageEvents maps image element DOM events to action suffixes. Click
// events on images produce both a click and an image_click action.
var imageEvents = map[string]string{
	dom.EventLoad:        "load",
	dom.EventError:       "error",
	dom.EventContextMenu: "right_click",
	dom.EventDblClick:    "double_click",
}

func (t *Tracker) handlers() map[string]dom.Handler {
	h := map[string]dom.Handler{
		dom.EventClick:            t.handleClick,
		dom.EventMouseEnter:       t.handleMouseEnter,
		dom.EventMouseLeave:       t.handleMouseLeave,
		dom.EventScroll:           t.handleScroll,
		dom.EventFocus:            t.handleFocus,
		dom.EventBlur:             t.handleBlur,
		dom.EventInput:            t.handleInput,
		dom.EventChange:           t.handleChange,
		dom.EventSubmit:           t.handleSubmit,
		dom.EventKeyDown:          t.handleKey(KindKeyDown),
		dom.EventKeyUp:            t.handleKey(KindKeyUp),
		dom.EventDragStart:        t.handleDragStart,
		dom.EventDrop:             t.handleDrop,
		dom.EventVisibilityChange: t.handlePageVisibility,
	}
	for ev := range mediaEvents {
		if _, ok := h[ev]; !ok {
			h[ev] = t.handleElementEvent
		}
	}
	for ev := range imageEvents {
		if _, ok := h[ev]; !ok {
			h[ev] = t.handleElementEvent
		}
	}
	return h
}

// capture runs build under the lock when tracking and forwards whatever it
// appended. build returns the actions to append; it may return none.
func (t *Tracker) capture(build func(ts int64) []Action) {
	t.mu.Lock()
	if !t.tracking {
		t.mu.Unlock()
		return
	}
	_, ts := t.stamp()
	built := build(ts)
	appended := make([]Action, 0, len(built))
	for _, a := range built {
		appended = append(appended, t.appendLocked(a))
	}
	t.mu.Unlock()
	t.forward(appended...)
}

func position(ev *dom.Event) *Position {
	return &Position{X: ev.ClientX, Y: ev.ClientY, PageX: ev.PageX, PageY: ev.PageY}
}

func modifiers(m dom.Modifiers) map[string]any {
	return map[string]any{
		"ctrlKey":  m.Ctrl,
		"altKey":   m.Alt,
		"shiftKey": m.Shift,
		"metaKey":  m.Meta,
	}
}

func (t *Tracker) handleClick(ev *dom.Event) {
	el := ev.Target
	t.capture(func(ts int64) []Action {
		payload := map[string]any{"modifiers": modifiers(ev.Modifiers)}
		if el != nil {
			payload["elementPosition"] = el.Rect
			if el.DashboardItem != "" {
				payload["dashboardItem"] = el.DashboardItem
				payload["dashboardAction"] = "item_click"
			}
			if isButton(el) {
				payload["buttonAction"] = classifyButton(el)
			}
		} else {
			t.log.Debug().Msg("Click without target")
		}
		out := []Action{{
			Kind:      KindClick,
			Timestamp: ts,
			Target:    describe(el, textPrefixLen),
			Position:  position(ev),
			Payload:   payload,
		}}
		if el.IsImage() {
			out = append(out, imageAction("click", el, ev, ts))
		}
		return out
	})
}

func (t *Tracker) handleFocus(ev *dom.Event) {
	el := ev.Target
	if !el.IsFormControl() {
		return
	}
	t.capture(func(ts int64) []Action {
		t.noteField(el)
		return []Action{{
			Kind:      KindFormFocus,
			Timestamp: ts,
			Target:    formTarget(el, true),
			Position:  &Position{X: ev.ClientX, Y: ev.ClientY},
		}}
	})
}

func (t *Tracker) handleBlur(ev *dom.Event) {
	el := ev.Target
	if !el.IsFormControl() {
		return
	}
	t.capture(func(ts int64) []Action {
		target := formTarget(el, false)
		target.Value = nullable(el.Value)
		return []Action{{Kind: KindFormBlur, Timestamp: ts, Target: target}}
	})
}

func (t *Tracker) handleInput(ev *dom.Event) {
	el := ev.Target
	if !el.IsFormControl() {
		return
	}
	t.capture(func(ts int64) []Action {
		var preview any
		if el.Value != "" {
			preview = truncate(el.Value, 20)
		}
		return []Action{{
			Kind:      KindFormInput,
			Timestamp: ts,
			Target:    formTarget(el, false),
			Payload: map[string]any{
				"valueLength":  len([]rune(el.Value)),
				"valuePreview": preview,
			},
		}}
	})
}

func (t *Tracker) handleChange(ev *dom.Event) {
	el := ev.Target
	if !el.IsFormControl() {
		return
	}
	t.capture(func(ts int64) []Action {
		return []Action{{
			Kind:      KindFormChange,
			Timestamp: ts,
			Target:    formTarget(el, false),
			Payload: map[string]any{
				"oldValue": nullable(el.DefaultValue),
				"newValue": nullable(el.Value),
			},
		}}
	})
}

func (t *Tracker) handleSubmit(ev *dom.Event) {
	form := ev.Target
	t.capture(func(ts int64) []Action {
		target := &Target{Tag: "form"}
		payload := map[string]any{}
		if form != nil {
			target.ID = nullable(form.ID)
			target.Class = nullable(form.Class)
			target.Ref = form.Ref
			payload["action"] = nullable(form.FormAction)
			payload["method"] = nullable(form.FormMethod)
		}
		fields := make(map[string]string, len(ev.FormData))
		for k, v := range ev.FormData {
			fields[k] = v
		}
		payload["formData"] = fields
		return []Action{{Kind: KindFormSubmit, Timestamp: ts, Target: target, Payload: payload}}
	})
}

func formTarget(el *dom.Element, withPlaceholder bool) *Target {
	t := &Target{
		Tag:       el.TagName(),
		ID:        nullable(el.ID),
		Name:      nullable(el.Name),
		InputType: nullable(el.InputType),
		Ref:       el.Ref,
	}
	if withPlaceholder {
		t.Placeholder = nullable(el.Placeholder)
	}
	return t
}

// noteField records a distinct form field. Caller holds mu.
func (t *Tracker) noteField(el *dom.Element) {
	name := el.Name
	if name == "" {
		name = el.ID
	}
	if name == "" {
		return
	}
	if _, ok := t.formFields[name]; ok {
		return
	}
	typ := el.InputType
	if typ == "" {
		typ = el.TagName()
	}
	t.formFields[name] = FieldInfo{Name: name, Type: typ}
	t.fieldOrder = append(t.fieldOrder, name)
}

func (t *Tracker) handleKey(kind Kind) dom.Handler {
	return func(ev *dom.Event) {
		t.capture(func(ts int64) []Action {
			a := Action{
				Kind:      kind,
				Timestamp: ts,
				Payload: map[string]any{
					"key":       ev.Key,
					"code":      ev.Code,
					"modifiers": modifiers(ev.Modifiers),
				},
			}
			if kind == KindKeyDown && ev.Target != nil {
				a.Target = &Target{
					Tag:       ev.Target.TagName(),
					ID:        nullable(ev.Target.ID),
					InputType: nullable(ev.Target.InputType),
					Ref:       ev.Target.Ref,
				}
			}
			return []Action{a}
		})
	}
}

func (t *Tracker) handleDragStart(ev *dom.Event) {
	t.capture(func(ts int64) []Action {
		return []Action{{
			Kind:      KindDragStart,
			Timestamp: ts,
			Target:    describe(ev.Target, 50),
			Position:  &Position{X: ev.ClientX, Y: ev.ClientY},
		}}
	})
}

func (t *Tracker) handleDrop(ev *dom.Event) {
	t.capture(func(ts int64) []Action {
		types := append([]string{}, ev.DataTransferTypes...)
		return []Action{{
			Kind:      KindDrop,
			Timestamp: ts,
			Position:  &Position{X: ev.ClientX, Y: ev.ClientY},
			Payload:   map[string]any{"dataTransfer": types},
		}}
	})
}

// handleElementEvent routes events that only matter on media or image
// targets.
func (t *Tracker) handleElementEvent(ev *dom.Event) {
	el := ev.Target
	switch {
	case el.IsMedia():
		suffix, ok := mediaEvents[ev.Type]
		if !ok {
			return
		}
		t.capture(func(ts int64) []Action {
			return []Action{mediaAction(suffix, el, ev, ts)}
		})
	case el.IsImage():
		suffix, ok := imageEvents[ev.Type]
		if !ok {
			return
		}
		t.capture(func(ts int64) []Action {
			return []Action{imageAction(suffix, el, ev, ts)}
		})
	}
}

func mediaAction(suffix string, el *dom.Element, ev *dom.Event, ts int64) Action {
	state := dom.MediaState{Volume: 1, Paused: true, PlaybackRate: 1}
	if ev.Media != nil {
		state = *ev.Media
	}
	return Action{
		Kind:      MediaKind(suffix),
		Timestamp: ts,
		Target: &Target{
			Tag:   el.TagName(),
			ID:    nullable(el.ID),
			Class: nullable(el.Class),
			Src:   nullable(el.Src),
			Ref:   el.Ref,
		},
		Payload: map[string]any{
			"currentTime":  state.CurrentTime,
			"duration":     state.Duration,
			"volume":       state.Volume,
			"paused":       state.Paused,
			"muted":        state.Muted,
			"playbackRate": state.PlaybackRate,
		},
	}
}

func imageAction(suffix string, el *dom.Element, ev *dom.Event, ts int64) Action {
	a := Action{
		Kind:      ImageKind(suffix),
		Timestamp: ts,
		Target: &Target{
			Tag:   "img",
			ID:    nullable(el.ID),
			Class: nullable(el.Class),
			Src:   nullable(el.Src),
			Alt:   nullable(el.Alt),
			Ref:   el.Ref,
		},
		Payload: map[string]any{
			"width":  el.NaturalWidth,
			"height": el.NaturalHeight,
		},
	}
	switch suffix {
	case "click", "right_click", "double_click":
		a.Position = &Position{X: ev.ClientX, Y: ev.ClientY}
	}
	return a
}

func (t *Tracker) handlePageVisibility(*dom.Event) {
	w := t.src.Window()
	t.capture(func(ts int64) []Action {
		return []Action{{
			Kind:      KindPageVisibilityChange,
			Timestamp: ts,
			Payload: map[string]any{
				"hidden":          w.Hidden,
				"visibilityState": w.VisibilityState,
			},
		}}
	})
}

func (t *Tracker) handleResize(*dom.Event) {
	w := t.src.Window()
	t.capture(func(ts int64) []Action {
		return []Action{{
			Kind:      KindWindowResize,
			Timestamp: ts,
			Payload: map[string]any{
				"width":       w.InnerWidth,
				"height":      w.InnerHeight,
				"outerWidth":  w.OuterWidth,
				"outerHeight": w.OuterHeight,
			},
		}}
	})
}

// handleBeforeUnload records page_unload and asks the forwarder to flush
// unconditionally.
func (t *Tracker) handleBeforeUnload(*dom.Event) {
	t.capture(func(ts int64) []Action {
		return []Action{{
			Kind:      KindPageUnload,
			Timestamp: ts,
			Payload:   map[string]any{"sessionDuration": ts - clock.Millis(t.pageStart)},
		}}
	})
	if t.opts.Forwarder != nil {
		t.opts.Forwarder.Flush()
	}
}
