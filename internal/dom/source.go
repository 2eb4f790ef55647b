// Package dom describes the browser document as seen by the tracking core: a
// capability to listen for events and observe element visibility, plus plain
// snapshots of elements, events and window metrics. Nothing here touches a
// real browser; a host binds Source to one, and Dispatcher implements it in
// memory for tests and recorded sessions.
package dom

// Event types the capture layer subscribes to.
const (
	EventClick            = "click"
	EventMouseEnter       = "mouseenter"
	EventMouseLeave       = "mouseleave"
	EventScroll           = "scroll"
	EventFocus            = "focus"
	EventBlur             = "blur"
	EventInput            = "input"
	EventChange           = "change"
	EventSubmit           = "submit"
	EventKeyDown          = "keydown"
	EventKeyUp            = "keyup"
	EventDragStart        = "dragstart"
	EventDrop             = "drop"
	EventVisibilityChange = "visibilitychange"
	EventResize           = "resize"
	EventBeforeUnload     = "beforeunload"

	// media element events
	EventPlay             = "play"
	EventPause            = "pause"
	EventSeeked           = "seeked"
	EventVolumeChange     = "volumechange"
	EventFullscreenChange = "fullscreenchange"
	EventTimeUpdate       = "timeupdate"
	EventEnded            = "ended"
	EventError            = "error"

	// image element events
	EventLoad        = "load"
	EventContextMenu = "contextmenu"
	EventDblClick    = "dblclick"
)

// Handler receives one dispatched event.
type Handler func(*Event)

// IntersectionHandler receives visibility transitions for observed elements.
type IntersectionHandler func([]IntersectionEntry)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

// ObserverID identifies a registered intersection observer.
type ObserverID uint64

// ListenOptions mirror addEventListener options.
type ListenOptions struct {
	// Capture listeners run before any bubble-phase listener and cannot be
	// suppressed by StopPropagation in application handlers.
	Capture bool
	Passive bool
}

// ObserveOptions configure an intersection observer.
type ObserveOptions struct {
	// Thresholds are the visibility ratios whose crossing is reported.
	Thresholds []float64
	// Match selects the elements to observe. Nil observes every element.
	Match func(*Element) bool
}

// Source is the document/window capability the tracking core is written
// against.
type Source interface {
	AddListener(eventType string, h Handler, opts ListenOptions) ListenerID
	RemoveListener(id ListenerID)
	Observe(opts ObserveOptions, h IntersectionHandler) ObserverID
	Unobserve(id ObserverID)
	Window() Window
}
