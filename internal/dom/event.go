package dom

// Event is one dispatched DOM event. Fields that do not apply to the event
// type are left zero.
type Event struct {
	Type   string   `json:"type"`
	Target *Element `json:"target,omitempty"`

	ClientX float64 `json:"clientX"`
	ClientY float64 `json:"clientY"`
	PageX   float64 `json:"pageX"`
	PageY   float64 `json:"pageY"`

	Modifiers Modifiers `json:"modifiers"`
	Key       string    `json:"key,omitempty"`
	Code      string    `json:"code,omitempty"`

	DataTransferTypes []string          `json:"dataTransferTypes,omitempty"`
	FormData          map[string]string `json:"formData,omitempty"`
	Media             *MediaState       `json:"media,omitempty"`

	stopped bool
}

// StopPropagation prevents later bubble-phase listeners from running.
func (e *Event) StopPropagation() { e.stopped = true }

// PropagationStopped reports whether StopPropagation was called.
func (e *Event) PropagationStopped() bool { return e.stopped }

// IntersectionEntry reports an observed element crossing a visibility
// threshold.
type IntersectionEntry struct {
	Target            *Element `json:"target"`
	IsIntersecting    bool     `json:"isIntersecting"`
	IntersectionRatio float64  `json:"intersectionRatio"`
	BoundingRect      Rect     `json:"boundingRect"`
}
