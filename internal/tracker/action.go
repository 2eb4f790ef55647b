package tracker

import (
	"strings"

	"github.com/vincentbai/classtrace/internal/dom"
)

// Kind names the variant of an Action.
type Kind string

const (
	KindClick                 Kind = "click"
	KindHover                 Kind = "hover"
	KindScroll                Kind = "scroll"
	KindScrollDirectionChange Kind = "scroll_direction_change"
	KindFormFocus             Kind = "form_focus"
	KindFormBlur              Kind = "form_blur"
	KindFormInput             Kind = "form_input"
	KindFormChange            Kind = "form_change"
	KindFormSubmit            Kind = "form_submit"
	KindKeyDown               Kind = "keydown"
	KindKeyUp                 Kind = "keyup"
	KindDragStart             Kind = "drag_start"
	KindDrop                  Kind = "drop"
	KindElementVisible        Kind = "element_visible"
	KindElementHidden         Kind = "element_hidden"
	KindPageVisibilityChange  Kind = "page_visibility_change"
	KindWindowResize          Kind = "window_resize"
	KindPageUnload            Kind = "page_unload"

	KindMediaPlay  Kind = "media_play"
	KindMediaPause Kind = "media_pause"
)

const (
	mediaPrefix = "media_"
	imagePrefix = "image_"
	formPrefix  = "form_"
)

// MediaKind returns the media_<event> kind.
func MediaKind(event string) Kind { return Kind(mediaPrefix + event) }

// ImageKind returns the image_<event> kind.
func ImageKind(event string) Kind { return Kind(imagePrefix + event) }

// IsMedia reports whether k is a media_<event> kind.
func (k Kind) IsMedia() bool { return strings.HasPrefix(string(k), mediaPrefix) }

// IsImage reports whether k is an image_<event> kind.
func (k Kind) IsImage() bool { return strings.HasPrefix(string(k), imagePrefix) }

// IsForm reports whether k is a form_<event> kind.
func (k Kind) IsForm() bool { return strings.HasPrefix(string(k), formPrefix) }

// Target describes the element an action originated from. Missing
// attributes are nil.
type Target struct {
	Tag         string     `json:"tag"`
	ID          *string    `json:"id"`
	Class       *string    `json:"className"`
	Text        *string    `json:"text"`
	InputType   *string    `json:"type,omitempty"`
	Value       *string    `json:"value,omitempty"`
	Name        *string    `json:"name,omitempty"`
	Placeholder *string    `json:"placeholder,omitempty"`
	Src         *string    `json:"src,omitempty"`
	Alt         *string    `json:"alt,omitempty"`
	Ref         dom.NodeID `json:"-"`
}

// Position is a pointer location.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	PageX float64 `json:"pageX,omitempty"`
	PageY float64 `json:"pageY,omitempty"`
}

// Action is one captured user event. Actions are never modified after they
// are appended to the log; Payload must be treated as read-only.
type Action struct {
	Kind      Kind           `json:"type"`
	Timestamp int64          `json:"timestamp"` // unix millis
	URL       string         `json:"url,omitempty"`
	Target    *Target        `json:"element,omitempty"`
	Position  *Position      `json:"coordinates,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// HeatmapKey is the tag[.class] key used by click heatmaps.
func (a Action) HeatmapKey() string {
	if a.Target == nil {
		return "unknown"
	}
	if a.Target.Class != nil {
		return a.Target.Tag + "." + *a.Target.Class
	}
	return a.Target.Tag
}

// PayloadString returns a string payload field, or "".
func (a Action) PayloadString(key string) string {
	if s, ok := a.Payload[key].(string); ok {
		return s
	}
	return ""
}

// PayloadFloat returns a numeric payload field.
func (a Action) PayloadFloat(key string) (float64, bool) {
	switch v := a.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

const textPrefixLen = 100

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// describe builds a Target from an element snapshot. A nil element yields nil.
func describe(e *dom.Element, textLen int) *Target {
	if e == nil {
		return nil
	}
	tag := e.TagName()
	if tag == "" {
		tag = "unknown"
	}
	return &Target{
		Tag:         tag,
		ID:          nullable(e.ID),
		Class:       nullable(e.Class),
		Text:        nullable(truncate(e.Text, textLen)),
		InputType:   nullable(e.InputType),
		Value:       nullable(e.Value),
		Name:        nullable(e.Name),
		Placeholder: nullable(e.Placeholder),
		Src:         nullable(e.Src),
		Alt:         nullable(e.Alt),
		Ref:         e.Ref,
	}
}

var buttonActions = []string{"save", "edit", "delete", "add", "cancel", "submit", "login", "logout"}

// classifyButton derives a semantic action from a button's text or class.
func classifyButton(e *dom.Element) string {
	text := strings.ToLower(e.Text)
	class := strings.ToLower(e.Class)
	for _, a := range buttonActions {
		if strings.Contains(text, a) || strings.Contains(class, a) {
			return a
		}
	}
	return "unknown"
}

func isButton(e *dom.Element) bool {
	return e.TagName() == "button" || strings.EqualFold(e.InputType, "button")
}
