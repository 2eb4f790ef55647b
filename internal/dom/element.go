package dom

import "strings"

// NodeID is a stable per-instance identity assigned by the Source. Zero means
// the source could not identify the node.
type NodeID uint64

// Rect is a bounding client rectangle.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is a snapshot of a DOM element taken when the event fired. Empty
// string fields mean the attribute was absent.
type Element struct {
	Ref   NodeID `json:"ref,omitempty"`
	Tag   string `json:"tag"`
	ID    string `json:"id,omitempty"`
	Class string `json:"class,omitempty"`
	Text  string `json:"text,omitempty"`

	// form controls
	InputType    string `json:"inputType,omitempty"`
	Value        string `json:"value,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
	Name         string `json:"name,omitempty"`
	Placeholder  string `json:"placeholder,omitempty"`
	FormID       string `json:"formId,omitempty"`
	FormAction   string `json:"formAction,omitempty"`
	FormMethod   string `json:"formMethod,omitempty"`

	// media and images
	Src           string `json:"src,omitempty"`
	Alt           string `json:"alt,omitempty"`
	NaturalWidth  int    `json:"naturalWidth,omitempty"`
	NaturalHeight int    `json:"naturalHeight,omitempty"`

	Rect  Rect              `json:"rect"`
	Attrs map[string]string `json:"attrs,omitempty"`

	// DashboardItem is the data-dashboard-item value of the closest ancestor
	// (or self) carrying one.
	DashboardItem string `json:"dashboardItem,omitempty"`
}

// TagName returns the lower-cased tag, or "" for a nil element.
func (e *Element) TagName() string {
	if e == nil {
		return ""
	}
	return strings.ToLower(e.Tag)
}

// HasClass reports whether class is one of the element's classes.
func (e *Element) HasClass(class string) bool {
	if e == nil {
		return false
	}
	for _, c := range strings.Fields(e.Class) {
		if c == class {
			return true
		}
	}
	return false
}

// Attr returns an attribute value. Safe on a nil element.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil || e.Attrs == nil {
		return "", false
	}
	v, ok := e.Attrs[name]
	return v, ok
}

// IsFormControl reports whether the element is an input, textarea or select.
func (e *Element) IsFormControl() bool {
	switch e.TagName() {
	case "input", "textarea", "select":
		return true
	}
	return false
}

// IsMedia reports whether the element is a video or audio element.
func (e *Element) IsMedia() bool {
	switch e.TagName() {
	case "video", "audio":
		return true
	}
	return false
}

// IsImage reports whether the element is an img.
func (e *Element) IsImage() bool {
	return e.TagName() == "img"
}

// Modifiers are the keyboard modifier states of a pointer or key event.
type Modifiers struct {
	Ctrl  bool `json:"ctrlKey"`
	Alt   bool `json:"altKey"`
	Shift bool `json:"shiftKey"`
	Meta  bool `json:"metaKey"`
}

// MediaState is the playback state of a media element at event time.
type MediaState struct {
	CurrentTime  float64 `json:"currentTime"`
	Duration     float64 `json:"duration"`
	Volume       float64 `json:"volume"`
	Paused       bool    `json:"paused"`
	Muted        bool    `json:"muted"`
	PlaybackRate float64 `json:"playbackRate"`
}

// Window is a snapshot of window and document metrics.
type Window struct {
	ScrollTop       float64 `json:"scrollTop"`
	ScrollHeight    float64 `json:"scrollHeight"`
	ClientHeight    float64 `json:"clientHeight"`
	InnerWidth      int     `json:"innerWidth"`
	InnerHeight     int     `json:"innerHeight"`
	OuterWidth      int     `json:"outerWidth"`
	OuterHeight     int     `json:"outerHeight"`
	ScreenWidth     int     `json:"screenWidth"`
	ScreenHeight    int     `json:"screenHeight"`
	Hidden          bool    `json:"hidden"`
	VisibilityState string  `json:"visibilityState"`
	URL             string  `json:"url"`
	Path            string  `json:"path"`
	Title           string  `json:"title"`
	Referrer        string  `json:"referrer"`
	UserAgent       string  `json:"userAgent"`
}
