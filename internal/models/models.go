package models

import "time"

// Wire vocabulary accepted by the sink. Anything else travels as custom with
// the original kind inside props.
const (
	KindPageView = "pageview"
	KindClick    = "click"
	KindScroll   = "scroll"
	KindPlay     = "play"
	KindPause    = "pause"
	KindCustom   = "custom"
)

// WireKinds lists every accepted InteractionRecord type.
var WireKinds = []string{KindPageView, KindClick, KindScroll, KindPlay, KindPause, KindCustom}

// IsWireKind reports whether k is in the wire vocabulary.
func IsWireKind(k string) bool {
	for _, w := range WireKinds {
		if w == k {
			return true
		}
	}
	return false
}

// InteractionRecord is one normalized interaction as sent to the sink.
type InteractionRecord struct {
	ID         string   `json:"id,omitempty" validate:"omitempty,max=128"`
	Type       string   `json:"type" validate:"required,oneof=pageview click scroll play pause custom"`
	URL        string   `json:"url" validate:"max=2048"`
	DurationMS int64    `json:"duration_ms" validate:"gte=0"`
	ScrollPct  *float64 `json:"scroll_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	Action     *string  `json:"action,omitempty"`
	ElemRef    *string  `json:"elem_ref,omitempty"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	MediaPosMS *int64   `json:"media_pos_ms,omitempty" validate:"omitempty,gte=0"`
	ZoomPct    *float64 `json:"zoom_pct,omitempty"`
	Downloaded *bool    `json:"downloaded,omitempty"`
	Props      string   `json:"props" validate:"omitempty,json"` // JSON object of auxiliary fields
}

// Props is the auxiliary object carried in InteractionRecord.Props.
type Props struct {
	OriginalType string         `json:"originalType,omitempty"`
	Timestamp    int64          `json:"timestamp"`
	SessionID    string         `json:"sessionId,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	UserRole     string         `json:"userRole,omitempty"`
	UserName     string         `json:"userName,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Count        int            `json:"count,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// BatchMetadata identifies who produced a batch.
type BatchMetadata struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserRole  string `json:"userRole"`
	UserName  string `json:"userName"`
	URL       string `json:"url"`
	UserAgent string `json:"userAgent"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// InteractionBatch is the body of POST /api/interactions.
type InteractionBatch struct {
	Interactions []InteractionRecord `json:"interactions" validate:"required,min=1,max=1000,dive"`
	Metadata     BatchMetadata       `json:"metadata"`
}

// SinkResponse is the sink's reply to a batch.
type SinkResponse struct {
	Success   bool   `json:"success"`
	Stored    int    `json:"stored,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PageView is one dashboard visit as consumed by analytics. TimeOnPage is
// in seconds.
type PageView struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	DashboardID   string    `json:"dashboardId"`
	DashboardName string    `json:"dashboardName"`
	Timestamp     time.Time `json:"timestamp"`
	TimeOnPage    float64   `json:"timeOnPage"`
	Clicks        int       `json:"clicks"`
}
