package upload

import (
	"math"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vincentbai/classtrace/internal/flow"
	"github.com/vincentbai/classtrace/internal/models"
	"github.com/vincentbai/classtrace/internal/tracker"
)

// MapKind translates an action or flow event kind into the wire vocabulary.
func MapKind(kind string) string {
	switch kind {
	case models.KindClick, models.KindPageView, models.KindScroll, models.KindPlay, models.KindPause:
		return kind
	case string(tracker.KindMediaPlay):
		return models.KindPlay
	case string(tracker.KindMediaPause):
		return models.KindPause
	case string(flow.EventPageView):
		return models.KindPageView
	}
	return models.KindCustom
}

// FromAction builds a record from a captured action. md supplies the session
// identity copied into props.
func FromAction(a tracker.Action, md models.BatchMetadata) models.InteractionRecord {
	rec := models.InteractionRecord{
		ID:   uuid.NewString(),
		Type: MapKind(string(a.Kind)),
		URL:  a.URL,
	}
	if rec.URL == "" {
		rec.URL = md.URL
	}
	fill(&rec, string(a.Kind), a.Payload)

	if a.Target != nil {
		ref := a.HeatmapKey()
		if a.Target.ID != nil {
			ref = a.Target.Tag + "#" + *a.Target.ID
		}
		rec.ElemRef = &ref
	}
	if a.Position != nil {
		x, y := a.Position.X, a.Position.Y
		rec.X, rec.Y = &x, &y
	}
	if t, ok := a.PayloadFloat("currentTime"); ok && t >= 0 {
		ms := int64(math.Round(t * 1000))
		rec.MediaPosMS = &ms
	}

	rec.Props = encodeProps(models.Props{
		OriginalType: string(a.Kind),
		Timestamp:    a.Timestamp,
		SessionID:    md.SessionID,
		UserID:       md.UserID,
		UserRole:     md.UserRole,
		UserName:     md.UserName,
		UserAgent:    md.UserAgent,
		Count:        intField(a.Payload, "count"),
		Data:         a.Payload,
	})
	return rec
}

// FromFlowEvent builds a record from a flow event. The event carries its own
// session identity. The record id is the event id so a redelivered event is
// stored once.
func FromFlowEvent(ev flow.Event) models.InteractionRecord {
	rec := models.InteractionRecord{
		ID:   ev.ID,
		Type: MapKind(string(ev.Type)),
		URL:  ev.URL,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	fill(&rec, string(ev.Type), ev.Data)
	if page, ok := ev.Data["page"].(string); ok && page != "" {
		rec.ElemRef = &page
	}
	rec.Props = encodeProps(models.Props{
		OriginalType: string(ev.Type),
		Timestamp:    ev.Timestamp,
		SessionID:    ev.SessionID,
		UserID:       ev.UserID,
		UserRole:     ev.UserRole,
		UserName:     ev.UserName,
		Data:         ev.Data,
	})
	return rec
}

// fill maps the common payload fields: duration, depth and action.
func fill(rec *models.InteractionRecord, kind string, data map[string]any) {
	for _, key := range []string{"duration", "timeSpent", "sessionDuration"} {
		if d, ok := number(data[key]); ok && d >= 0 {
			rec.DurationMS = int64(math.Round(d))
			break
		}
	}
	for _, key := range []string{"maxDepth", "maxScrollDepth", "scrollPercentage"} {
		if p, ok := number(data[key]); ok {
			p = math.Max(0, math.Min(100, p))
			rec.ScrollPct = &p
			break
		}
	}
	action := kind
	if s, ok := data["action"].(string); ok && s != "" {
		action = s
	}
	rec.Action = &action
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func intField(data map[string]any, key string) int {
	n, _ := number(data[key])
	return int(n)
}

func encodeProps(p models.Props) string {
	data, err := json.Marshal(p)
	if err != nil {
		// payloads come from captured events; drop the data rather than
		// the record
		p.Data = nil
		data, _ = json.Marshal(p)
	}
	return string(data)
}
