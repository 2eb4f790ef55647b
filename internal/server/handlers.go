package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/vincentbai/classtrace/internal/analytics"
	"github.com/vincentbai/classtrace/internal/database"
	"github.com/vincentbai/classtrace/internal/logging"
	"github.com/vincentbai/classtrace/internal/metrics"
	"github.com/vincentbai/classtrace/internal/models"
)

const (
	maxBodyBytes = 10 << 20
	demoViews    = 150
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Health(r.Context()); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":    "error",
			"message":   err.Error(),
			"database":  "disconnected",
			"timestamp": s.clock.Now().UTC().Format(time.RFC3339Nano),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339Nano),
		"database":  "connected",
	})
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())

	var batch models.InteractionBatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&batch); err != nil {
		log.Warn().Err(err).Msg("rejected undecodable batch")
		writeJSON(w, http.StatusBadRequest, models.SinkResponse{Error: "Invalid interactions data"})
		return
	}
	if err := s.validate.Struct(&batch); err != nil {
		log.Warn().Err(err).Int("records", len(batch.Interactions)).Msg("rejected invalid batch")
		writeJSON(w, http.StatusBadRequest, models.SinkResponse{Error: "Invalid interactions data"})
		return
	}

	now := s.clock.Now()
	stored := s.resolve(batch, now)
	n, err := s.db.InsertBatch(r.Context(), stored)
	if err != nil {
		log.Error().Err(err).Str("session_id", stored.SessionID).Msg("failed to store interactions")
		writeJSON(w, http.StatusInternalServerError, models.SinkResponse{Error: "Failed to store interactions"})
		return
	}
	metrics.InteractionsStored.Add(float64(n))
	log.Debug().
		Str("session_id", stored.SessionID).
		Int("received", len(stored.Interactions)).
		Int("stored", n).
		Msg("stored interactions")

	writeJSON(w, http.StatusOK, models.SinkResponse{
		Success:   true,
		Stored:    n,
		Message:   "Stored " + strconv.Itoa(n) + " interactions",
		SessionID: stored.SessionID,
		UserID:    stored.UserID,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	})
}

// resolve fills in identity defaults and folds the batch metadata into
// every record's props.
func (s *Server) resolve(batch models.InteractionBatch, now time.Time) database.StoredBatch {
	md := batch.Metadata
	out := database.StoredBatch{
		SessionID:    md.SessionID,
		UserID:       md.UserID,
		UserRole:     md.UserRole,
		UserName:     md.UserName,
		URL:          md.URL,
		UserAgent:    md.UserAgent,
		ReceivedAt:   now,
		Interactions: make([]models.InteractionRecord, 0, len(batch.Interactions)),
	}
	if out.SessionID == "" {
		out.SessionID = "session-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:9]
	}
	if out.UserID == "" {
		out.UserID = "user-" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	if out.UserRole == "" {
		out.UserRole = "user"
	}
	if out.UserName == "" {
		out.UserName = "Unknown User"
	}

	for _, rec := range batch.Interactions {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.Props = mergeProps(rec.Props, map[string]any{
			"sessionId": out.SessionID,
			"userId":    out.UserID,
			"userRole":  out.UserRole,
			"userAgent": md.UserAgent,
			"url":       md.URL,
		})
		out.Interactions = append(out.Interactions, rec)
	}
	return out
}

// mergeProps adds the given keys to a props object without overwriting
// keys it already has. Empty values are skipped.
func mergeProps(raw string, add map[string]any) string {
	props := map[string]any{}
	if raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&props); err != nil || props == nil {
			props = map[string]any{}
		}
	}
	for k, v := range add {
		if sv, ok := v.(string); ok && sv == "" {
			continue
		}
		if _, ok := props[k]; !ok {
			props[k] = v
		}
	}
	b, err := json.Marshal(props)
	if err != nil {
		return raw
	}
	return string(b)
}

// parseTimeRange maps 1d, 7d and 30d to a window length. Anything else is 7d.
func parseTimeRange(v string) (string, time.Duration) {
	switch v {
	case "1d":
		return v, 24 * time.Hour
	case "30d":
		return v, 30 * 24 * time.Hour
	default:
		return "7d", 7 * 24 * time.Hour
	}
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	label, window := parseTimeRange(r.URL.Query().Get("timeRange"))
	a, err := s.db.Behavior(r.Context(), r.URL.Query().Get("userId"), s.clock.Now().Add(-window))
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to get analytics")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Failed to get analytics",
		})
		return
	}
	a.TimeRange = label
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": a})
}

func (s *Server) handleDashboards(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	var views []models.PageView

	if demo := r.URL.Query().Get("demo"); demo != "" {
		seed, err := strconv.ParseInt(demo, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status":  "error",
				"message": "demo must be an integer seed",
			})
			return
		}
		views = analytics.Generate(seed, demoViews, now)
	} else {
		_, window := parseTimeRange(r.URL.Query().Get("timeRange"))
		stored, err := s.db.PageViews(r.Context(), now.Add(-window))
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("failed to load page views")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status":  "error",
				"message": "Failed to get dashboard analytics",
			})
			return
		}
		for i := range stored {
			stored[i].DashboardName = analytics.DashboardName(stored[i].DashboardID)
		}
		views = stored
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": analytics.Compute(views)})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.Users(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to list users")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "Failed to get users",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "users": users})
}
