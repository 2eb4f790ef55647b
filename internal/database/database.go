package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/vincentbai/classtrace/internal/models"
)

// Database is the sink's event store.
type Database struct {
	db *sqlx.DB
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sqlx.Open("sqlite", databasePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS users(
	  user_id    TEXT    PRIMARY KEY,
	  role       TEXT    NOT NULL,
	  name       TEXT    NOT NULL DEFAULT '',
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions(
	  session_id TEXT    PRIMARY KEY,
	  user_id    TEXT    NOT NULL REFERENCES users(user_id),
	  started_at INTEGER NOT NULL,
	  entry_url  TEXT    NOT NULL DEFAULT '',
	  user_agent TEXT    NOT NULL DEFAULT 'Unknown'
	);
	CREATE TABLE IF NOT EXISTS events(
	  event_id     TEXT    PRIMARY KEY,
	  session_id   TEXT    NOT NULL REFERENCES sessions(session_id),
	  user_id      TEXT    NOT NULL REFERENCES users(user_id),
	  ts           INTEGER NOT NULL,
	  type         TEXT    NOT NULL CHECK (type IN ('pageview','click','scroll','play','pause','custom')),
	  url          TEXT    NOT NULL,
	  duration_ms  INTEGER NOT NULL DEFAULT 0,
	  scroll_pct   REAL,
	  action       TEXT,
	  elem_ref     TEXT,
	  x            REAL,
	  y            REAL,
	  media_pos_ms INTEGER,
	  zoom_pct     REAL,
	  downloaded   INTEGER,
	  props        TEXT    NOT NULL CHECK (json_valid(props))
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts      ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_type    ON events(type);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_user  ON sessions(user_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Health pings the database.
func (d *Database) Health(ctx context.Context) error {
	var ok int
	if err := d.db.GetContext(ctx, &ok, `SELECT 1`); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// StoredBatch is a validated batch with the identity fields resolved.
type StoredBatch struct {
	SessionID    string
	UserID       string
	UserRole     string
	UserName     string
	URL          string
	UserAgent    string
	ReceivedAt   time.Time
	Interactions []models.InteractionRecord
}

// InsertBatch stores the user, the session and every interaction in one
// transaction. Users and sessions are created on first sight; events whose
// id is already stored are skipped. It returns the number of new events.
func (d *Database) InsertBatch(ctx context.Context, batch StoredBatch) (int, error) {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := batch.ReceivedAt.UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(user_id, role, name, created_at) VALUES(?,?,?,?)`,
		batch.UserID, batch.UserRole, batch.UserName, now); err != nil {
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	agent := batch.UserAgent
	if agent == "" {
		agent = "Unknown"
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions(session_id, user_id, started_at, entry_url, user_agent) VALUES(?,?,?,?,?)`,
		batch.SessionID, batch.UserID, now, batch.URL, agent); err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	statement, err := tx.PreparexContext(ctx, `
	INSERT OR IGNORE INTO events(
	  event_id, session_id, user_id, ts, type, url, duration_ms, scroll_pct, action,
	  elem_ref, x, y, media_pos_ms, zoom_pct, downloaded, props)
	VALUES(?,?,?,COALESCE(NULLIF(json_extract(?, '$.timestamp'), 0), ?),?,?,?,?,?,?,?,?,?,?,?,json(?))`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	stored := 0
	for _, r := range batch.Interactions {
		url := r.URL
		if url == "" {
			url = batch.URL
		}
		props := r.Props
		if props == "" {
			props = "{}"
		}
		var downloaded any
		if r.Downloaded != nil {
			downloaded = *r.Downloaded
		}
		res, err := statement.ExecContext(ctx,
			r.ID, batch.SessionID, batch.UserID, props, now, r.Type, url, r.DurationMS,
			r.ScrollPct, r.Action, r.ElemRef, r.X, r.Y, r.MediaPosMS, r.ZoomPct, downloaded, props)
		if err != nil {
			return 0, fmt.Errorf("failed to insert event %s: %w", r.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

// BehaviorAnalysis summarizes sessions started since a point in time.
type BehaviorAnalysis struct {
	TotalEvents    int            `json:"totalEvents"`
	UniqueUsers    int            `json:"uniqueUsers"`
	UniqueSessions int            `json:"uniqueSessions"`
	EventTypes     map[string]int `json:"eventTypes"`
	PopularPages   map[string]int `json:"popularPages"`
	UserRoles      map[string]int `json:"userRoles"`
	TimeRange      string         `json:"timeRange"`
}

type keyCount struct {
	Key   string `db:"k"`
	Count int    `db:"n"`
}

// Behavior computes the analysis for sessions started at or after since,
// optionally restricted to one user.
func (d *Database) Behavior(ctx context.Context, userID string, since time.Time) (*BehaviorAnalysis, error) {
	filter := `s.started_at >= ?`
	args := []any{since.UnixMilli()}
	if userID != "" {
		filter += ` AND u.user_id = ?`
		args = append(args, userID)
	}

	var basic struct {
		Users    int `db:"unique_users"`
		Sessions int `db:"unique_sessions"`
		Events   int `db:"total_events"`
	}
	if err := d.db.GetContext(ctx, &basic, `
	SELECT COUNT(DISTINCT u.user_id)    AS unique_users,
	       COUNT(DISTINCT s.session_id) AS unique_sessions,
	       COUNT(e.event_id)            AS total_events
	FROM users u
	JOIN sessions s ON u.user_id = s.user_id
	LEFT JOIN events e ON s.session_id = e.session_id
	WHERE `+filter, args...); err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}

	a := &BehaviorAnalysis{
		TotalEvents:    basic.Events,
		UniqueUsers:    basic.Users,
		UniqueSessions: basic.Sessions,
	}
	var err error
	if a.EventTypes, err = d.counts(ctx, `
	SELECT e.type AS k, COUNT(*) AS n
	FROM events e
	JOIN sessions s ON e.session_id = s.session_id
	JOIN users u ON s.user_id = u.user_id
	WHERE `+filter+`
	GROUP BY e.type ORDER BY n DESC`, args); err != nil {
		return nil, fmt.Errorf("failed to count event types: %w", err)
	}
	if a.PopularPages, err = d.counts(ctx, `
	SELECT e.url AS k, COUNT(*) AS n
	FROM events e
	JOIN sessions s ON e.session_id = s.session_id
	JOIN users u ON s.user_id = u.user_id
	WHERE e.type = 'pageview' AND `+filter+`
	GROUP BY e.url ORDER BY n DESC, e.url LIMIT 10`, args); err != nil {
		return nil, fmt.Errorf("failed to count popular pages: %w", err)
	}
	if a.UserRoles, err = d.counts(ctx, `
	SELECT u.role AS k, COUNT(DISTINCT u.user_id) AS n
	FROM users u
	JOIN sessions s ON u.user_id = s.user_id
	WHERE `+filter+`
	GROUP BY u.role`, args); err != nil {
		return nil, fmt.Errorf("failed to count roles: %w", err)
	}
	return a, nil
}

func (d *Database) counts(ctx context.Context, query string, args []any) (map[string]int, error) {
	var rows []keyCount
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

// UserSummary is one row of the user list. Times are unix millis.
type UserSummary struct {
	UserID        string `db:"user_id" json:"user_id"`
	Role          string `db:"role" json:"role"`
	Name          string `db:"name" json:"name"`
	CreatedAt     int64  `db:"created_at" json:"created_at"`
	TotalSessions int    `db:"total_sessions" json:"total_sessions"`
	TotalEvents   int    `db:"total_events" json:"total_events"`
	LastSession   *int64 `db:"last_session" json:"last_session"`
}

// Users lists every user, newest first.
func (d *Database) Users(ctx context.Context) ([]UserSummary, error) {
	users := []UserSummary{}
	err := d.db.SelectContext(ctx, &users, `
	SELECT u.user_id, u.role, u.name, u.created_at,
	       COUNT(DISTINCT s.session_id) AS total_sessions,
	       COUNT(e.event_id)            AS total_events,
	       MAX(s.started_at)            AS last_session
	FROM users u
	LEFT JOIN sessions s ON u.user_id = s.user_id
	LEFT JOIN events e ON s.session_id = e.session_id
	GROUP BY u.user_id, u.role, u.name, u.created_at
	ORDER BY u.created_at DESC, u.user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

type pageViewRow struct {
	ID         string         `db:"event_id"`
	UserID     string         `db:"user_id"`
	UserName   sql.NullString `db:"user_name"`
	Page       sql.NullString `db:"page"`
	TS         int64          `db:"ts"`
	DurationMS int64          `db:"duration_ms"`
	Clicks     sql.NullInt64  `db:"clicks"`
}

// PageViews rebuilds finished page visits from stored page_exit events at
// or after since. DashboardName is left equal to the page id.
func (d *Database) PageViews(ctx context.Context, since time.Time) ([]models.PageView, error) {
	var rows []pageViewRow
	err := d.db.SelectContext(ctx, &rows, `
	SELECT e.event_id, e.user_id,
	       COALESCE(NULLIF(json_extract(e.props, '$.userName'), ''), u.name) AS user_name,
	       json_extract(e.props, '$.data.page')         AS page,
	       e.ts, e.duration_ms,
	       CAST(json_extract(e.props, '$.data.clicksOnPage') AS INTEGER) AS clicks
	FROM events e
	JOIN users u ON e.user_id = u.user_id
	WHERE json_extract(e.props, '$.originalType') = 'page_exit' AND e.ts >= ?
	ORDER BY e.ts DESC, e.event_id`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to load page views: %w", err)
	}

	views := make([]models.PageView, 0, len(rows))
	for _, r := range rows {
		if !r.Page.Valid || r.Page.String == "" {
			continue
		}
		views = append(views, models.PageView{
			ID:            r.ID,
			UserID:        r.UserID,
			UserName:      r.UserName.String,
			DashboardID:   r.Page.String,
			DashboardName: r.Page.String,
			Timestamp:     time.UnixMilli(r.TS).UTC(),
			TimeOnPage:    float64(r.DurationMS) / 1000,
			Clicks:        int(r.Clicks.Int64),
		})
	}
	return views, nil
}
