package database

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/vincentbai/classtrace/internal/models"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	// Create temporary directory for test database
	tmpDir, err := os.MkdirTemp("", "classtrace-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := NewDatabase(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Return cleanup function
	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

var received = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func batch(session, user string, records ...models.InteractionRecord) StoredBatch {
	return StoredBatch{
		SessionID:    session,
		UserID:       user,
		UserRole:     "teacher",
		UserName:     "Name " + user,
		URL:          "/dashboard",
		UserAgent:    "test-agent",
		ReceivedAt:   received,
		Interactions: records,
	}
}

func record(id, kind, url string) models.InteractionRecord {
	return models.InteractionRecord{ID: id, Type: kind, URL: url, Props: `{"originalType":"` + kind + `"}`}
}

func pageExit(id, page string, ts int64, spentMS int64, clicks int) models.InteractionRecord {
	return models.InteractionRecord{
		ID:         id,
		Type:       models.KindCustom,
		URL:        "/" + page,
		DurationMS: spentMS,
		Props: `{"originalType":"page_exit","timestamp":` + strconv.FormatInt(ts, 10) +
			`,"data":{"page":"` + page + `","timeSpent":` + strconv.FormatInt(spentMS, 10) + `,"clicksOnPage":` + strconv.Itoa(clicks) + `}}`,
	}
}

func TestNewDatabase(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Expected non-nil database")
	}
	if db.db == nil {
		t.Fatal("Expected non-nil sqlx.DB")
	}
	if err := db.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy database, got %v", err)
	}
}

func TestInsertBatch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	stored, err := db.InsertBatch(ctx, batch("s1", "u1",
		record("e1", models.KindPageView, "/teacher"),
		record("e2", models.KindClick, ""),
	))
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if stored != 2 {
		t.Errorf("Expected 2 stored, got %d", stored)
	}

	var url string
	if err := db.db.Get(&url, `SELECT url FROM events WHERE event_id = 'e2'`); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if url != "/dashboard" {
		t.Errorf("Expected batch URL fallback, got %q", url)
	}

	var agent string
	if err := db.db.Get(&agent, `SELECT user_agent FROM sessions WHERE session_id = 's1'`); err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if agent != "test-agent" {
		t.Errorf("Expected user agent stored, got %q", agent)
	}
}

func TestInsertBatchIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	b := batch("s1", "u1", record("e1", models.KindClick, "/a"), record("e2", models.KindClick, "/a"))
	if _, err := db.InsertBatch(ctx, b); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	b.Interactions = append(b.Interactions, record("e3", models.KindScroll, "/a"))
	stored, err := db.InsertBatch(ctx, b)
	if err != nil {
		t.Fatalf("Second insert failed: %v", err)
	}
	if stored != 1 {
		t.Errorf("Expected only the new record stored, got %d", stored)
	}

	var count int
	if err := db.db.Get(&count, `SELECT COUNT(*) FROM events`); err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 events, got %d", count)
	}
}

func TestInsertBatchRejectsUnknownType(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := db.InsertBatch(ctx, batch("s1", "u1",
		record("e1", models.KindClick, "/a"),
		record("e2", "hover", "/a"),
	))
	if err == nil {
		t.Fatal("Expected error for unknown type")
	}

	var count int
	if err := db.db.Get(&count, `SELECT COUNT(*) FROM events`); err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected transaction rolled back, found %d events", count)
	}
}

func TestBehavior(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := db.InsertBatch(ctx, batch("s1", "u1",
		record("e1", models.KindPageView, "/teacher"),
		record("e2", models.KindPageView, "/teacher"),
		record("e3", models.KindClick, "/teacher"),
	)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	b := batch("s2", "u2", record("e4", models.KindPageView, "/ceo"))
	b.UserRole = "ceo"
	if _, err := db.InsertBatch(ctx, b); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	a, err := db.Behavior(ctx, "", received.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Behavior failed: %v", err)
	}
	if a.TotalEvents != 4 || a.UniqueUsers != 2 || a.UniqueSessions != 2 {
		t.Errorf("Unexpected totals: %+v", a)
	}
	if a.EventTypes["pageview"] != 3 || a.EventTypes["click"] != 1 {
		t.Errorf("Unexpected event types: %v", a.EventTypes)
	}
	if a.PopularPages["/teacher"] != 2 || a.PopularPages["/ceo"] != 1 {
		t.Errorf("Unexpected popular pages: %v", a.PopularPages)
	}
	if a.UserRoles["teacher"] != 1 || a.UserRoles["ceo"] != 1 {
		t.Errorf("Unexpected roles: %v", a.UserRoles)
	}

	one, err := db.Behavior(ctx, "u2", received.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Behavior for user failed: %v", err)
	}
	if one.TotalEvents != 1 || one.UniqueUsers != 1 {
		t.Errorf("Unexpected per-user totals: %+v", one)
	}

	later, err := db.Behavior(ctx, "", received.Add(time.Hour))
	if err != nil {
		t.Fatalf("Behavior failed: %v", err)
	}
	if later.TotalEvents != 0 || len(later.EventTypes) != 0 {
		t.Errorf("Expected nothing after the window, got %+v", later)
	}
}

func TestUsers(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := db.InsertBatch(ctx, batch("s1", "u1", record("e1", models.KindClick, "/a"))); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := db.InsertBatch(ctx, batch("s2", "u1", record("e2", models.KindClick, "/a"), record("e3", models.KindClick, "/a"))); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	users, err := db.Users(ctx)
	if err != nil {
		t.Fatalf("Users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(users))
	}
	u := users[0]
	if u.UserID != "u1" || u.Role != "teacher" || u.TotalSessions != 2 || u.TotalEvents != 3 {
		t.Errorf("Unexpected user summary: %+v", u)
	}
	if u.LastSession == nil || *u.LastSession != received.UnixMilli() {
		t.Errorf("Unexpected last session: %v", u.LastSession)
	}
}

func TestPageViews(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	older := received.Add(-2 * time.Hour).UnixMilli()
	newer := received.Add(-time.Hour).UnixMilli()
	if _, err := db.InsertBatch(ctx, batch("s1", "u1",
		pageExit("p1", "teacher", older, 45000, 3),
		pageExit("p2", "ceo", newer, 1500, 0),
		record("e1", models.KindClick, "/teacher"),
	)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	views, err := db.PageViews(ctx, received.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PageViews failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("Expected 2 page views, got %d", len(views))
	}
	if views[0].ID != "p2" || views[1].ID != "p1" {
		t.Errorf("Expected newest first, got %s, %s", views[0].ID, views[1].ID)
	}
	p1 := views[1]
	if p1.DashboardID != "teacher" || p1.TimeOnPage != 45 || p1.Clicks != 3 || p1.UserName != "Name u1" {
		t.Errorf("Unexpected page view: %+v", p1)
	}
	if !p1.Timestamp.Equal(time.UnixMilli(older)) {
		t.Errorf("Expected event timestamp, got %v", p1.Timestamp)
	}

	recent, err := db.PageViews(ctx, received.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("PageViews failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "p2" {
		t.Errorf("Expected only the newer view, got %+v", recent)
	}
}
