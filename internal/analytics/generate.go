package analytics

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/vincentbai/classtrace/internal/models"
)

type named struct{ id, name string }

var (
	demoDashboards = []named{
		{"teacher", "Teacher Dashboard"},
		{"ceo", "CEO Dashboard"},
		{"itSpecialist", "IT Specialist Dashboard"},
		{"teamLeader", "Team Leader Dashboard"},
	}
	demoUsers = []named{
		{"user1", "Sarah Mitchell"},
		{"user2", "David Chen"},
		{"user3", "Emma Rodriguez"},
		{"user4", "Michael Johnson"},
		{"user5", "Lisa Thompson"},
		{"user6", "James Wilson"},
		{"user7", "Maria Garcia"},
		{"user8", "Robert Davis"},
	}
)

// Generate returns n demo page views spread over the 30 days before now,
// newest first. The same seed always yields the same views.
func Generate(seed int64, n int, now time.Time) []models.PageView {
	rng := rand.New(rand.NewSource(seed))
	views := make([]models.PageView, 0, n)
	for i := 0; i < n; i++ {
		d := demoDashboards[rng.Intn(len(demoDashboards))]
		u := demoUsers[rng.Intn(len(demoUsers))]
		daysAgo := rng.Intn(30)
		ts := time.Date(now.Year(), now.Month(), now.Day()-daysAgo,
			rng.Intn(24), rng.Intn(60), now.Second(), 0, now.Location())

		views = append(views, models.PageView{
			ID:            fmt.Sprintf("view_%d", i),
			UserID:        u.id,
			UserName:      u.name,
			DashboardID:   d.id,
			DashboardName: d.name,
			Timestamp:     ts,
			TimeOnPage:    float64(rng.Intn(600) + 30),
			Clicks:        rng.Intn(15),
		})
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].Timestamp.After(views[j].Timestamp) })
	return views
}

// DashboardName returns the display name of a known dashboard id, or the id
// itself.
func DashboardName(id string) string {
	for _, d := range demoDashboards {
		if d.id == id {
			return d.name
		}
	}
	return id
}
