// Package analytics folds page views into per-dashboard and per-user
// engagement figures and derives recommendations from them. Everything here
// is pure: no I/O, no clocks, no randomness outside Generate's seed.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/vincentbai/classtrace/internal/models"
)

// Normalization caps. The page-view cap differs between the dashboard and
// user scopes.
const (
	DashboardPageViewCap = 50
	UserPageViewCap      = 20
	TimeOnPageCap        = 300 // seconds
	ClickThroughCap      = 10  // clicks per view

	pageViewWeight     = 0.2
	timeOnPageWeight   = 0.5
	clickThroughWeight = 0.3

	recentViews   = 5
	topUsers      = 5
	recentOverall = 20
	topPerformers = 10
)

// DashboardAnalytics aggregates the views of one dashboard.
type DashboardAnalytics struct {
	DashboardID       string            `json:"dashboardId"`
	DashboardName     string            `json:"dashboardName"`
	PageViews         int               `json:"pageViews"`
	UniqueUsers       int               `json:"uniqueUsers"`
	AverageTimeOnPage float64           `json:"averageTimeOnPage"`
	TotalClicks       int               `json:"totalClicks"`
	ClickThroughRate  float64           `json:"clickThroughRate"`
	EngagementScore   float64           `json:"engagementScore"`
	RecentViews       []models.PageView `json:"recentViews"`
	TopUsers          []UserAnalytics   `json:"topUsers"`
}

// UserAnalytics aggregates the views of one user.
type UserAnalytics struct {
	UserID                  string            `json:"userId"`
	UserName                string            `json:"userName"`
	TotalPageViews          int               `json:"totalPageViews"`
	TotalTimeOnPage         float64           `json:"totalTimeOnPage"`
	AverageTimeOnPage       float64           `json:"averageTimeOnPage"`
	TotalClicks             int               `json:"totalClicks"`
	AverageClicksPerSession float64           `json:"averageClicksPerSession"`
	EngagementScore         float64           `json:"engagementScore"`
	DashboardsVisited       []string          `json:"dashboardsVisited"`
	MostVisitedDashboard    string            `json:"mostVisitedDashboard"`
	LastActivity            time.Time         `json:"lastActivity"`
	Sessions                []models.PageView `json:"sessions"`
}

// Result is the full aggregation.
type Result struct {
	TotalPageViews    int                  `json:"totalPageViews"`
	TotalUniqueUsers  int                  `json:"totalUniqueUsers"`
	AverageEngagement float64              `json:"averageEngagement"`
	Dashboards        []DashboardAnalytics `json:"dashboards"`
	Users             []UserAnalytics      `json:"users"`
	TopPerformers     []UserAnalytics      `json:"topPerformers"`
	RecentActivity    []models.PageView    `json:"recentActivity"`
	Recommendations   []Recommendation     `json:"aiRecommendations"`
}

// EngagementScore weighs page views (20%), average time on page (50%) and
// click-through rate (30%), each normalized against its cap. The result is in
// [0,100] for any input; negative inputs count as zero.
func EngagementScore(pageViews, avgTimeOnPage, clickThroughRate, pageViewCap float64) float64 {
	return 100 * (pageViewWeight*normalize(pageViews, pageViewCap) +
		timeOnPageWeight*normalize(avgTimeOnPage, TimeOnPageCap) +
		clickThroughWeight*normalize(clickThroughRate, ClickThroughCap))
}

func normalize(v, limit float64) float64 {
	if limit <= 0 || math.IsNaN(v) || v <= 0 {
		return 0
	}
	return math.Min(v/limit, 1)
}

// Compute aggregates views. The input is not modified.
func Compute(views []models.PageView) Result {
	sorted := newestFirst(views)
	users := Users(sorted)
	dashboards := dashboardsFrom(sorted, users)

	res := Result{
		TotalPageViews:  len(sorted),
		Dashboards:      dashboards,
		Users:           users,
		TopPerformers:   head(users, topPerformers),
		RecentActivity:  head(sorted, recentOverall),
		Recommendations: Recommend(dashboards),
	}
	res.TotalUniqueUsers = len(users)
	if len(dashboards) > 0 {
		var sum float64
		for _, d := range dashboards {
			sum += d.EngagementScore
		}
		res.AverageEngagement = sum / float64(len(dashboards))
	}
	return res
}

// Dashboards groups views by dashboard, highest engagement first.
func Dashboards(views []models.PageView) []DashboardAnalytics {
	sorted := newestFirst(views)
	return dashboardsFrom(sorted, Users(sorted))
}

func dashboardsFrom(sorted []models.PageView, users []UserAnalytics) []DashboardAnalytics {
	groups, order := groupBy(sorted, func(v models.PageView) string { return v.DashboardID })

	out := make([]DashboardAnalytics, 0, len(order))
	for _, id := range order {
		vs := groups[id]
		d := DashboardAnalytics{
			DashboardID:   id,
			DashboardName: vs[0].DashboardName,
			PageViews:     len(vs),
			RecentViews:   head(vs, recentViews),
		}
		seen := make(map[string]struct{})
		var total float64
		for _, v := range vs {
			seen[v.UserID] = struct{}{}
			total += v.TimeOnPage
			d.TotalClicks += v.Clicks
		}
		d.UniqueUsers = len(seen)
		d.AverageTimeOnPage = total / float64(len(vs))
		d.ClickThroughRate = float64(d.TotalClicks) / float64(len(vs))
		d.EngagementScore = EngagementScore(float64(d.PageViews), d.AverageTimeOnPage, d.ClickThroughRate, DashboardPageViewCap)

		d.TopUsers = []UserAnalytics{}
		for _, u := range users {
			if _, ok := seen[u.UserID]; ok {
				d.TopUsers = append(d.TopUsers, u)
				if len(d.TopUsers) == topUsers {
					break
				}
			}
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EngagementScore > out[j].EngagementScore })
	return out
}

// Users groups views by user, highest engagement first.
func Users(views []models.PageView) []UserAnalytics {
	sorted := newestFirst(views)
	groups, order := groupBy(sorted, func(v models.PageView) string { return v.UserID })

	out := make([]UserAnalytics, 0, len(order))
	for _, id := range order {
		vs := groups[id]
		u := UserAnalytics{
			UserID:         id,
			UserName:       vs[0].UserName,
			TotalPageViews: len(vs),
			LastActivity:   vs[0].Timestamp,
			Sessions:       vs,
		}
		counts := make(map[string]int)
		for _, v := range vs {
			u.TotalTimeOnPage += v.TimeOnPage
			u.TotalClicks += v.Clicks
			if counts[v.DashboardName] == 0 {
				u.DashboardsVisited = append(u.DashboardsVisited, v.DashboardName)
			}
			counts[v.DashboardName]++
		}
		for _, name := range u.DashboardsVisited {
			if counts[name] > counts[u.MostVisitedDashboard] {
				u.MostVisitedDashboard = name
			}
		}
		u.AverageTimeOnPage = u.TotalTimeOnPage / float64(len(vs))
		u.AverageClicksPerSession = float64(u.TotalClicks) / float64(len(vs))
		u.EngagementScore = EngagementScore(float64(u.TotalPageViews), u.AverageTimeOnPage, u.AverageClicksPerSession, UserPageViewCap)
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EngagementScore > out[j].EngagementScore })
	return out
}

func newestFirst(views []models.PageView) []models.PageView {
	out := append([]models.PageView(nil), views...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// groupBy keeps the input order inside each group and returns keys in order
// of first appearance.
func groupBy(views []models.PageView, key func(models.PageView) string) (map[string][]models.PageView, []string) {
	groups := make(map[string][]models.PageView)
	var order []string
	for _, v := range views {
		k := key(v)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], v)
	}
	return groups, order
}

func head[T any](s []T, n int) []T {
	if len(s) < n {
		n = len(s)
	}
	return append([]T{}, s[:n]...)
}
