package flow

import (
	"math"
	"time"

	"github.com/vincentbai/classtrace/internal/clock"
	"github.com/vincentbai/classtrace/internal/tracker"
)

// Behavior patterns, checked in this order.
const (
	PatternDeepExplorer    = "Deep Explorer - Spends significant time exploring features"
	PatternActiveUser      = "Active User - High interaction with interface elements"
	PatternContentConsumer = "Content Consumer - Reads through most of the content"
	PatternQuickVisitor    = "Quick Visitor - Brief interaction, likely task-focused"
	PatternBalancedUser    = "Balanced User - Moderate engagement across features"
)

const (
	longSession   = 5 * time.Minute
	shortSession  = time.Minute
	manyClicks    = 20
	fewClicks     = 5
	deepScroll    = 80
	shallowScroll = 30
	manyPages     = 3
	manyItems     = 3
)

// Summary is the session-level projection.
type Summary struct {
	SessionID          string             `json:"sessionId"`
	UserID             string             `json:"userId,omitempty"`
	UserName           string             `json:"userName,omitempty"`
	UserRole           string             `json:"userRole,omitempty"`
	SessionStartTime   int64              `json:"sessionStartTime"`
	SessionDuration    int64              `json:"sessionDuration"`
	TotalClicks        int                `json:"totalClicks"`
	MaxScrollDepth     int                `json:"maxScrollDepth"`
	PagesVisited       int                `json:"pagesVisited"`
	PageViews          []PageView         `json:"pageViews"`
	NavigationHistory  []NavigationRecord `json:"navigationHistory"`
	ClickEvents        int                `json:"clickEvents"`
	ScrollEvents       int                `json:"scrollEvents"`
	AverageTimePerPage float64            `json:"averageTimePerPage"`
	MostVisitedPage    string             `json:"mostVisitedPage"`
	ClickHeatmap       map[string]int     `json:"clickHeatmap"`
	BehaviorPattern    string             `json:"userBehaviorPattern"`
	EngagementScore    int                `json:"engagementScore"`
	UserNeeds          []string           `json:"userNeeds"`
	Needs              []Need             `json:"identifiedNeeds"`
}

// Need is an inferred user need with a confidence in [0,1].
type Need struct {
	Need           string  `json:"need"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
	Recommendation string  `json:"recommendation"`
}

// Summary computes the session summary without ending the session.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summaryLocked()
}

func (a *Aggregator) summaryLocked() Summary {
	now := a.clk.Now()
	duration := now.Sub(a.start)
	clicks := a.log.ActionsSince(a.start, tracker.KindClick)
	scrolls := a.log.ActionsSince(a.start, tracker.KindScroll)
	depth := a.log.MaxScrollDepth()

	s := Summary{
		SessionID:         a.sessionID,
		UserID:            a.userID,
		UserName:          a.userName,
		UserRole:          a.userRole,
		SessionStartTime:  clock.Millis(a.start),
		SessionDuration:   duration.Milliseconds(),
		TotalClicks:       len(clicks),
		MaxScrollDepth:    depth,
		PagesVisited:      distinctPages(a.pageViews),
		PageViews:         append([]PageView{}, a.pageViews...),
		NavigationHistory: append([]NavigationRecord{}, a.nav...),
		ClickEvents:       len(clicks),
		ScrollEvents:      len(scrolls),
		MostVisitedPage:   mostVisited(a.pageViews),
		ClickHeatmap:      make(map[string]int),
	}
	if len(a.pageViews) > 0 {
		var total int64
		for _, pv := range a.pageViews {
			if pv.TimeSpent != nil {
				total += *pv.TimeSpent
			}
		}
		s.AverageTimePerPage = float64(total) / float64(len(a.pageViews))
	}
	items := make(map[string]struct{})
	for _, c := range clicks {
		s.ClickHeatmap[c.HeatmapKey()]++
		if item := c.PayloadString("dashboardItem"); item != "" {
			items[item] = struct{}{}
		}
	}

	s.BehaviorPattern = Classify(duration, s.TotalClicks, depth)
	s.EngagementScore = EngagementScore(duration, s.TotalClicks, depth)
	s.UserNeeds = flowNeeds(duration, s.TotalClicks, depth, len(a.pageViews))
	s.Needs = scoredNeeds(duration, s.TotalClicks, averageDepth(scrolls), len(items))
	return s
}

// Classify labels a session. The first matching rule wins: long sessions,
// then heavy clicking, then deep scrolling, then short sessions.
func Classify(duration time.Duration, clicks, maxScrollDepth int) string {
	switch {
	case duration > longSession:
		return PatternDeepExplorer
	case clicks > manyClicks:
		return PatternActiveUser
	case maxScrollDepth > deepScroll:
		return PatternContentConsumer
	case duration < shortSession:
		return PatternQuickVisitor
	}
	return PatternBalancedUser
}

// EngagementScore blends time (40%, saturating at five minutes), clicks (30%,
// saturating at 50) and scroll depth (30%) into [0,100].
func EngagementScore(duration time.Duration, clicks, maxScrollDepth int) int {
	timeScore := math.Min(duration.Seconds()/longSession.Seconds(), 1)
	clickScore := math.Min(float64(clicks)/50, 1)
	depthScore := math.Max(0, math.Min(float64(maxScrollDepth), 100)) / 100
	if timeScore < 0 {
		timeScore = 0
	}
	return int(math.Round((timeScore*0.4 + clickScore*0.3 + depthScore*0.3) * 100))
}

func flowNeeds(duration time.Duration, clicks, depth, pageViews int) []string {
	needs := []string{}
	if duration > longSession {
		needs = append(needs, "comprehensive_exploration")
	}
	if clicks > manyClicks {
		needs = append(needs, "interactive_features")
	}
	if depth > deepScroll {
		needs = append(needs, "detailed_content")
	}
	if pageViews > manyPages {
		needs = append(needs, "multi_page_workflow")
	}
	return needs
}

func scoredNeeds(duration time.Duration, clicks int, avgDepth float64, dashboardItems int) []Need {
	needs := []Need{}
	if duration > longSession {
		needs = append(needs, Need{
			Need:           "high_engagement",
			Confidence:     0.8,
			Reasoning:      "User spent significant time on platform, indicating high interest",
			Recommendation: "Provide advanced features and detailed content",
		})
	}
	if duration < shortSession {
		needs = append(needs, Need{
			Need:           "quick_access",
			Confidence:     0.7,
			Reasoning:      "Short session suggests need for quick, easily accessible information",
			Recommendation: "Prioritize key information and streamline navigation",
		})
	}
	if avgDepth < shallowScroll {
		needs = append(needs, Need{
			Need:           "content_optimization",
			Confidence:     0.6,
			Reasoning:      "Low scroll depth suggests content above fold needs improvement",
			Recommendation: "Move important content higher up and improve initial engagement",
		})
	}
	if clicks > manyClicks {
		needs = append(needs, Need{
			Need:           "exploration_oriented",
			Confidence:     0.7,
			Reasoning:      "High click count indicates user is exploring multiple features",
			Recommendation: "Provide guided tours and feature discovery tools",
		})
	} else if clicks < fewClicks {
		needs = append(needs, Need{
			Need:           "focused_task",
			Confidence:     0.6,
			Reasoning:      "Low click count suggests user has specific task in mind",
			Recommendation: "Streamline workflows and reduce navigation complexity",
		})
	}
	if dashboardItems > manyItems {
		needs = append(needs, Need{
			Need:           "comprehensive_user",
			Confidence:     0.8,
			Reasoning:      "User interacted with multiple dashboard items",
			Recommendation: "Provide comprehensive dashboard with all features visible",
		})
	}
	return needs
}

func averageDepth(scrolls []tracker.Action) float64 {
	if len(scrolls) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scrolls {
		v, _ := s.PayloadFloat("scrollPercentage")
		sum += v
	}
	return sum / float64(len(scrolls))
}

func distinctPages(views []PageView) int {
	seen := make(map[string]struct{}, len(views))
	for _, pv := range views {
		seen[pv.Page] = struct{}{}
	}
	return len(seen)
}

// mostVisited returns the page with the most views. Ties go to the page
// visited first.
func mostVisited(views []PageView) string {
	if len(views) == 0 {
		return "None"
	}
	counts := make(map[string]int)
	var order []string
	for _, pv := range views {
		if counts[pv.Page] == 0 {
			order = append(order, pv.Page)
		}
		counts[pv.Page]++
	}
	best := order[0]
	for _, p := range order[1:] {
		if counts[p] > counts[best] {
			best = p
		}
	}
	return best
}
