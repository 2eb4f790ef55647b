package analytics

import (
	"fmt"
	"math"
	"sort"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Recommendation is the rule-table output for one dashboard. Confidence is
// in [0,100].
type Recommendation struct {
	ID               string   `json:"id"`
	DashboardID      string   `json:"dashboardId"`
	DashboardName    string   `json:"dashboardName"`
	Priority         Priority `json:"priority"`
	Recommendation   string   `json:"recommendation"`
	Reasoning        string   `json:"reasoning"`
	KPIImpact        string   `json:"kpiImpact"`
	SuggestedActions []string `json:"suggestedActions"`
	Confidence       int      `json:"confidence"`
}

// Rule thresholds.
const (
	LowEngagement  = 40
	HighEngagement = 70
	ShortVisit     = 120 // seconds
)

type rule struct {
	match      func(d DashboardAnalytics) bool
	priority   Priority
	text       string
	reasoning  func(d DashboardAnalytics) string
	impact     string
	actions    []string
	confidence int
}

// rules are evaluated in order; the last one always matches.
var rules = []rule{
	{
		match:    func(d DashboardAnalytics) bool { return d.EngagementScore < LowEngagement },
		priority: PriorityHigh,
		text:     "Critical: Redesign dashboard content and improve user experience",
		reasoning: func(d DashboardAnalytics) string {
			return fmt.Sprintf("Low engagement score (%.1f%%) indicates users are not finding value. Average time on page is %ds which is below optimal.",
				d.EngagementScore, seconds(d.AverageTimeOnPage))
		},
		impact: "High impact on user retention and platform adoption",
		actions: []string{
			"Conduct user interviews to identify pain points",
			"Redesign dashboard layout for better usability",
			"Add interactive tutorials or onboarding",
			"Implement gamification elements",
		},
		confidence: 85,
	},
	{
		match:    func(d DashboardAnalytics) bool { return d.EngagementScore > HighEngagement },
		priority: PriorityLow,
		text:     "Optimize: Leverage high performance to boost other dashboards",
		reasoning: func(d DashboardAnalytics) string {
			return fmt.Sprintf("Excellent engagement score (%.1f%%) with %d page views. Users spend an average of %ds engaged.",
				d.EngagementScore, d.PageViews, seconds(d.AverageTimeOnPage))
		},
		impact: "Use as template for improving underperforming dashboards",
		actions: []string{
			"Document successful design patterns",
			"A/B test features with other dashboards",
			"Create user success stories",
			"Expand similar functionality",
		},
		confidence: 90,
	},
	{
		match:    func(d DashboardAnalytics) bool { return d.AverageTimeOnPage < ShortVisit },
		priority: PriorityMedium,
		text:     "Improve: Increase content engagement and time on page",
		reasoning: func(d DashboardAnalytics) string {
			return fmt.Sprintf("Moderate engagement (%.1f%%) but low time on page (%ds). Users visit but don't stay long.",
				d.EngagementScore, seconds(d.AverageTimeOnPage))
		},
		impact: "Medium impact on user satisfaction and feature adoption",
		actions: []string{
			"Add more interactive content",
			"Implement progress tracking",
			"Create guided workflows",
			"Add contextual help and tips",
		},
		confidence: 80,
	},
	{
		match:    func(DashboardAnalytics) bool { return true },
		priority: PriorityMedium,
		text:     "Monitor: Maintain current performance levels",
		reasoning: func(d DashboardAnalytics) string {
			return fmt.Sprintf("Balanced performance with %.1f%% engagement. %d unique users are actively using this dashboard.",
				d.EngagementScore, d.UniqueUsers)
		},
		impact: "Stable performance contributing to overall platform health",
		actions: []string{
			"Continue monitoring key metrics",
			"Gather user feedback regularly",
			"Make incremental improvements",
			"Test new features carefully",
		},
		confidence: 75,
	},
}

func seconds(v float64) int { return int(math.Round(v)) }

// RecommendFor applies the rule table to one dashboard.
func RecommendFor(d DashboardAnalytics) Recommendation {
	for _, r := range rules {
		if !r.match(d) {
			continue
		}
		return Recommendation{
			ID:               "rec_" + d.DashboardID,
			DashboardID:      d.DashboardID,
			DashboardName:    d.DashboardName,
			Priority:         r.priority,
			Recommendation:   r.text,
			Reasoning:        r.reasoning(d),
			KPIImpact:        r.impact,
			SuggestedActions: append([]string(nil), r.actions...),
			Confidence:       r.confidence,
		}
	}
	panic("analytics: no recommendation rule matched")
}

// Recommend returns one recommendation per dashboard, high priority first,
// then by confidence, then by dashboard id.
func Recommend(dashboards []DashboardAnalytics) []Recommendation {
	out := make([]Recommendation, 0, len(dashboards))
	for _, d := range dashboards {
		out = append(out, RecommendFor(d))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority.rank() != b.Priority.rank() {
			return a.Priority.rank() > b.Priority.rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.DashboardID < b.DashboardID
	})
	return out
}
