package tracker

// Pattern labels.
const (
	ScrollDeep     = "Deep Scroller"
	ScrollModerate = "Moderate Scroller"
	ScrollLight    = "Light Scroller"

	ClickHigh     = "High Activity"
	ClickModerate = "Moderate Activity"
	ClickLow      = "Low Activity"

	FormSubmitter = "Form Submitter"
	FormExplorer  = "Form Explorer"
	FormNone      = "No Form Interaction"

	MediaConsumer = "Media Consumer"
	ImageViewer   = "Image Viewer"
	MediaNone     = "No Media Interaction"
)

// ScrollPattern describes scrolling behavior. Frequency is per second of
// tracked time.
type ScrollPattern struct {
	TotalScrolls    int     `json:"totalScrolls"`
	MaxDepth        int     `json:"maxDepth"`
	AvgScrollDepth  float64 `json:"avgScrollDepth"`
	ScrollFrequency float64 `json:"scrollFrequency"`
	Pattern         string  `json:"scrollPattern"`
}

// ClickPattern describes clicking behavior.
type ClickPattern struct {
	TotalClicks         int            `json:"totalClicks"`
	ClickFrequency      float64        `json:"clickFrequency"`
	ElementTypes        map[string]int `json:"elementTypes"`
	MostClickedElements map[string]int `json:"mostClickedElements"`
	DashboardItemClicks map[string]int `json:"dashboardItemClicks"`
	ButtonActions       map[string]int `json:"buttonActions"`
	Pattern             string         `json:"clickPattern"`
}

// FormPattern describes form engagement. Engagement is submissions per
// focus as a percentage.
type FormPattern struct {
	TotalFormInteractions int     `json:"totalFormInteractions"`
	FocusEvents           int     `json:"focusEvents"`
	Submissions           int     `json:"submissions"`
	Inputs                int     `json:"inputs"`
	Engagement            float64 `json:"formEngagement"`
	Pattern               string  `json:"formPattern"`
}

// MediaPattern describes media and image consumption.
type MediaPattern struct {
	VideoInteractions int    `json:"videoInteractions"`
	AudioInteractions int    `json:"audioInteractions"`
	ImageInteractions int    `json:"imageInteractions"`
	Total             int    `json:"totalMediaInteractions"`
	Pattern           string `json:"mediaPattern"`
}

// BehaviorPatterns groups the per-channel analyses. Nil members mean no
// activity on that channel.
type BehaviorPatterns struct {
	Scroll *ScrollPattern `json:"scrollBehavior"`
	Clicks *ClickPattern  `json:"clickPatterns"`
	Forms  *FormPattern   `json:"formEngagement"`
	Media  MediaPattern   `json:"mediaConsumption"`
}

// BehaviorPatterns analyzes the current log.
func (t *Tracker) BehaviorPatterns() BehaviorPatterns {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.patternsLocked()
}

func (t *Tracker) patternsLocked() BehaviorPatterns {
	seconds := float64(t.session.TotalTime) / 1000
	perSecond := func(n int) float64 {
		if seconds <= 0 {
			return 0
		}
		return float64(n) / seconds
	}

	var p BehaviorPatterns

	if n := len(t.scroll.Samples); n > 0 {
		sum := 0
		for _, s := range t.scroll.Samples {
			sum += s.Percentage
		}
		p.Scroll = &ScrollPattern{
			TotalScrolls:    n,
			MaxDepth:        t.scroll.MaxDepth,
			AvgScrollDepth:  float64(sum) / float64(n),
			ScrollFrequency: perSecond(n),
			Pattern:         scrollPattern(t.scroll.MaxDepth),
		}
	}

	clicks := &ClickPattern{
		ElementTypes:        map[string]int{},
		MostClickedElements: map[string]int{},
		DashboardItemClicks: map[string]int{},
		ButtonActions:       map[string]int{},
	}
	form := &FormPattern{}
	for _, a := range t.actions {
		switch {
		case a.Kind == KindClick:
			clicks.TotalClicks++
			clicks.ElementTypes[tagOf(a)]++
			clicks.MostClickedElements[a.HeatmapKey()]++
			if item := a.PayloadString("dashboardItem"); item != "" {
				clicks.DashboardItemClicks[item]++
			}
			if btn := a.PayloadString("buttonAction"); btn != "" {
				clicks.ButtonActions[btn]++
			}
		case a.Kind.IsForm():
			form.TotalFormInteractions++
			switch a.Kind {
			case KindFormFocus:
				form.FocusEvents++
			case KindFormSubmit:
				form.Submissions++
			case KindFormInput:
				form.Inputs++
			}
		case a.Kind.IsMedia():
			switch tagOf(a) {
			case "video":
				p.Media.VideoInteractions++
			case "audio":
				p.Media.AudioInteractions++
			}
		case a.Kind.IsImage():
			p.Media.ImageInteractions++
		}
	}

	if clicks.TotalClicks > 0 {
		clicks.ClickFrequency = perSecond(clicks.TotalClicks)
		clicks.Pattern = clickPattern(clicks.ClickFrequency)
		p.Clicks = clicks
	}
	if form.TotalFormInteractions > 0 {
		if form.FocusEvents > 0 {
			form.Engagement = float64(form.Submissions) / float64(form.FocusEvents) * 100
		}
		form.Pattern = formPattern(form.Submissions, form.FocusEvents)
		p.Forms = form
	}
	p.Media.Total = p.Media.VideoInteractions + p.Media.AudioInteractions + p.Media.ImageInteractions
	p.Media.Pattern = mediaPattern(p.Media)
	return p
}

func scrollPattern(maxDepth int) string {
	switch {
	case maxDepth > 80:
		return ScrollDeep
	case maxDepth > 40:
		return ScrollModerate
	}
	return ScrollLight
}

func clickPattern(perSecond float64) string {
	switch {
	case perSecond > 2:
		return ClickHigh
	case perSecond > 1:
		return ClickModerate
	}
	return ClickLow
}

func formPattern(submissions, focus int) string {
	switch {
	case submissions > 0:
		return FormSubmitter
	case focus > 0:
		return FormExplorer
	}
	return FormNone
}

func mediaPattern(m MediaPattern) string {
	switch {
	case m.VideoInteractions > 0 || m.AudioInteractions > 0:
		return MediaConsumer
	case m.ImageInteractions > 0:
		return ImageViewer
	}
	return MediaNone
}
