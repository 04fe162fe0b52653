package analytics

import (
	"fmt"

	"nerdvision/internal/datasource"
)

// OverviewMetrics are the site wide metrics of the executive overview, in
// report order
var OverviewMetrics = []string{
	datasource.MetricUsers,
	datasource.MetricSessions,
	datasource.MetricPageviews,
	datasource.MetricGoalCompletions,
	datasource.MetricTotalEvents,
}

// MetricChange is one overview figure for both periods
type MetricChange struct {
	Previous int64   `json:"previous"`
	Current  int64   `json:"current"`
	Change   float64 `json:"change"`
}

func newMetricChange(prev, curr int64) MetricChange {
	return MetricChange{
		Previous: prev,
		Current:  curr,
		Change:   DeltaPct(float64(prev), float64(curr)),
	}
}

// Overview summarizes the whole site for the two periods
type Overview struct {
	Visitors        MetricChange `json:"visitors"`
	Visits          MetricChange `json:"visits"`
	Pageviews       MetricChange `json:"pageviews"`
	GoalCompletions MetricChange `json:"goal_completions"`
	Events          MetricChange `json:"events"`
}

// Figures returns the overview as labelled rows in report order
func (o *Overview) Figures() []NamedChange {
	return []NamedChange{
		{Name: "Visitors", MetricChange: o.Visitors},
		{Name: "Visits", MetricChange: o.Visits},
		{Name: "Pageviews", MetricChange: o.Pageviews},
		{Name: "Goal Completions", MetricChange: o.GoalCompletions},
		{Name: "Events", MetricChange: o.Events},
	}
}

// NamedChange is an overview figure with its display name
type NamedChange struct {
	Name string `json:"name"`
	MetricChange
}

// BuildOverview sums an aligned page level comparison into site totals
func BuildOverview(cmp *Comparison) (*Overview, error) {
	prev, curr := cmp.Totals()

	pick := func(metric string) (MetricChange, error) {
		i := cmp.MetricIndex(metric)
		if i < 0 {
			return MetricChange{}, fmt.Errorf("overview needs metric %s", metric)
		}
		return newMetricChange(prev[i], curr[i]), nil
	}

	var (
		o   Overview
		err error
	)
	targets := []*MetricChange{&o.Visitors, &o.Visits, &o.Pageviews, &o.GoalCompletions, &o.Events}
	for i, metric := range OverviewMetrics {
		if *targets[i], err = pick(metric); err != nil {
			return nil, err
		}
	}
	return &o, nil
}
