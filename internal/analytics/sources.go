package analytics

import (
	"fmt"
	"sort"

	"nerdvision/internal/datasource"
	"nerdvision/internal/pkg/referrers"
	"nerdvision/internal/pkg/sourcerules"
)

// SourceDimensions and SourceMetrics describe the source breakdown query
var (
	SourceDimensions = []string{
		datasource.DimSource,
		datasource.DimMedium,
		datasource.DimHasSocialReferral,
		datasource.DimSocialNetwork,
	}
	SourceMetrics = []string{
		datasource.MetricSessions,
		datasource.MetricGoalCompletions,
	}
)

// SourceStats are the session and goal counts of a source or category with
// their derived rates
type SourceStats struct {
	SessionsPrev              int64   `json:"sessions_prev"`
	SessionsCurr              int64   `json:"sessions_curr"`
	GoalCompletionsPrev       int64   `json:"goal_completions_prev"`
	GoalCompletionsCurr       int64   `json:"goal_completions_curr"`
	SessionsChangeRate        float64 `json:"sessions_change_rate"`
	GoalCompletionsChangeRate float64 `json:"goal_completions_change_rate"`
	GoalConversionRatePrev    float64 `json:"goal_conversion_rate_prev"`
	GoalConversionRateCurr    float64 `json:"goal_conversion_rate_curr"`
}

func (s *SourceStats) add(o SourceStats) {
	s.SessionsPrev += o.SessionsPrev
	s.SessionsCurr += o.SessionsCurr
	s.GoalCompletionsPrev += o.GoalCompletionsPrev
	s.GoalCompletionsCurr += o.GoalCompletionsCurr
}

// rates recomputes every derived rate from the raw counts
func (s *SourceStats) rates() {
	s.SessionsChangeRate = DeltaPct(float64(s.SessionsPrev), float64(s.SessionsCurr))
	s.GoalCompletionsChangeRate = DeltaPct(float64(s.GoalCompletionsPrev), float64(s.GoalCompletionsCurr))
	s.GoalConversionRatePrev = Ratio(float64(s.GoalCompletionsPrev), float64(s.SessionsPrev))
	s.GoalConversionRateCurr = Ratio(float64(s.GoalCompletionsCurr), float64(s.SessionsCurr))
}

// ClassifiedRow is one input source row with its category
type ClassifiedRow struct {
	Source            string               `json:"source"`
	Medium            string               `json:"medium"`
	HasSocialReferral string               `json:"has_social_referral"`
	SocialNetwork     string               `json:"social_network"`
	Category          sourcerules.Category `json:"category"`
	SourceStats
}

// SourceRow is a detail row: a single source, or a group of sources sharing a
// grouping value such as the social network
type SourceRow struct {
	Category sourcerules.Category `json:"category"`
	Source   string               `json:"source"`
	Medium   string               `json:"medium,omitempty"`
	Label    string               `json:"label"`
	SourceStats

	rank int
}

// CategoryRow aggregates every source of a category
type CategoryRow struct {
	Category sourcerules.Category `json:"category"`
	Sources  int                  `json:"sources"`
	SourceStats
}

// SourcesReport is the traffic source breakdown
type SourcesReport struct {
	Summary    []CategoryRow   `json:"summary"`
	Detail     []SourceRow     `json:"detail"`
	Classified []ClassifiedRow `json:"classified"`
}

// ClassifySources assigns every aligned source row to exactly one category and
// builds the detail and summary tables
func ClassifySources(cmp *Comparison, rules *sourcerules.Rules) (*SourcesReport, error) {
	keyIdx := make([]int, len(SourceDimensions))
	for i, d := range SourceDimensions {
		if keyIdx[i] = cmp.KeyIndex(d); keyIdx[i] < 0 {
			return nil, fmt.Errorf("source comparison needs key %s", d)
		}
	}
	sessions := cmp.MetricIndex(datasource.MetricSessions)
	goals := cmp.MetricIndex(datasource.MetricGoalCompletions)
	if sessions < 0 || goals < 0 {
		return nil, fmt.Errorf("source comparison needs %s and %s", datasource.MetricSessions, datasource.MetricGoalCompletions)
	}

	report := &SourcesReport{
		Summary:    []CategoryRow{},
		Detail:     []SourceRow{},
		Classified: make([]ClassifiedRow, 0, len(cmp.Rows)),
	}

	groups := make(map[string]int)
	for _, r := range cmp.Rows {
		attrs := sourcerules.Attributes{
			Source:            r.Key[keyIdx[0]],
			Medium:            r.Key[keyIdx[1]],
			HasSocialReferral: r.Key[keyIdx[2]],
			SocialNetwork:     r.Key[keyIdx[3]],
		}
		match := rules.Classify(attrs)

		stats := SourceStats{
			SessionsPrev:        r.Prev[sessions],
			SessionsCurr:        r.Curr[sessions],
			GoalCompletionsPrev: r.Prev[goals],
			GoalCompletionsCurr: r.Curr[goals],
		}
		stats.rates()

		report.Classified = append(report.Classified, ClassifiedRow{
			Source:            attrs.Source,
			Medium:            attrs.Medium,
			HasSocialReferral: attrs.HasSocialReferral,
			SocialNetwork:     attrs.SocialNetwork,
			Category:          match.Category,
			SourceStats:       stats,
		})

		if match.Group == "" {
			report.Detail = append(report.Detail, SourceRow{
				Category:    match.Category,
				Source:      attrs.Source,
				Medium:      attrs.Medium,
				Label:       referrers.FriendlyName(attrs.Source),
				SourceStats: stats,
				rank:        match.Rank,
			})
			continue
		}

		groupKey := string(match.Category) + "\x00" + match.Group
		if i, ok := groups[groupKey]; ok {
			report.Detail[i].add(stats)
			continue
		}
		groups[groupKey] = len(report.Detail)
		report.Detail = append(report.Detail, SourceRow{
			Category:    match.Category,
			Source:      match.Group,
			Label:       referrers.FriendlyName(match.Group),
			SourceStats: stats,
			rank:        match.Rank,
		})
	}

	for i := range report.Detail {
		report.Detail[i].rates()
	}
	sort.SliceStable(report.Detail, func(i, j int) bool {
		a, b := report.Detail[i], report.Detail[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		return a.SessionsCurr > b.SessionsCurr
	})

	report.Summary = summarize(report.Classified)
	return report, nil
}

func summarize(rows []ClassifiedRow) []CategoryRow {
	byCategory := make(map[sourcerules.Category]*CategoryRow)
	for _, r := range rows {
		c, ok := byCategory[r.Category]
		if !ok {
			c = &CategoryRow{Category: r.Category}
			byCategory[r.Category] = c
		}
		c.Sources++
		c.add(r.SourceStats)
	}

	summary := make([]CategoryRow, 0, len(byCategory))
	for _, category := range sourcerules.Categories {
		c, ok := byCategory[category]
		if !ok {
			continue
		}
		c.rates()
		summary = append(summary, *c)
	}
	sort.SliceStable(summary, func(i, j int) bool {
		return summary[i].SessionsCurr > summary[j].SessionsCurr
	})
	return summary
}
