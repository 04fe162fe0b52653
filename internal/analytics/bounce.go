package analytics

import (
	"fmt"
	"sort"

	"nerdvision/internal/datasource"
	"nerdvision/internal/table"
)

// BounceMetrics are the counts every bounce table carries
var BounceMetrics = []string{
	datasource.MetricBounces,
	datasource.MetricSessions,
	datasource.MetricGoalCompletions,
}

// BounceRow is the bounce summary of a page, or of a page and source pair
type BounceRow struct {
	Path               string  `json:"path"`
	Source             string  `json:"source,omitempty"`
	Bounces            int64   `json:"bounces"`
	Sessions           int64   `json:"sessions"`
	GoalCompletions    int64   `json:"goal_completions"`
	BounceRate         float64 `json:"bounce_rate"`
	GoalConversionRate float64 `json:"goal_conversion_rate"`
	FromAverage        float64 `json:"from_average"`
}

func newBounceRow(path, source string, values []int64, siteMean float64) BounceRow {
	row := BounceRow{
		Path:            path,
		Source:          source,
		Bounces:         values[0],
		Sessions:        values[1],
		GoalCompletions: values[2],
	}
	row.BounceRate = Ratio(float64(row.Bounces), float64(row.Sessions))
	row.GoalConversionRate = Ratio(float64(row.GoalCompletions), float64(row.Sessions))
	row.FromAverage = DeltaPct(siteMean, row.BounceRate)
	return row
}

// BounceInput holds the current period tables the analyzer works on
type BounceInput struct {
	// Pageviews has page, host and pageviews columns
	Pageviews *table.Table
	// Pages has page, host and BounceMetrics columns
	Pages *table.Table
	// PageSources adds the source dimension to Pages
	PageSources *table.Table
}

// BounceOptions are the bucket thresholds, in percent, and the bucket size
type BounceOptions struct {
	High    float64
	Low     float64
	TopN    int
	Cleaner PathCleaner
}

// BounceReport lists the pages bouncing far above and below the site mean
type BounceReport struct {
	SiteMean         float64     `json:"site_mean"`
	MeanPageviews    float64     `json:"mean_pageviews"`
	SignificantPages int         `json:"significant_pages"`
	Highest          []BounceRow `json:"highest"`
	Lowest           []BounceRow `json:"lowest"`
	HighestDetail    []BounceRow `json:"highest_detail"`
	LowestDetail     []BounceRow `json:"lowest_detail"`
}

// AnalyzeBounce selects the highest and lowest bouncing pages among those
// receiving at least the mean number of page views
func AnalyzeBounce(in BounceInput, opts BounceOptions) (*BounceReport, error) {
	if opts.Low > opts.High {
		return nil, fmt.Errorf("low bounce threshold %.2f is above high threshold %.2f", opts.Low, opts.High)
	}

	pageviews, err := Aggregate(in.Pageviews, AlignSpec{
		Keys:       []string{datasource.DimPagePath},
		HostColumn: datasource.DimHostname,
		Metrics:    []string{datasource.MetricPageviews},
		Cleaner:    opts.Cleaner,
	})
	if err != nil {
		return nil, fmt.Errorf("page views: %w", err)
	}

	report := &BounceReport{
		Highest:       []BounceRow{},
		Lowest:        []BounceRow{},
		HighestDetail: []BounceRow{},
		LowestDetail:  []BounceRow{},
	}

	significant := make(map[string]bool)
	if len(pageviews) > 0 {
		var total int64
		for _, r := range pageviews {
			total += r.Values[0]
		}
		report.MeanPageviews = float64(total) / float64(len(pageviews))
		for _, r := range pageviews {
			if float64(r.Values[0]) >= report.MeanPageviews {
				significant[r.Key[0]] = true
			}
		}
	}
	report.MeanPageviews = round2(report.MeanPageviews)
	report.SignificantPages = len(significant)

	pages, err := Aggregate(in.Pages, AlignSpec{
		Keys:       []string{datasource.DimPagePath},
		HostColumn: datasource.DimHostname,
		Metrics:    BounceMetrics,
		Cleaner:    opts.Cleaner,
	})
	if err != nil {
		return nil, fmt.Errorf("page bounces: %w", err)
	}

	var candidates []AggregateRow
	var rateSum float64
	for _, r := range pages {
		if !significant[r.Key[0]] || r.Values[1] <= 0 {
			continue
		}
		candidates = append(candidates, r)
		rateSum += Ratio(float64(r.Values[0]), float64(r.Values[1]))
	}
	if len(candidates) > 0 {
		report.SiteMean = round2(rateSum / float64(len(candidates)))
	}

	for _, r := range candidates {
		row := newBounceRow(r.Key[0], "", r.Values, report.SiteMean)
		if row.BounceRate >= opts.High {
			report.Highest = append(report.Highest, row)
		}
		if row.BounceRate <= opts.Low {
			report.Lowest = append(report.Lowest, row)
		}
	}

	sort.SliceStable(report.Highest, func(i, j int) bool { return report.Highest[i].Bounces > report.Highest[j].Bounces })
	sort.SliceStable(report.Lowest, func(i, j int) bool { return report.Lowest[i].Sessions > report.Lowest[j].Sessions })
	report.Highest = topBounce(report.Highest, opts.TopN)
	report.Lowest = topBounce(report.Lowest, opts.TopN)
	byRate(report.Highest)
	byRate(report.Lowest)

	sources, err := Aggregate(in.PageSources, AlignSpec{
		Keys:       []string{datasource.DimPagePath, datasource.DimSource},
		HostColumn: datasource.DimHostname,
		Metrics:    BounceMetrics,
		Cleaner:    opts.Cleaner,
	})
	if err != nil {
		return nil, fmt.Errorf("page bounces by source: %w", err)
	}
	report.HighestDetail = bounceDetail(sources, report.Highest, report.SiteMean)
	report.LowestDetail = bounceDetail(sources, report.Lowest, report.SiteMean)

	return report, nil
}

func topBounce(rows []BounceRow, n int) []BounceRow {
	if n < 0 {
		n = 0
	}
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

func byRate(rows []BounceRow) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].BounceRate > rows[j].BounceRate })
}

// bounceDetail keeps the (page, source) rows of the selected pages, in the
// order of the selection
func bounceDetail(rows []AggregateRow, selected []BounceRow, siteMean float64) []BounceRow {
	position := make(map[string]int, len(selected))
	for i, s := range selected {
		position[s.Path] = i
	}

	detail := []BounceRow{}
	for _, r := range rows {
		if _, ok := position[r.Key[0]]; !ok {
			continue
		}
		detail = append(detail, newBounceRow(r.Key[0], r.Key[1], r.Values, siteMean))
	}
	sort.SliceStable(detail, func(i, j int) bool {
		return position[detail[i].Path] < position[detail[j].Path]
	})
	return detail
}
