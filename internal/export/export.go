// Package export writes analysis reports as CSV files, an XLSX workbook and a
// printable PDF summary.
package export

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nerdvision/internal/analytics"
)

// Table names, also used as CSV file names and workbook sheet names
const (
	ExecOverview      = "exec_overview"
	SpikesSummary     = "tts_summary"
	DropsSummary      = "ttd_summary"
	SpikesDetailed    = "tts_detailed"
	DropsDetailed     = "ttd_detailed"
	HighBounceSummary = "highest_br_summary"
	LowBounceSummary  = "lowest_br_summary"
	HighBounceDetail  = "highest_br_detailed"
	LowBounceDetail   = "lowest_br_detailed"
	SourcesSummary    = "srcs_summary"
	SourcesDetail     = "srcs_detail"
)

// Sheet is one flat table of a report
type Sheet struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Headers returns the display headers of the columns
func (s Sheet) Headers() []string {
	title := cases.Title(language.English)
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = title.String(strings.ReplaceAll(c, "_", " "))
	}
	return out
}

var (
	deltaColumns        = []string{"page", "pageviews_prev", "pageviews_curr", "delta", "delta_pct"}
	deltaDetailColumns  = []string{"page", "source", "pageviews_prev", "pageviews_curr", "delta", "delta_pct"}
	bounceColumns       = []string{"page", "bounces", "sessions", "goal_completions", "bounce_rate", "goal_conversion_rate", "from_average"}
	bounceDetailColumns = []string{"page", "source", "bounces", "sessions", "goal_completions", "bounce_rate", "goal_conversion_rate", "from_average"}
	statsColumns        = []string{
		"sessions_prev", "sessions_curr", "sessions_change_rate",
		"goal_completions_prev", "goal_completions_curr", "goal_completions_change_rate",
		"goal_conversion_rate_prev", "goal_conversion_rate_curr",
	}
)

// Sheets flattens every available table of the report. Tables of failed
// reports are left out.
func Sheets(r *analytics.AnalysisReport) []Sheet {
	var sheets []Sheet

	if r.Overview != nil {
		s := Sheet{Name: ExecOverview, Columns: []string{"metric", "previous", "current", "change"}}
		for _, f := range r.Overview.Figures() {
			s.Rows = append(s.Rows, []any{f.Name, f.Previous, f.Current, f.Change})
		}
		sheets = append(sheets, s)
	}

	if r.Traffic != nil {
		sheets = append(sheets,
			deltaSheet(SpikesSummary, deltaColumns, r.Traffic.Spikes),
			deltaSheet(DropsSummary, deltaColumns, r.Traffic.Drops),
			deltaSheet(SpikesDetailed, deltaDetailColumns, r.Traffic.SpikesDetail),
			deltaSheet(DropsDetailed, deltaDetailColumns, r.Traffic.DropsDetail),
		)
	}

	if r.Bounce != nil {
		sheets = append(sheets,
			bounceSheet(HighBounceSummary, bounceColumns, r.Bounce.Highest),
			bounceSheet(LowBounceSummary, bounceColumns, r.Bounce.Lowest),
			bounceSheet(HighBounceDetail, bounceDetailColumns, r.Bounce.HighestDetail),
			bounceSheet(LowBounceDetail, bounceDetailColumns, r.Bounce.LowestDetail),
		)
	}

	if r.Sources != nil {
		summary := Sheet{Name: SourcesSummary, Columns: append([]string{"category", "sources"}, statsColumns...)}
		for _, c := range r.Sources.Summary {
			summary.Rows = append(summary.Rows, append([]any{string(c.Category), c.Sources}, statsRow(c.SourceStats)...))
		}
		detail := Sheet{Name: SourcesDetail, Columns: append([]string{"category", "source", "medium", "label"}, statsColumns...)}
		for _, d := range r.Sources.Detail {
			detail.Rows = append(detail.Rows, append([]any{string(d.Category), d.Source, d.Medium, d.Label}, statsRow(d.SourceStats)...))
		}
		sheets = append(sheets, summary, detail)
	}

	return sheets
}

func deltaSheet(name string, columns []string, rows []analytics.DeltaRow) Sheet {
	s := Sheet{Name: name, Columns: columns}
	for _, r := range rows {
		row := make([]any, 0, len(columns))
		for _, k := range r.Key {
			row = append(row, k)
		}
		s.Rows = append(s.Rows, append(row, r.Prev, r.Curr, r.Delta, r.DeltaPct))
	}
	return s
}

func bounceSheet(name string, columns []string, rows []analytics.BounceRow) Sheet {
	detailed := len(columns) == len(bounceDetailColumns)
	s := Sheet{Name: name, Columns: columns}
	for _, r := range rows {
		row := []any{r.Path}
		if detailed {
			row = append(row, r.Source)
		}
		s.Rows = append(s.Rows, append(row, r.Bounces, r.Sessions, r.GoalCompletions, r.BounceRate, r.GoalConversionRate, r.FromAverage))
	}
	return s
}

func statsRow(s analytics.SourceStats) []any {
	return []any{
		s.SessionsPrev, s.SessionsCurr, s.SessionsChangeRate,
		s.GoalCompletionsPrev, s.GoalCompletionsCurr, s.GoalCompletionsChangeRate,
		s.GoalConversionRatePrev, s.GoalConversionRateCurr,
	}
}

// Record returns row i as text, padded to the column count
func (s Sheet) Record(i int) []string {
	record := make([]string, len(s.Columns))
	for j := range record {
		if j < len(s.Rows[i]) {
			record[j] = formatCell(s.Rows[i][j])
		}
	}
	return record
}

// formatCell renders a cell for text output; rates keep two decimals
func formatCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return fmt.Sprintf("%.2f", c)
	default:
		return fmt.Sprint(c)
	}
}
