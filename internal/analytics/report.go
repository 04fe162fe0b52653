package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"nerdvision/internal/datasource"
	"nerdvision/internal/pkg/async"
	"nerdvision/internal/pkg/sourcerules"
	"nerdvision/internal/table"
	"nerdvision/internal/timeframe"
)

// Report names
const (
	ReportOverview = "overview"
	ReportTraffic  = "traffic"
	ReportBounce   = "bounce"
	ReportSources  = "sources"
)

// ReportNames lists every report in generation order
var ReportNames = []string{ReportOverview, ReportTraffic, ReportBounce, ReportSources}

// Restrictions tune the selections of a run
type Restrictions struct {
	// ThresholdPct is the minimum absolute page view change for a spike or drop
	ThresholdPct float64 `json:"threshold_pct"`
	TopN         int     `json:"top_n"`
	BounceHigh   float64 `json:"bounce_high"`
	BounceLow    float64 `json:"bounce_low"`
}

// DefaultRestrictions returns the standard thresholds
func DefaultRestrictions() Restrictions {
	return Restrictions{
		ThresholdPct: 18,
		TopN:         5,
		BounceHigh:   75,
		BounceLow:    40,
	}
}

// Validate checks that the restrictions describe a usable selection
func (r Restrictions) Validate() error {
	if r.ThresholdPct < 0 {
		return fmt.Errorf("threshold must not be negative, got %.2f", r.ThresholdPct)
	}
	if r.TopN <= 0 {
		return fmt.Errorf("top N must be positive, got %d", r.TopN)
	}
	if r.BounceLow < 0 || r.BounceHigh > 100 || r.BounceLow > r.BounceHigh {
		return fmt.Errorf("bounce thresholds must satisfy 0 <= low <= high <= 100, got %.2f and %.2f", r.BounceLow, r.BounceHigh)
	}
	return nil
}

// Options control how a run is executed
type Options struct {
	// Rules classify sources and clean paths; nil means the built in rules
	Rules *sourcerules.Rules
	// Parallel runs the reports concurrently
	Parallel bool
	// Workers bounds the concurrent reports; zero means one per report
	Workers int
	// Reports restricts the run to a subset of ReportNames
	Reports []string
	Logger  *slog.Logger
	Now     func() time.Time
}

// ReportError records the failure of a single report
type ReportError struct {
	Report string
	Err    error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("%s report: %v", e.Report, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// TrafficReport lists the pages whose page views moved the most
type TrafficReport struct {
	Spikes       []DeltaRow `json:"spikes"`
	Drops        []DeltaRow `json:"drops"`
	SpikesDetail []DeltaRow `json:"spikes_detail"`
	DropsDetail  []DeltaRow `json:"drops_detail"`
}

// AnalysisReport is the outcome of one run. Reports that failed are nil and
// their error is listed in Failures.
type AnalysisReport struct {
	Periods      timeframe.Periods `json:"periods"`
	Restrictions Restrictions      `json:"restrictions"`
	Overview     *Overview         `json:"overview,omitempty"`
	Traffic      *TrafficReport    `json:"traffic,omitempty"`
	Bounce       *BounceReport     `json:"bounce,omitempty"`
	Sources      *SourcesReport    `json:"sources,omitempty"`
	Failures     map[string]string `json:"failures,omitempty"`
	GeneratedAt  time.Time         `json:"generated_at"`

	errs map[string]error
}

// Err returns the error of a failed report, or nil. Reports that were not
// built by RunAnalysis, such as decoded ones, only carry the message.
func (r *AnalysisReport) Err(name string) error {
	if err, ok := r.errs[name]; ok {
		return err
	}
	if msg, ok := r.Failures[name]; ok {
		return errors.New(msg)
	}
	return nil
}

// Failed reports whether any report failed
func (r *AnalysisReport) Failed() bool {
	return len(r.Failures) > 0
}

// FailedReports returns the names of failed reports, sorted
func (r *AnalysisReport) FailedReports() []string {
	names := make([]string, 0, len(r.Failures))
	for name := range r.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAnalysis queries the data source for both periods and builds every
// report. A failing report never prevents the others from completing; the
// returned error covers invalid arguments only.
func RunAnalysis(ctx context.Context, src datasource.DataSource, periods timeframe.Periods, restrictions Restrictions, opts Options) (*AnalysisReport, error) {
	if src == nil {
		return nil, errors.New("no data source configured")
	}
	if err := restrictions.Validate(); err != nil {
		return nil, err
	}

	rules := opts.Rules
	if rules == nil {
		var err error
		if rules, err = sourcerules.Default(); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if periods.Previous.End != periods.Current.Start {
		logger.Warn("Previous period does not end where the current one starts",
			slog.String("previous", periods.Previous.String()),
			slog.String("current", periods.Current.String()))
	}

	names := ReportNames
	if len(opts.Reports) > 0 {
		names = nil
		for _, name := range opts.Reports {
			if !knownReport(name) {
				return nil, fmt.Errorf("unknown report %q", name)
			}
			names = append(names, name)
		}
	}

	b := &builder{
		src:          src,
		periods:      periods,
		restrictions: restrictions,
		rules:        rules,
		logger:       logger,
	}

	tasks := make([]async.Task, 0, len(names))
	for _, name := range names {
		name := name
		tasks = append(tasks, async.Task{
			Name: name,
			Execute: func(ctx context.Context) (interface{}, error) {
				return b.build(ctx, name)
			},
		})
	}

	workers := 1
	if opts.Parallel {
		workers = opts.Workers
		if workers <= 0 {
			workers = len(tasks)
		}
	}

	start := time.Now()
	results := async.NewPool(workers).Execute(ctx, tasks)

	report := &AnalysisReport{
		Periods:      periods,
		Restrictions: restrictions,
		GeneratedAt:  now(),
		errs:         make(map[string]error),
	}
	for _, name := range names {
		res := results[name]
		if res.Err != nil {
			err := &ReportError{Report: name, Err: res.Err}
			report.errs[name] = err
			logger.Error("Report generation failed",
				slog.String("report", name),
				slog.Any("error", res.Err))
			continue
		}
		switch v := res.Data.(type) {
		case *Overview:
			report.Overview = v
		case *TrafficReport:
			report.Traffic = v
		case *BounceReport:
			report.Bounce = v
		case *SourcesReport:
			report.Sources = v
		}
	}
	if len(report.errs) > 0 {
		report.Failures = make(map[string]string, len(report.errs))
		for name, err := range report.errs {
			report.Failures[name] = err.Error()
		}
	}

	logger.Info("Analysis completed",
		slog.Int("reports", len(names)),
		slog.Int("failed", len(report.errs)),
		slog.Duration("duration", time.Since(start)))

	return report, nil
}

func knownReport(name string) bool {
	for _, n := range ReportNames {
		if n == name {
			return true
		}
	}
	return false
}

// builder issues the queries of each report. It holds no mutable state so
// reports can be built concurrently.
type builder struct {
	src          datasource.DataSource
	periods      timeframe.Periods
	restrictions Restrictions
	rules        *sourcerules.Rules
	logger       *slog.Logger
}

func (b *builder) build(ctx context.Context, name string) (interface{}, error) {
	b.logger.Debug("Generating report", slog.String("report", name))
	switch name {
	case ReportOverview:
		return b.overview(ctx)
	case ReportTraffic:
		return b.traffic(ctx)
	case ReportBounce:
		return b.bounce(ctx)
	case ReportSources:
		return b.sources(ctx)
	}
	return nil, fmt.Errorf("unknown report %q", name)
}

func (b *builder) query(dimensions, metrics []string, period timeframe.Period, order string) datasource.Query {
	return datasource.Query{
		Dimensions: dimensions,
		Metrics:    metrics,
		Start:      period.Start,
		End:        period.End,
		Sort:       order,
	}
}

// fetchBoth runs the same query for the current and then the previous period
func (b *builder) fetchBoth(ctx context.Context, dimensions, metrics []string, order string) (prev, curr *table.Table, err error) {
	curr, err = datasource.Fetch(ctx, b.src, b.query(dimensions, metrics, b.periods.Current, order))
	if err != nil {
		return nil, nil, fmt.Errorf("current period: %w", err)
	}
	prev, err = datasource.Fetch(ctx, b.src, b.query(dimensions, metrics, b.periods.Previous, order))
	if err != nil {
		return nil, nil, fmt.Errorf("previous period: %w", err)
	}
	return prev, curr, nil
}

func (b *builder) overview(ctx context.Context) (*Overview, error) {
	dims := []string{datasource.DimPagePath}
	prev, curr, err := b.fetchBoth(ctx, dims, OverviewMetrics, "-"+datasource.MetricUsers)
	if err != nil {
		return nil, err
	}
	cmp, err := Align(prev, curr, AlignSpec{Keys: dims, Metrics: OverviewMetrics})
	if err != nil {
		return nil, err
	}
	return BuildOverview(cmp)
}

func (b *builder) traffic(ctx context.Context) (*TrafficReport, error) {
	metrics := []string{datasource.MetricPageviews}
	order := "-" + datasource.MetricPageviews

	prev, curr, err := b.fetchBoth(ctx, []string{datasource.DimPagePath, datasource.DimHostname}, metrics, order)
	if err != nil {
		return nil, err
	}
	cmp, err := Align(prev, curr, AlignSpec{
		Keys:       []string{datasource.DimPagePath},
		HostColumn: datasource.DimHostname,
		Metrics:    metrics,
		Cleaner:    b.rules,
	})
	if err != nil {
		return nil, err
	}
	deltas, err := cmp.Deltas(datasource.MetricPageviews)
	if err != nil {
		return nil, err
	}
	report := &TrafficReport{}
	report.Spikes, report.Drops = SelectSpikesAndDrops(deltas, b.restrictions.ThresholdPct, b.restrictions.TopN)
	b.logger.Debug("Selected traffic spikes and drops",
		slog.Int("pages", len(deltas)),
		slog.Int("spikes", len(report.Spikes)),
		slog.Int("drops", len(report.Drops)))

	prevSrc, currSrc, err := b.fetchBoth(ctx,
		[]string{datasource.DimPagePath, datasource.DimHostname, datasource.DimSource}, metrics, order)
	if err != nil {
		return nil, fmt.Errorf("source detail: %w", err)
	}
	detail, err := Align(prevSrc, currSrc, AlignSpec{
		Keys:       []string{datasource.DimPagePath, datasource.DimSource},
		HostColumn: datasource.DimHostname,
		Metrics:    metrics,
		Cleaner:    b.rules,
	})
	if err != nil {
		return nil, fmt.Errorf("source detail: %w", err)
	}
	detailDeltas, err := detail.Deltas(datasource.MetricPageviews)
	if err != nil {
		return nil, err
	}
	report.SpikesDetail = DetailFor(detailDeltas, keysOf(report.Spikes))
	report.DropsDetail = DetailFor(detailDeltas, keysOf(report.Drops))
	return report, nil
}

func (b *builder) bounce(ctx context.Context) (*BounceReport, error) {
	current := b.periods.Current
	pageDims := []string{datasource.DimPagePath, datasource.DimHostname}
	bounceSort := "-" + datasource.MetricBounces

	pageviews, err := datasource.Fetch(ctx, b.src,
		b.query(pageDims, []string{datasource.MetricPageviews}, current, "-"+datasource.MetricPageviews))
	if err != nil {
		return nil, fmt.Errorf("page views: %w", err)
	}
	pages, err := datasource.Fetch(ctx, b.src, b.query(pageDims, BounceMetrics, current, bounceSort))
	if err != nil {
		return nil, fmt.Errorf("page bounces: %w", err)
	}
	pageSources, err := datasource.Fetch(ctx, b.src,
		b.query([]string{datasource.DimPagePath, datasource.DimHostname, datasource.DimSource}, BounceMetrics, current, bounceSort))
	if err != nil {
		return nil, fmt.Errorf("page bounces by source: %w", err)
	}

	return AnalyzeBounce(BounceInput{
		Pageviews:   pageviews,
		Pages:       pages,
		PageSources: pageSources,
	}, BounceOptions{
		High:    b.restrictions.BounceHigh,
		Low:     b.restrictions.BounceLow,
		TopN:    b.restrictions.TopN,
		Cleaner: b.rules,
	})
}

func (b *builder) sources(ctx context.Context) (*SourcesReport, error) {
	prev, curr, err := b.fetchBoth(ctx, SourceDimensions, SourceMetrics, "-"+datasource.MetricSessions)
	if err != nil {
		return nil, err
	}
	cmp, err := Align(prev, curr, AlignSpec{Keys: SourceDimensions, Metrics: SourceMetrics})
	if err != nil {
		return nil, err
	}
	return ClassifySources(cmp, b.rules)
}
