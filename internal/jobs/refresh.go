package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nerdvision/internal/analytics"
	"nerdvision/internal/datasource"
	"nerdvision/internal/timeframe"
)

// RefreshSettings are the analysis parameters used on every refresh
type RefreshSettings struct {
	Periods      timeframe.Periods
	Restrictions analytics.Restrictions
	Options      analytics.Options
	// Timeout bounds a single refresh; zero means no limit
	Timeout time.Duration
}

// RefreshJob rebuilds the analysis report and stores it in the cache
type RefreshJob struct {
	source   datasource.DataSource
	cache    *ReportCache
	settings RefreshSettings
	logger   *slog.Logger
}

func NewRefreshJob(source datasource.DataSource, cache *ReportCache, settings RefreshSettings, logger *slog.Logger) *RefreshJob {
	if settings.Options.Logger == nil {
		settings.Options.Logger = logger
	}
	return &RefreshJob{
		source:   source,
		cache:    cache,
		settings: settings,
		logger:   logger,
	}
}

// Run builds a new report. A run in which every report failed keeps the
// previously cached report.
func (j *RefreshJob) Run(ctx context.Context) error {
	if j.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.settings.Timeout)
		defer cancel()
	}

	start := time.Now()
	report, err := analytics.RunAnalysis(ctx, j.source, j.settings.Periods, j.settings.Restrictions, j.settings.Options)
	if err != nil {
		return err
	}

	failed := report.FailedReports()
	if len(failed) > 0 && report.Overview == nil && report.Traffic == nil && report.Bounce == nil && report.Sources == nil {
		return errors.Join(errorsOf(report, failed)...)
	}

	j.cache.Set(report, time.Now())
	j.logger.Info("Report cache refreshed",
		slog.Duration("duration", time.Since(start)),
		slog.Any("failed_reports", failed))
	return nil
}

func errorsOf(report *analytics.AnalysisReport, names []string) []error {
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, report.Err(name))
	}
	return errs
}
