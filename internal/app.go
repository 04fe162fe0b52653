// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"nerdvision/internal/analytics"
	"nerdvision/internal/config"
	"nerdvision/internal/database"
	"nerdvision/internal/datasource"
	"nerdvision/internal/http"
	"nerdvision/internal/jobs"
	"nerdvision/internal/pkg/sourcerules"
	"nerdvision/internal/timeframe"
)

// refreshTimeout bounds a scheduled or manual report refresh
const refreshTimeout = 5 * time.Minute

// Application wraps cartridge.Application with the report pipeline components
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Cache     *jobs.ReportCache
	Scheduler *jobs.Scheduler
	Source    datasource.DataSource
	Rules     *sourcerules.Rules
	Logger    *slog.Logger
	Config    *config.Config
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rules, err := sourcerules.Load(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load source rules: %w", err)
	}

	source, err := NewDataSource(cfg, dbManager, logger)
	if err != nil {
		return nil, err
	}

	periods := cfg.Periods()
	checkPeriods(cfg, periods, logger)

	cache := jobs.NewReportCache()
	refreshJob := jobs.NewRefreshJob(source, cache, jobs.RefreshSettings{
		Periods:      periods,
		Restrictions: RestrictionsFromConfig(cfg),
		Options: analytics.Options{
			Rules:    rules,
			Parallel: cfg.ParallelReports,
			Logger:   logger,
		},
		Timeout: refreshTimeout,
	}, logger)
	cleanupJob := jobs.NewCleanupJob(dbManager, cfg.RetentionDays, cfg.Location(), logger)

	scheduler, err := jobs.NewScheduler(cfg.RefreshSchedule, refreshJob, cfg.CleanupSchedule, cleanupJob, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	handlers := http.NewHandlers(cache, scheduler, logger)

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         dbManager,
		RouteMountFunc:    NewRouteMounter(handlers),
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Cache:       cache,
		Scheduler:   scheduler,
		Source:      source,
		Rules:       rules,
		Logger:      logger,
		Config:      cfg,
	}, nil
}

// NewDataSource builds the configured data source. The warehouse reads the
// local database; the http source calls a reporting API.
func NewDataSource(cfg *config.Config, db datasource.Connector, logger *slog.Logger) (datasource.DataSource, error) {
	switch cfg.DataSource {
	case config.WarehouseSource:
		resolver := timeframe.NewResolver(cfg.Location())
		return datasource.NewWarehouse(db, resolver, logger), nil
	case config.HTTPSource:
		return datasource.NewHTTPSource(datasource.HTTPConfig{
			Endpoint:          cfg.HTTPEndpoint,
			Token:             cfg.HTTPToken,
			ViewID:            cfg.HTTPViewID,
			Timeout:           cfg.GetHTTPTimeout(),
			RequestsPerSecond: cfg.HTTPRequestsPerSecond,
			Burst:             cfg.HTTPBurst,
			Breaker: datasource.BreakerConfig{
				Name:             "reporting-api",
				FailureThreshold: uint32(cfg.BreakerMaxFailures),
				Timeout:          cfg.GetBreakerTimeout(),
			},
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown data source: %s", cfg.DataSource)
	}
}

// RestrictionsFromConfig reads the selection thresholds from the config
func RestrictionsFromConfig(cfg *config.Config) analytics.Restrictions {
	return analytics.Restrictions{
		ThresholdPct: cfg.ThresholdPct,
		TopN:         cfg.TopN,
		BounceHigh:   cfg.BounceHigh,
		BounceLow:    cfg.BounceLow,
	}
}

// checkPeriods logs periods that cannot be resolved or do not share a
// boundary day. The analysis still runs either way.
func checkPeriods(cfg *config.Config, periods timeframe.Periods, logger *slog.Logger) {
	gap, err := timeframe.NewResolver(cfg.Location()).Validate(periods)
	switch {
	case err != nil:
		logger.Warn("Configured periods do not resolve", slog.Any("error", err))
	case gap != 0:
		logger.Warn("Configured periods do not touch",
			slog.String("previous", periods.Previous.String()),
			slog.String("current", periods.Current.String()),
			slog.Int("gap_days", gap))
	}
}

// Analyze runs a single analysis outside the scheduler, as the CLI does
func (a *Application) Analyze(ctx context.Context, periods timeframe.Periods, restrictions analytics.Restrictions, reports []string) (*analytics.AnalysisReport, error) {
	checkPeriods(a.Config, periods, a.Logger)

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	return analytics.RunAnalysis(ctx, a.Source, periods, restrictions, analytics.Options{
		Rules:    a.Rules,
		Parallel: a.Config.ParallelReports,
		Reports:  reports,
		Logger:   a.Logger,
	})
}
