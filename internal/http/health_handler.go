package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"nerdvision/internal/jobs"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status       string     `json:"status"`
	Timestamp    time.Time  `json:"timestamp"`
	DBStatus     string     `json:"db_status"`
	ReportStatus string     `json:"report_status"`
	RefreshedAt  *time.Time `json:"refreshed_at,omitempty"`
}

// checkHealth pings the database and inspects the report cache
func checkHealth(db *gorm.DB, cache *jobs.ReportCache, logger *slog.Logger) HealthStatus {
	dbStatus := "ok"

	if db == nil {
		dbStatus = "error"
		logger.Error("Database connection unavailable")
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			dbStatus = "error"
			logger.Error("Database connection error", slog.Any("error", err))
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error"
			logger.Error("Database ping failed", slog.Any("error", err))
		}
	}

	health := HealthStatus{
		Status:       "ok",
		Timestamp:    time.Now(),
		DBStatus:     dbStatus,
		ReportStatus: "pending",
	}

	if report, at := cache.Get(); report != nil {
		health.ReportStatus = "ready"
		if report.Failed() {
			health.ReportStatus = "partial"
		}
		health.RefreshedAt = &at
	}

	if dbStatus != "ok" {
		health.Status = "degraded"
	}

	return health
}

// HealthIndexAction handles the health check endpoint
func (h *Handlers) HealthIndexAction(ctx *cartridge.Context) error {
	var db *gorm.DB
	if ctx.DBManager != nil {
		db = ctx.DBManager.GetConnection()
	}
	return ctx.JSON(checkHealth(db, h.cache, ctx.Logger))
}
