// Package database owns the SQLite file backing the traffic warehouse.
package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"nerdvision/internal/config"
	"nerdvision/internal/datasource"
)

// DBManager is cartridge's sqlite.Manager plus the warehouse schema.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager opens the warehouse in WAL mode with immediate transactions,
// so the refresh job can read while the seeder or cleanup writes.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{
		Manager: sqlite.NewManager(sqlite.Config{
			Path:         cfg.DatabaseName,
			MaxOpenConns: cfg.GetMaxOpenConns(),
			MaxIdleConns: cfg.GetMaxIdleConns(),
			Logger:       logger,
			EnableWAL:    true,
			TxImmediate:  true,
			BusyTimeout:  5000,
		}),
		logger: logger,
	}
}

// Init connects to the warehouse file, creating it if needed.
func (dm *DBManager) Init() error {
	if _, err := dm.Manager.Connect(); err != nil {
		return fmt.Errorf("connect warehouse: %w", err)
	}
	return nil
}

// Models lists every table owned by the application
func Models() []any {
	return []any{
		&datasource.TrafficStat{},
	}
}

// MigrateDatabase creates or updates the warehouse tables.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	}); err != nil {
		dm.logger.Error("Failed to migrate warehouse", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Warehouse migration completed")
	return nil
}

// Optimize refreshes the query planner statistics after bulk loads or
// deletes, then folds the WAL back into the database file.
func (dm *DBManager) Optimize(ctx context.Context) error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	if err := db.WithContext(ctx).Exec("ANALYZE traffic_stats").Error; err != nil {
		return fmt.Errorf("analyze warehouse: %w", err)
	}
	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after optimize", slog.Any("error", err))
	}
	return nil
}

// Span describes the days covered by the warehouse
type Span struct {
	Rows     int64
	FirstDay string
	LastDay  string
}

// Empty reports whether the warehouse holds no rows
func (s Span) Empty() bool {
	return s.Rows == 0
}

// ReadSpan counts the warehouse rows and finds the first and last day
func ReadSpan(ctx context.Context, db *gorm.DB) (Span, error) {
	var row struct {
		RowCount int64
		FirstDay *string
		LastDay  *string
	}
	if err := db.WithContext(ctx).Model(&datasource.TrafficStat{}).
		Select("COUNT(*) AS row_count, MIN(day) AS first_day, MAX(day) AS last_day").
		Scan(&row).Error; err != nil {
		return Span{}, fmt.Errorf("read warehouse span: %w", err)
	}

	span := Span{Rows: row.RowCount}
	if row.FirstDay != nil {
		span.FirstDay = *row.FirstDay
	}
	if row.LastDay != nil {
		span.LastDay = *row.LastDay
	}
	return span, nil
}

// Span reads the warehouse span through the managed connection
func (dm *DBManager) Span(ctx context.Context) (Span, error) {
	db := dm.GetConnection()
	if db == nil {
		return Span{}, gorm.ErrInvalidDB
	}
	return ReadSpan(ctx, db)
}
