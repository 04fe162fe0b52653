package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"nerdvision/internal/datasource"
	"nerdvision/internal/timeframe"
)

// CleanupJob removes warehouse rows older than the retention period
type CleanupJob struct {
	db            datasource.Connector
	retentionDays int
	location      *time.Location
	timeProvider  timeframe.TimeProvider
	logger        *slog.Logger
}

func NewCleanupJob(db datasource.Connector, retentionDays int, loc *time.Location, logger *slog.Logger, tp ...timeframe.TimeProvider) *CleanupJob {
	var provider timeframe.TimeProvider = &timeframe.DefaultTimeProvider{}
	if len(tp) > 0 && tp[0] != nil {
		provider = tp[0]
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CleanupJob{
		db:            db,
		retentionDays: retentionDays,
		location:      loc,
		timeProvider:  provider,
		logger:        logger,
	}
}

// Run deletes traffic rows whose day is before the retention cutoff. A zero
// retention keeps everything.
func (j *CleanupJob) Run() error {
	if j.retentionDays <= 0 {
		return nil
	}

	db := j.db.GetConnection()
	if db == nil {
		return fmt.Errorf("%w: no database connection", datasource.ErrUnavailable)
	}
	cutoff := j.timeProvider.Now(j.location).AddDate(0, 0, -j.retentionDays).Format(timeframe.DateLayout)

	j.logger.Info("Starting cleanup of old traffic rows",
		slog.Int("retention_days", j.retentionDays),
		slog.String("cutoff_day", cutoff))

	var countToDelete int64
	if err := db.Model(&datasource.TrafficStat{}).
		Where("day < ?", cutoff).
		Count(&countToDelete).Error; err != nil {
		j.logger.Error("Failed to count old traffic rows", slog.Any("error", err))
		return err
	}

	if countToDelete == 0 {
		j.logger.Debug("No old traffic rows to clean up")
		return nil
	}

	// Delete in batches to avoid locking the database for too long
	batchSize := 1000
	totalDeleted := int64(0)

	for {
		batch := db.Model(&datasource.TrafficStat{}).Select("id").Where("day < ?", cutoff).Limit(batchSize)
		result := db.Where("id IN (?)", batch).Delete(&datasource.TrafficStat{})

		if result.Error != nil {
			j.logger.Error("Failed to delete old traffic rows",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(batchSize) {
			break
		}

		time.Sleep(100 * time.Millisecond)
	}

	j.logger.Info("Cleaned up old traffic rows",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", j.retentionDays))

	return nil
}
