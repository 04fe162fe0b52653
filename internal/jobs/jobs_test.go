package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nerdvision/internal/analytics"
	"nerdvision/internal/datasource"
	"nerdvision/internal/jobs"
	"nerdvision/internal/testsupport"
	"nerdvision/internal/timeframe"
)

type fixedTime struct{ now time.Time }

func (f fixedTime) Now(loc *time.Location) time.Time { return f.now.In(loc) }

type disconnected struct{}

func (disconnected) GetConnection() *gorm.DB { return nil }

func refreshSettings() jobs.RefreshSettings {
	return jobs.RefreshSettings{
		Periods:      timeframe.DefaultPeriods(),
		Restrictions: analytics.DefaultRestrictions(),
		Timeout:      5 * time.Second,
	}
}

func scriptedSource() *testsupport.FakeSource {
	src := testsupport.NewFakeSource()
	src.Respond([]string{datasource.DimPagePath}, analytics.OverviewMetrics, timeframe.DefaultPeriods().Current.Start,
		[]any{"/a", 10, 12, 20, 1, 3})
	return src
}

func TestReportCache(t *testing.T) {
	cache := jobs.NewReportCache()
	report, at := cache.Get()
	assert.Nil(t, report)
	assert.True(t, at.IsZero())
	assert.False(t, cache.Ready())

	now := time.Now()
	cache.Set(&analytics.AnalysisReport{}, now)
	report, at = cache.Get()
	assert.NotNil(t, report)
	assert.Equal(t, now, at)
	assert.True(t, cache.Ready())
}

func TestRefreshJob_StoresReport(t *testing.T) {
	cache := jobs.NewReportCache()
	job := jobs.NewRefreshJob(scriptedSource(), cache, refreshSettings(), testsupport.GetLogger())

	require.NoError(t, job.Run(context.Background()))

	report, _ := cache.Get()
	require.NotNil(t, report)
	require.NotNil(t, report.Overview)
	assert.Equal(t, int64(10), report.Overview.Visitors.Current)
}

func TestRefreshJob_KeepsPreviousReportWhenEverythingFails(t *testing.T) {
	cache := jobs.NewReportCache()
	previous := &analytics.AnalysisReport{}
	cache.Set(previous, time.Now())

	job := jobs.NewRefreshJob(scriptedSource(), cache, refreshSettings(), testsupport.GetLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := job.Run(ctx)
	assert.Error(t, err)

	report, _ := cache.Get()
	assert.Same(t, previous, report)
}

func TestCleanupJob(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	testsupport.CreateTrafficStats(t, db,
		datasource.TrafficStat{Day: "2023-01-01", PagePath: "/old", Pageviews: 1},
		datasource.TrafficStat{Day: "2024-02-13", PagePath: "/edge", Pageviews: 1},
		datasource.TrafficStat{Day: "2024-03-10", PagePath: "/new", Pageviews: 1},
	)

	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	job := jobs.NewCleanupJob(testsupport.NewTestDBManager(db), 30, time.UTC, testsupport.GetLogger(), fixedTime{now: now})
	require.NoError(t, job.Run())

	var paths []string
	require.NoError(t, db.Model(&datasource.TrafficStat{}).Order("day").Pluck("page_path", &paths).Error)
	assert.Equal(t, []string{"/new"}, paths)
}

func TestCleanupJob_ZeroRetentionKeepsEverything(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	testsupport.CreateTrafficStats(t, db, datasource.TrafficStat{Day: "2001-01-01", PagePath: "/ancient"})

	job := jobs.NewCleanupJob(testsupport.NewTestDBManager(db), 0, time.UTC, testsupport.GetLogger())
	require.NoError(t, job.Run())

	var count int64
	db.Model(&datasource.TrafficStat{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCleanupJob_NoConnection(t *testing.T) {
	job := jobs.NewCleanupJob(disconnected{}, 30, time.UTC, testsupport.GetLogger())
	err := job.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, datasource.ErrUnavailable))
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := jobs.NewScheduler("every now and then", nil, "", nil, testsupport.GetLogger())
	assert.Error(t, err)
}

func TestScheduler_InitialRefresh(t *testing.T) {
	cache := jobs.NewReportCache()
	job := jobs.NewRefreshJob(scriptedSource(), cache, refreshSettings(), testsupport.GetLogger())

	s, err := jobs.NewScheduler("@every 1h", job, "", nil, testsupport.GetLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	assert.True(t, s.IsRunning())
	require.Eventually(t, cache.Ready, 5*time.Second, 10*time.Millisecond)
}

func TestScheduler_Stop(t *testing.T) {
	s, err := jobs.NewScheduler("", nil, "", nil, testsupport.GetLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.RefreshNow())
}
