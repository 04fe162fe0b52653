package http

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerdvision/internal/analytics"
	"nerdvision/internal/jobs"
	"nerdvision/internal/testsupport"
	"nerdvision/internal/timeframe"
)

type stubRefresher struct {
	cache *jobs.ReportCache
	err   error
	calls int
}

func (s *stubRefresher) RefreshNow() error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.cache.Set(sampleReport(), time.Now())
	return nil
}

func sampleReport() *analytics.AnalysisReport {
	return &analytics.AnalysisReport{
		Periods:      timeframe.DefaultPeriods(),
		Restrictions: analytics.DefaultRestrictions(),
		Overview:     &analytics.Overview{Visitors: analytics.MetricChange{Previous: 5, Current: 10, Change: 100}},
		Traffic: &analytics.TrafficReport{
			Spikes: []analytics.DeltaRow{analytics.NewDeltaRow([]string{"example.com/a"}, 10, 20)},
		},
		Failures: map[string]string{analytics.ReportSources: "sources report: data source unavailable"},
	}
}

func newTestApp(h *Handlers) *fiber.App {
	app := fiber.New()
	app.Get("/api/v1/report", h.showReport)
	app.Get("/api/v1/report/export/:table", h.exportTable)
	app.Get("/api/v1/report/workbook.xlsx", h.exportWorkbook)
	app.Get("/api/v1/report/:name", h.showSection)
	app.Post("/api/v1/report/refresh", h.refresh)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestReportNotReady(t *testing.T) {
	app := newTestApp(NewHandlers(jobs.NewReportCache(), nil, testsupport.GetLogger()))

	status, body := do(t, app, fiber.MethodGet, "/api/v1/report")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "not ready")
}

func TestShowReport(t *testing.T) {
	cache := jobs.NewReportCache()
	cache.Set(sampleReport(), time.Now())
	app := newTestApp(NewHandlers(cache, nil, testsupport.GetLogger()))

	status, body := do(t, app, fiber.MethodGet, "/api/v1/report")
	require.Equal(t, fiber.StatusOK, status)

	var payload struct {
		Overview struct {
			Visitors analytics.MetricChange `json:"visitors"`
		} `json:"overview"`
		Failures map[string]string `json:"failures"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, int64(10), payload.Overview.Visitors.Current)
	assert.Contains(t, payload.Failures, analytics.ReportSources)
}

func TestShowSection(t *testing.T) {
	cache := jobs.NewReportCache()
	cache.Set(sampleReport(), time.Now())
	app := newTestApp(NewHandlers(cache, nil, testsupport.GetLogger()))

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/api/v1/report/traffic", fiber.StatusOK, "example.com/a"},
		{"/api/v1/report/overview", fiber.StatusOK, "visitors"},
		{"/api/v1/report/sources", fiber.StatusBadGateway, "data source unavailable"},
		{"/api/v1/report/funnels", fiber.StatusNotFound, "unknown report"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := do(t, app, fiber.MethodGet, tt.path)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestExportTable(t *testing.T) {
	cache := jobs.NewReportCache()
	cache.Set(sampleReport(), time.Now())
	app := newTestApp(NewHandlers(cache, nil, testsupport.GetLogger()))

	status, body := do(t, app, fiber.MethodGet, "/api/v1/report/export/tts_summary.csv")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "page,pageviews_prev,pageviews_curr,delta,delta_pct\nexample.com/a,10,20,10,100.00\n", string(body))

	status, _ = do(t, app, fiber.MethodGet, "/api/v1/report/export/srcs_summary.csv")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestExportWorkbook(t *testing.T) {
	cache := jobs.NewReportCache()
	cache.Set(sampleReport(), time.Now())
	app := newTestApp(NewHandlers(cache, nil, testsupport.GetLogger()))

	status, body := do(t, app, fiber.MethodGet, "/api/v1/report/workbook.xlsx")
	require.Equal(t, fiber.StatusOK, status)
	// XLSX files are zip archives
	assert.Equal(t, "PK", string(body[:2]))
}

func TestRefresh(t *testing.T) {
	cache := jobs.NewReportCache()
	refresher := &stubRefresher{cache: cache}
	app := newTestApp(NewHandlers(cache, refresher, testsupport.GetLogger()))

	status, _ := do(t, app, fiber.MethodPost, "/api/v1/report/refresh")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, refresher.calls)

	refresher.err = errors.New("data source unavailable")
	status, body := do(t, app, fiber.MethodPost, "/api/v1/report/refresh")
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Contains(t, string(body), "data source unavailable")
}

func TestRefreshDisabled(t *testing.T) {
	app := newTestApp(NewHandlers(jobs.NewReportCache(), nil, testsupport.GetLogger()))

	status, _ := do(t, app, fiber.MethodPost, "/api/v1/report/refresh")
	assert.Equal(t, fiber.StatusNotImplemented, status)
}

func TestCheckHealth(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	cache := jobs.NewReportCache()

	health := checkHealth(db, cache, testsupport.GetLogger())
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.DBStatus)
	assert.Equal(t, "pending", health.ReportStatus)
	assert.Nil(t, health.RefreshedAt)

	cache.Set(sampleReport(), time.Now())
	health = checkHealth(db, cache, testsupport.GetLogger())
	assert.Equal(t, "partial", health.ReportStatus)
	assert.NotNil(t, health.RefreshedAt)

	health = checkHealth(nil, cache, testsupport.GetLogger())
	assert.Equal(t, "degraded", health.Status)
}
