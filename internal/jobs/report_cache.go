package jobs

import (
	"sync"
	"time"

	"nerdvision/internal/analytics"
)

// ReportCache holds the latest analysis report for the HTTP API. The report
// is replaced as a whole and never modified in place.
type ReportCache struct {
	mu          sync.RWMutex
	report      *analytics.AnalysisReport
	refreshedAt time.Time
}

func NewReportCache() *ReportCache {
	return &ReportCache{}
}

// Get returns the cached report and when it was stored; nil before the first
// refresh
func (c *ReportCache) Get() (*analytics.AnalysisReport, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.report, c.refreshedAt
}

// Set replaces the cached report
func (c *ReportCache) Set(report *analytics.AnalysisReport, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report = report
	c.refreshedAt = at
}

// Ready reports whether a report has been stored
func (c *ReportCache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.report != nil
}
