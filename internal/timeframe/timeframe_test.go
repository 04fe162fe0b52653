// Package timeframe_test contains tests for the timeframe package
package timeframe_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerdvision/internal/timeframe"
)

// MockTimeProvider implements the TimeProvider interface for testing
type MockTimeProvider struct {
	FixedTime time.Time
}

func (m *MockTimeProvider) Now(loc *time.Location) time.Time {
	return m.FixedTime.In(loc)
}

func newResolver() *timeframe.Resolver {
	// March 15, 2024, 12:00 UTC
	return timeframe.NewResolver(time.UTC, &MockTimeProvider{FixedTime: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)})
}

func TestResolveDate(t *testing.T) {
	resolver := newResolver()

	testCases := []struct {
		expr     string
		expected string
	}{
		{"today", "2024-03-15"},
		{"yesterday", "2024-03-14"},
		{"0daysAgo", "2024-03-15"},
		{"31daysAgo", "2024-02-13"},
		{"61daysAgo", "2024-01-14"},
		{"2023-12-01", "2023-12-01"},
		{" yesterday ", "2024-03-14"},
	}

	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			date, err := resolver.ResolveDate(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, date.Format(timeframe.DateLayout))
		})
	}
}

func TestResolveDateInvalid(t *testing.T) {
	resolver := newResolver()

	for _, expr := range []string{"", "tomorrow", "3weeksAgo", "2024-13-01", "-1daysAgo"} {
		_, err := resolver.ResolveDate(expr)
		assert.True(t, errors.Is(err, timeframe.ErrInvalidPeriod), "expected invalid period for %q", expr)
	}
}

func TestResolvePeriod(t *testing.T) {
	resolver := newResolver()

	window, err := resolver.Resolve(timeframe.DefaultPeriods().Current)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-13", window.StartDate())
	assert.Equal(t, "2024-03-14", window.EndDate())
	assert.Equal(t, 31, window.Days())

	_, err = resolver.Resolve(timeframe.Period{Start: "today", End: "yesterday"})
	assert.ErrorIs(t, err, timeframe.ErrInvalidPeriod)
}

func TestValidatePeriods(t *testing.T) {
	resolver := newResolver()

	gap, err := resolver.Validate(timeframe.DefaultPeriods())
	require.NoError(t, err)
	assert.Equal(t, 0, gap)

	gap, err = resolver.Validate(timeframe.Periods{
		Current:  timeframe.Period{Start: "2024-03-01", End: "2024-03-10"},
		Previous: timeframe.Period{Start: "2024-02-01", End: "2024-02-20"},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, gap)

	_, err = resolver.Validate(timeframe.Periods{
		Current:  timeframe.Period{Start: "bogus", End: "today"},
		Previous: timeframe.DefaultPeriods().Previous,
	})
	assert.Error(t, err)
}
