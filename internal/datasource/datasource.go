// Package datasource defines the tabular analytics source consumed by the
// report builder, with a local SQLite warehouse and an HTTP reporting client.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"nerdvision/internal/table"
)

// ErrUnavailable marks failures of the source itself: transport errors,
// timeouts, rejected calls while the breaker is open.
var ErrUnavailable = errors.New("data source unavailable")

// ErrTruncated is returned when a result has more pages than a query may fetch
var ErrTruncated = errors.New("result truncated")

// Dimension and metric names follow the Core Reporting API v3 vocabulary
const (
	DimPagePath          = "ga:pagePath"
	DimHostname          = "ga:hostname"
	DimSource            = "ga:source"
	DimMedium            = "ga:medium"
	DimHasSocialReferral = "ga:hasSocialSourceReferral"
	DimSocialNetwork     = "ga:socialNetwork"

	MetricPageviews       = "ga:pageviews"
	MetricBounces         = "ga:bounces"
	MetricSessions        = "ga:sessions"
	MetricGoalCompletions = "ga:goalCompletionsAll"
	MetricUsers           = "ga:users"
	MetricTotalEvents     = "ga:totalEvents"
)

// Query describes one tabular request. Start and End are period expressions
// (ISO dates, "NdaysAgo", "today", "yesterday"). Sort is a comma separated list
// of columns, each optionally prefixed with "-" for descending order.
type Query struct {
	Dimensions []string
	Metrics    []string
	Start      string
	End        string
	Sort       string
	Filters    string
}

// Schema returns the columns the query asks for
func (q Query) Schema() table.Schema {
	return table.Schema{Dimensions: q.Dimensions, Metrics: q.Metrics}
}

// Result is the raw answer of a source. Columns may be empty and rows may be
// shorter than the column list.
type Result struct {
	Columns []string
	Rows    [][]any
}

// DataSource executes tabular analytics queries
type DataSource interface {
	Query(ctx context.Context, q Query) (*Result, error)
}

// Fetch runs a query and converts the result into a table holding exactly the
// requested columns. A nil result or zero rows yields an empty table.
func Fetch(ctx context.Context, src DataSource, q Query) (*table.Table, error) {
	res, err := src.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return table.New(q.Schema().Columns()), nil
	}

	t, err := table.FromRaw(q.Schema(), res.Columns, res.Rows)
	if err != nil {
		return nil, fmt.Errorf("query %v: %w", q.Dimensions, err)
	}
	return t, nil
}
