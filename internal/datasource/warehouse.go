package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"nerdvision/internal/timeframe"
)

// TrafficStat is one day of traffic for a (host, page, source) combination
type TrafficStat struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	Day               string `gorm:"size:10;index:idx_traffic_day;not null"`
	Hostname          string `gorm:"index:idx_traffic_page;not null"`
	PagePath          string `gorm:"index:idx_traffic_page;not null"`
	Source            string `gorm:"not null"`
	Medium            string `gorm:"not null"`
	HasSocialReferral string `gorm:"not null"`
	SocialNetwork     string `gorm:"not null"`
	Pageviews         int64  `gorm:"not null;default:0"`
	Sessions          int64  `gorm:"not null;default:0"`
	Bounces           int64  `gorm:"not null;default:0"`
	GoalCompletions   int64  `gorm:"not null;default:0"`
	Users             int64  `gorm:"not null;default:0"`
	Events            int64  `gorm:"not null;default:0"`
	CreatedAt         time.Time
}

var warehouseDimensions = map[string]string{
	DimPagePath:          "page_path",
	DimHostname:          "hostname",
	DimSource:            "source",
	DimMedium:            "medium",
	DimHasSocialReferral: "has_social_referral",
	DimSocialNetwork:     "social_network",
}

var warehouseMetrics = map[string]string{
	MetricPageviews:       "pageviews",
	MetricBounces:         "bounces",
	MetricSessions:        "sessions",
	MetricGoalCompletions: "goal_completions",
	MetricUsers:           "users",
	MetricTotalEvents:     "events",
}

// Connector hands out the gorm connection of a database manager
type Connector interface {
	GetConnection() *gorm.DB
}

// Warehouse answers queries from the local traffic_stats table
type Warehouse struct {
	db       Connector
	resolver *timeframe.Resolver
	logger   *slog.Logger
}

func NewWarehouse(db Connector, resolver *timeframe.Resolver, logger *slog.Logger) *Warehouse {
	return &Warehouse{
		db:       db,
		resolver: resolver,
		logger:   logger,
	}
}

// Query aggregates traffic_stats over the requested window
func (w *Warehouse) Query(ctx context.Context, q Query) (*Result, error) {
	conn := w.db.GetConnection()
	if conn == nil {
		return nil, fmt.Errorf("%w: no database connection", ErrUnavailable)
	}

	window, err := w.resolver.Resolve(timeframe.Period{Start: q.Start, End: q.End})
	if err != nil {
		return nil, err
	}

	query, args, err := buildWarehouseQuery(q, window)
	if err != nil {
		return nil, err
	}

	w.logger.Debug("Running warehouse query",
		slog.Any("dimensions", q.Dimensions),
		slog.Any("metrics", q.Metrics),
		slog.String("window", window.String()))

	rows, err := conn.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	columns := append(append([]string{}, q.Dimensions...), q.Metrics...)
	result := &Result{Columns: columns}
	for rows.Next() {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan warehouse row: %w", err)
		}
		result.Rows = append(result.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return result, nil
}

// Load stores traffic rows in batches
func (w *Warehouse) Load(ctx context.Context, stats []TrafficStat) error {
	if len(stats) == 0 {
		return nil
	}
	conn := w.db.GetConnection()
	if conn == nil {
		return fmt.Errorf("%w: no database connection", ErrUnavailable)
	}
	if err := conn.WithContext(ctx).CreateInBatches(stats, 500).Error; err != nil {
		return fmt.Errorf("failed to load traffic stats: %w", err)
	}
	return nil
}

func buildWarehouseQuery(q Query, window timeframe.Window) (string, []any, error) {
	var selects, groups []string
	for _, d := range q.Dimensions {
		col, ok := warehouseDimensions[d]
		if !ok {
			return "", nil, fmt.Errorf("unsupported dimension: %s", d)
		}
		selects = append(selects, col)
		groups = append(groups, col)
	}
	for _, m := range q.Metrics {
		col, ok := warehouseMetrics[m]
		if !ok {
			return "", nil, fmt.Errorf("unsupported metric: %s", m)
		}
		selects = append(selects, fmt.Sprintf("COALESCE(SUM(%s), 0)", col))
	}
	if len(selects) == 0 {
		return "", nil, fmt.Errorf("query has no dimensions or metrics")
	}

	where := []string{"day BETWEEN ? AND ?"}
	args := []any{window.StartDate(), window.EndDate()}

	filterSQL, filterArgs, err := parseFilters(q.Filters)
	if err != nil {
		return "", nil, err
	}
	if filterSQL != "" {
		where = append(where, filterSQL)
		args = append(args, filterArgs...)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM traffic_stats WHERE %s", strings.Join(selects, ", "), strings.Join(where, " AND "))
	if len(groups) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(groups, ", "))
	}

	order, err := parseSort(q.Sort)
	if err != nil {
		return "", nil, err
	}
	// Ties fall back to the dimension order so results are stable
	order = append(order, groups...)
	if len(order) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(order, ", "))
	}

	return b.String(), args, nil
}

func parseSort(sort string) ([]string, error) {
	var order []string
	for _, key := range strings.Split(sort, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		direction := "ASC"
		if strings.HasPrefix(key, "-") {
			direction = "DESC"
			key = key[1:]
		}
		if col, ok := warehouseDimensions[key]; ok {
			order = append(order, col+" "+direction)
			continue
		}
		if col, ok := warehouseMetrics[key]; ok {
			order = append(order, fmt.Sprintf("SUM(%s) %s", col, direction))
			continue
		}
		return nil, fmt.Errorf("unsupported sort key: %s", key)
	}
	return order, nil
}

// parseFilters reads dimension filters in reporting API syntax: ";" joins
// clauses with AND, "," joins them with OR. Supported operators are ==, !=,
// =@ (contains) and !@ (does not contain).
func parseFilters(filters string) (string, []any, error) {
	filters = strings.TrimSpace(filters)
	if filters == "" {
		return "", nil, nil
	}

	var ands []string
	var args []any
	for _, group := range strings.Split(filters, ";") {
		var ors []string
		for _, clause := range strings.Split(group, ",") {
			sql, arg, err := parseFilterClause(strings.TrimSpace(clause))
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, sql)
			args = append(args, arg)
		}
		ands = append(ands, "("+strings.Join(ors, " OR ")+")")
	}
	return strings.Join(ands, " AND "), args, nil
}

// likeEscaper makes LIKE treat wildcards in filter values literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func parseFilterClause(clause string) (string, any, error) {
	operators := []struct {
		token string
		sql   string
		like  bool
	}{
		{"==", "=", false},
		{"!=", "<>", false},
		{"=@", "LIKE", true},
		{"!@", "NOT LIKE", true},
	}
	for _, op := range operators {
		idx := strings.Index(clause, op.token)
		if idx <= 0 {
			continue
		}
		name, value := clause[:idx], clause[idx+len(op.token):]
		col, ok := warehouseDimensions[name]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter dimension: %s", name)
		}
		if op.like {
			return fmt.Sprintf("%s %s ? ESCAPE '\\'", col, op.sql), "%" + likeEscaper.Replace(value) + "%", nil
		}
		return fmt.Sprintf("%s %s ?", col, op.sql), value, nil
	}
	return "", nil, fmt.Errorf("invalid filter: %q", clause)
}
