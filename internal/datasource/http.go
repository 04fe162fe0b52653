package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	defaultPageSize = 10000
	maxPages        = 100
)

// HTTPConfig configures the reporting API client
type HTTPConfig struct {
	Endpoint          string
	Token             string
	ViewID            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	PageSize          int
	MaxPages          int
	Breaker           BreakerConfig
}

// HTTPSource queries a Core Reporting API v3 compatible endpoint. Requests are
// rate limited and guarded by a circuit breaker; pages are followed until the
// response has no next link.
type HTTPSource struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*apiResponse]
	logger  *slog.Logger
}

type columnHeader struct {
	Name       string `json:"name"`
	ColumnType string `json:"columnType,omitempty"`
	DataType   string `json:"dataType,omitempty"`
}

type apiResponse struct {
	ColumnHeaders []columnHeader `json:"columnHeaders"`
	Rows          [][]any        `json:"rows"`
	TotalResults  int            `json:"totalResults"`
	NextLink      string         `json:"nextLink,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewHTTPSource(cfg HTTPConfig, logger *slog.Logger) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = maxPages
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "reporting-api"
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: newBreaker[*apiResponse](cfg.Breaker, logger),
		logger:  logger,
	}
}

// Query fetches every page of the report
func (s *HTTPSource) Query(ctx context.Context, q Query) (*Result, error) {
	result := &Result{}
	startIndex := 1

	for page := 0; ; page++ {
		resp, err := s.fetchPage(ctx, q, startIndex)
		if err != nil {
			return nil, err
		}

		if page == 0 {
			for _, h := range resp.ColumnHeaders {
				result.Columns = append(result.Columns, h.Name)
			}
		}
		result.Rows = append(result.Rows, resp.Rows...)

		if resp.NextLink == "" || len(resp.Rows) == 0 {
			break
		}
		if page+1 >= s.cfg.MaxPages {
			s.logger.Warn("Report exceeds page limit",
				slog.Any("dimensions", q.Dimensions),
				slog.Int("pages", s.cfg.MaxPages),
				slog.Int("rows", len(result.Rows)),
				slog.Int("total_results", resp.TotalResults))
			return nil, fmt.Errorf("%w: more than %d pages of %d rows", ErrTruncated, s.cfg.MaxPages, s.cfg.PageSize)
		}
		startIndex += len(resp.Rows)
	}

	s.logger.Debug("Fetched report",
		slog.Any("dimensions", q.Dimensions),
		slog.Int("rows", len(result.Rows)))

	return result, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, q Query, startIndex int) (*apiResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := s.breaker.Execute(func() (*apiResponse, error) {
		return s.do(ctx, q, startIndex)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.Warn("Reporting API call rejected by circuit breaker", slog.Any("error", err))
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

func (s *HTTPSource) do(ctx context.Context, q Query, startIndex int) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.requestURL(q, startIndex), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if res.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, res.StatusCode, msg)
		}
		return nil, fmt.Errorf("query rejected with status %d: %s", res.StatusCode, msg)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var out apiResponse
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (s *HTTPSource) requestURL(q Query, startIndex int) string {
	params := url.Values{}
	if s.cfg.ViewID != "" {
		params.Set("ids", "ga:"+strings.TrimPrefix(s.cfg.ViewID, "ga:"))
	}
	params.Set("start-date", q.Start)
	params.Set("end-date", q.End)
	params.Set("metrics", strings.Join(q.Metrics, ","))
	if len(q.Dimensions) > 0 {
		params.Set("dimensions", strings.Join(q.Dimensions, ","))
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Filters != "" {
		params.Set("filters", q.Filters)
	}
	params.Set("start-index", strconv.Itoa(startIndex))
	params.Set("max-results", strconv.Itoa(s.cfg.PageSize))

	sep := "?"
	if strings.Contains(s.cfg.Endpoint, "?") {
		sep = "&"
	}
	return s.cfg.Endpoint + sep + params.Encode()
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
