package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"time"

	"nerdvision/internal/datasource"
	"nerdvision/internal/timeframe"
)

// Loader stores generated rows; *datasource.Warehouse satisfies it
type Loader interface {
	Load(ctx context.Context, stats []datasource.TrafficStat) error
}

// Seeder fills the warehouse with synthetic traffic so the reports have
// something to compare. Days before the midpoint form the baseline, days after
// it carry each page's trend multiplier.
type Seeder struct {
	Loader   Loader
	Logger   *slog.Logger
	Days     int
	Hostname string
	Location *time.Location
	rng      *rand.Rand
	now      func() time.Time
}

// NewSeeder creates a seeder. A zero seed picks a random one.
func NewSeeder(loader Loader, logger *slog.Logger, days int, seed uint64) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Seeder{
		Loader:   loader,
		Logger:   logger,
		Days:     days,
		Hostname: "www.example.com",
		Location: time.UTC,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:      time.Now,
	}
}

type page struct {
	path string
	// base daily page views
	views int
	// share of sessions that bounce, in percent
	bounceRate int
	// multiplier applied to the recent half of the window
	trend float64
}

type trafficSource struct {
	source, medium, social, network string
	weight                          int
	goalRate                        float64
}

var pages = []page{
	{"/", 420, 45, 1.0},
	{"/pricing", 180, 35, 1.4},
	{"/features", 150, 50, 1.0},
	{"/signup", 90, 20, 1.1},
	{"/blog", 110, 70, 0.6},
	{"/blog/article-1", 140, 82, 2.1},
	{"/blog/article-2", 60, 85, 0.5},
	{"/docs", 100, 40, 1.0},
	{"/docs/getting-started", 80, 30, 1.3},
	{"/about", 40, 60, 0.9},
	{"/contact", 25, 55, 1.0},
}

var sources = []trafficSource{
	{"(direct)", "(none)", "No", "(not set)", 30, 0.04},
	{"google", "organic", "No", "(not set)", 35, 0.05},
	{"bing", "organic", "No", "(not set)", 5, 0.05},
	{"google", "cpc", "No", "(not set)", 8, 0.09},
	{"facebook.com", "referral", "Yes", "Facebook", 6, 0.02},
	{"t.co", "referral", "Yes", "Twitter", 4, 0.02},
	{"news.ycombinator.com", "referral", "No", "(not set)", 5, 0.03},
	{"newsletter", "email", "No", "(not set)", 4, 0.12},
	{"github.com", "referral", "No", "(not set)", 3, 0.03},
}

// Run generates and loads one row per day, page and source
func (s *Seeder) Run(ctx context.Context) error {
	if s.Days <= 0 {
		return fmt.Errorf("days must be positive, got %d", s.Days)
	}

	start := time.Now()
	s.Logger.Info("Starting warehouse seeding...", slog.Int("days", s.Days), slog.String("hostname", s.Hostname))

	stats := s.Generate()
	if err := s.Loader.Load(ctx, stats); err != nil {
		return fmt.Errorf("failed to load seeded traffic: %w", err)
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("rows", len(stats)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Generate builds the rows without storing them
func (s *Seeder) Generate() []datasource.TrafficStat {
	today := s.now().In(s.Location)
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.Location)

	totalWeight := 0
	for _, src := range sources {
		totalWeight += src.weight
	}

	var stats []datasource.TrafficStat
	for offset := s.Days; offset >= 1; offset-- {
		day := today.AddDate(0, 0, -offset)
		recent := offset <= s.Days/2
		for _, p := range pages {
			views := p.views
			if recent {
				views = int(float64(views) * p.trend)
			}
			for _, src := range sources {
				stats = append(stats, s.row(day, p, src, views*src.weight/totalWeight))
			}
		}
	}
	return stats
}

func (s *Seeder) row(day time.Time, p page, src trafficSource, views int) datasource.TrafficStat {
	views = s.jitter(views)
	sessions := views * 2 / 3
	if sessions == 0 && views > 0 {
		sessions = 1
	}
	bounces := s.jitter(sessions * p.bounceRate / 100)
	if bounces > sessions {
		bounces = sessions
	}
	goals := int(float64(sessions) * src.goalRate)

	return datasource.TrafficStat{
		Day:               day.Format(timeframe.DateLayout),
		Hostname:          s.Hostname,
		PagePath:          s.decorate(p.path),
		Source:            src.source,
		Medium:            src.medium,
		HasSocialReferral: src.social,
		SocialNetwork:     src.network,
		Pageviews:         int64(views),
		Sessions:          int64(sessions),
		Bounces:           int64(bounces),
		GoalCompletions:   int64(goals),
		Users:             int64(sessions * 4 / 5),
		Events:            int64(views + goals),
	}
}

// jitter moves n by up to 15% either way
func (s *Seeder) jitter(n int) int {
	if n <= 0 {
		return 0
	}
	spread := n * 15 / 100
	if spread == 0 {
		return n
	}
	return n - spread + s.rng.IntN(2*spread+1)
}

// decorate adds tracking parameters to some paths so the path cleaners
// have something to fold
func (s *Seeder) decorate(path string) string {
	if s.rng.IntN(10) < 8 {
		return path
	}

	params := url.Values{}
	utms := []struct {
		key    string
		values []string
	}{
		{"utm_source", []string{"google", "facebook", "newsletter", "twitter"}},
		{"utm_medium", []string{"cpc", "social", "email"}},
		{"utm_campaign", []string{"spring_sale", "launch", "weekly"}},
	}
	for _, utm := range utms {
		params.Set(utm.key, utm.values[s.rng.IntN(len(utm.values))])
	}
	// Encode sorts keys, so the contact key always leads the query
	if s.rng.IntN(2) == 0 {
		params.Set("inf_contact_key", fmt.Sprintf("%016x", s.rng.Uint64()))
	}
	return path + "?" + params.Encode()
}
