package timeframe

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar date format used by every period expression
const DateLayout = "2006-01-02"

// Relative expressions understood by the resolver
const (
	Today     = "today"
	Yesterday = "yesterday"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider reads the system clock
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Period is a named date range whose ends are either ISO dates or relative
// expressions ("NdaysAgo", "today", "yesterday").
type Period struct {
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
}

func (p Period) String() string {
	return p.Start + ".." + p.End
}

// Periods holds the two windows compared by every report
type Periods struct {
	Current  Period `json:"current" mapstructure:"current"`
	Previous Period `json:"previous" mapstructure:"previous"`
}

// DefaultPeriods compares the last 30 full days with the 30 days before them
func DefaultPeriods() Periods {
	return Periods{
		Current:  Period{Start: "31daysAgo", End: Yesterday},
		Previous: Period{Start: "61daysAgo", End: "31daysAgo"},
	}
}

// Window is a resolved period: two calendar days, both inclusive
type Window struct {
	From time.Time
	To   time.Time
}

// Days returns the number of calendar days covered by the window
func (w Window) Days() int {
	return daysBetween(w.From, w.To) + 1
}

// StartDate returns From as an ISO date
func (w Window) StartDate() string {
	return w.From.Format(DateLayout)
}

// EndDate returns To as an ISO date
func (w Window) EndDate() string {
	return w.To.Format(DateLayout)
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.StartDate(), w.EndDate())
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}
