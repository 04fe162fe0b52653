package timeframe

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var daysAgoPattern = regexp.MustCompile(`^(\d+)daysAgo$`)

// ErrInvalidPeriod is returned for expressions the resolver cannot read
var ErrInvalidPeriod = errors.New("invalid period")

type Resolver struct {
	timeProvider TimeProvider
	loc          *time.Location
}

// NewResolver creates a resolver anchored on the given location. A nil
// location means UTC.
func NewResolver(loc *time.Location, timeProvider ...TimeProvider) *Resolver {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Resolver{
		timeProvider: provider,
		loc:          loc,
	}
}

// ResolveDate turns one period expression into the start of that calendar day
func (r *Resolver) ResolveDate(expr string) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	now := r.timeProvider.Now(r.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)

	switch {
	case expr == "":
		return time.Time{}, fmt.Errorf("%w: empty date", ErrInvalidPeriod)
	case expr == Today:
		return today, nil
	case expr == Yesterday:
		return today.AddDate(0, 0, -1), nil
	}

	if m := daysAgoPattern.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, expr)
		}
		return today.AddDate(0, 0, -n), nil
	}

	date, err := time.ParseInLocation(DateLayout, expr, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, expr)
	}
	return date, nil
}

// Resolve turns a period into a concrete window
func (r *Resolver) Resolve(p Period) (Window, error) {
	from, err := r.ResolveDate(p.Start)
	if err != nil {
		return Window{}, fmt.Errorf("invalid start date: %w", err)
	}
	to, err := r.ResolveDate(p.End)
	if err != nil {
		return Window{}, fmt.Errorf("invalid end date: %w", err)
	}
	if from.After(to) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidPeriod, p.Start, p.End)
	}
	return Window{From: from, To: to}, nil
}

// Validate resolves both periods and reports the gap in days between the end of
// the previous window and the start of the current one. Zero means the windows
// touch; a negative value means they overlap by that many days.
func (r *Resolver) Validate(p Periods) (gapDays int, err error) {
	current, err := r.Resolve(p.Current)
	if err != nil {
		return 0, fmt.Errorf("current period: %w", err)
	}
	previous, err := r.Resolve(p.Previous)
	if err != nil {
		return 0, fmt.Errorf("previous period: %w", err)
	}
	return daysBetween(previous.To, current.From), nil
}
