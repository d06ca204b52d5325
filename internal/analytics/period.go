// Package analytics turns a tenant's append-only sale stream into windowed
// summaries and raw exports.
package analytics

import (
	"errors"
	"fmt"
	"time"
)

const (
	PeriodToday = "today"
	Period7d    = "7d"
	Period30d   = "30d"
	// PeriodAll is accepted by export only and leaves the window unbounded.
	PeriodAll = "all"
)

const dayLayout = "2006-01-02"

var ErrInvalidPeriod = errors.New("invalid range: expected one of today, 7d, 30d")

// Window is the half-open interval [Start, End) a report covers. A zero Start
// means the window has no lower bound.
type Window struct {
	Period string
	Start  time.Time
	End    time.Time
	loc    *time.Location
}

func (w Window) Bounded() bool {
	return !w.Start.IsZero()
}

func (w Window) Contains(t time.Time) bool {
	if w.Bounded() && t.Before(w.Start) {
		return false
	}
	return t.Before(w.End)
}

// StartDay is the first local calendar date covered, or "" when unbounded.
func (w Window) StartDay() string {
	if !w.Bounded() {
		return ""
	}
	return w.Day(w.Start)
}

// EndDay is the local calendar date of End, the last day covered.
func (w Window) EndDay() string {
	return w.Day(w.End)
}

// Day labels t with its calendar date in the window's reporting offset.
func (w Window) Day(t time.Time) string {
	loc := w.loc
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dayLayout)
}

// Resolver maps period tokens to windows whose day boundaries fall on
// midnight in a fixed reporting offset, independent of the storage and
// server time zones.
type Resolver struct {
	loc *time.Location
}

func NewResolver(loc *time.Location) Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return Resolver{loc: loc}
}

func (r Resolver) Location() *time.Location {
	return r.loc
}

// Resolve returns [local midnight - (days-1), now) for today, 7d and 30d.
func (r Resolver) Resolve(period string, now time.Time) (Window, error) {
	var back int
	switch period {
	case PeriodToday:
		back = 0
	case Period7d:
		back = 6
	case Period30d:
		back = 29
	default:
		return Window{}, fmt.Errorf("%w: got %q", ErrInvalidPeriod, period)
	}

	local := now.In(r.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)

	return Window{
		Period: period,
		Start:  midnight.AddDate(0, 0, -back).UTC(),
		End:    now.UTC(),
		loc:    r.loc,
	}, nil
}

// ResolveExport also accepts PeriodAll, which yields (-inf, now).
func (r Resolver) ResolveExport(period string, now time.Time) (Window, error) {
	if period == PeriodAll {
		return Window{Period: PeriodAll, End: now.UTC(), loc: r.loc}, nil
	}
	return r.Resolve(period, now)
}
