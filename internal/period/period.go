package period

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the canonical string form of a billing period.
const Layout = "2006-01"

// ErrInvalidPeriod indicates a string that does not parse as YYYY-MM.
var ErrInvalidPeriod = errors.New("period: invalid format, want YYYY-MM")

// Period identifies one calendar month. The zero value is not a valid period.
type Period struct {
	Year  int
	Month time.Month
}

// Parse converts a YYYY-MM string into a Period.
func Parse(s string) (Period, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Of returns the period containing the given instant, in UTC.
func Of(t time.Time) Period {
	u := t.UTC()
	return Period{Year: u.Year(), Month: u.Month()}
}

// String renders the canonical YYYY-MM form.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether p is the zero value.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// AddMonths returns the period n months after p. Negative n walks backwards.
func (p Period) AddMonths(n int) Period {
	t := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

// Before reports whether p precedes other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period at midnight UTC. Journal entries
// emitted for a period carry this date so they land inside the period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Contains reports whether the instant falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return Of(t) == p
}
