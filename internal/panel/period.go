package panel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period identifies a calendar month. The zero value is invalid; valid
// periods are produced by NewPeriod or ParsePeriod.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod builds a Period from a year and month.
func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// ParsePeriod parses a period in "YYYY-MM" form.
func ParsePeriod(s string) (Period, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("invalid period %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("invalid period year %q: %w", parts[0], err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("invalid period month %q: %w", parts[1], err)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("invalid period month %d: want 1-12", month)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// IsZero reports whether p is the zero Period.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Index returns the number of months since year 0, giving a total order
// on periods that supports distance arithmetic.
func (p Period) Index() int {
	return p.Year*12 + int(p.Month) - 1
}

// Add returns the period n months after p (n may be negative).
func (p Period) Add(n int) Period {
	idx := p.Index() + n
	year := idx / 12
	month := idx%12 + 1
	if month <= 0 {
		year--
		month += 12
	}
	return Period{Year: year, Month: time.Month(month)}
}

// Sub returns the signed distance in months from q to p.
func (p Period) Sub(q Period) int {
	return p.Index() - q.Index()
}

// Before reports whether p is earlier than q.
func (p Period) Before(q Period) bool {
	return p.Index() < q.Index()
}

// After reports whether p is later than q.
func (p Period) After(q Period) bool {
	return p.Index() > q.Index()
}

// Quarter returns the quarter label, e.g. "2024Q1".
func (p Period) Quarter() string {
	return fmt.Sprintf("%dQ%d", p.Year, (int(p.Month)-1)/3+1)
}

// String returns the period in "YYYY-MM" form.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// MarshalText implements encoding.TextMarshaler.
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PeriodRange returns every month from start to end inclusive.
func PeriodRange(start, end Period) []Period {
	if end.Before(start) {
		return nil
	}
	out := make([]Period, 0, end.Sub(start)+1)
	for p := start; !p.After(end); p = p.Add(1) {
		out = append(out, p)
	}
	return out
}
