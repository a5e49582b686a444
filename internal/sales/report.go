package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive creation-time window. Nil bounds are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.Start != nil && t.Before(*r.Start) {
		return false
	}
	if r.End != nil && t.After(*r.End) {
		return false
	}
	return true
}

func (r DateRange) cacheToken() string {
	token := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	return token(r.Start) + ".." + token(r.End)
}

// ParseDateRange parses optional bounds given as YYYY-MM-DD (UTC) or RFC3339.
// The end bound is extended to the last instant of its calendar day.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	if s := strings.TrimSpace(start); s != "" {
		t, err := parseBound(s)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: invalid start date %q", shared.ErrValidation, s)
		}
		r.Start = &t
	}
	if s := strings.TrimSpace(end); s != "" {
		t, err := parseBound(s)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: invalid end date %q", shared.ErrValidation, s)
		}
		eod := endOfDay(t)
		r.End = &eod
	}
	if r.Start != nil && r.End != nil && r.Start.After(*r.End) {
		return DateRange{}, fmt.Errorf("%w: start date is after end date", shared.ErrValidation)
	}
	return r, nil
}

func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Aggregate reduces sales to revenue, profit and count.
func Aggregate(sales []Sale) Report {
	rep := Report{TotalRevenue: decimal.Zero, TotalProfit: decimal.Zero}
	for _, s := range sales {
		rep.TotalRevenue = rep.TotalRevenue.Add(s.Total)
		rep.TotalProfit = rep.TotalProfit.Add(s.Profit)
		rep.SalesCount++
	}
	return rep
}
