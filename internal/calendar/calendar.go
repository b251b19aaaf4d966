package calendar

import (
	"time"
)

// Calendar answers whether the exchange is open on a given date.
type Calendar interface {
	IsTradingDay(t time.Time) bool
}

// Weekdays is a Calendar that treats Monday–Friday as trading days, minus an
// optional holiday set. Good enough for US equities when the holiday list is
// kept current; exact half-day handling is out of scope.
type Weekdays struct {
	holidays map[string]struct{} // "2006-01-02" in exchange local time
}

// NewWeekdays builds a weekday calendar. Holiday dates use "2006-01-02"
// format; unparseable entries are ignored.
func NewWeekdays(holidays []string) *Weekdays {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		if _, err := time.Parse("2006-01-02", h); err == nil {
			set[h] = struct{}{}
		}
	}
	return &Weekdays{holidays: set}
}

// IsTradingDay reports whether t falls on a trading day in exchange local
// time.
func (c *Weekdays) IsTradingDay(t time.Time) bool {
	local := t.In(Location())
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if _, ok := c.holidays[local.Format("2006-01-02")]; ok {
		return false
	}
	return true
}
