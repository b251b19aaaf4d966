package calendar

import (
	"sync"
	"time"
)

// Regular US equity session, exchange local time.
const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

var (
	locOnce sync.Once
	loc     *time.Location
)

// Location returns the exchange timezone. Falls back to a fixed EST offset
// if the zoneinfo database is unavailable; DST handling degrades but the
// process stays up.
func Location() *time.Location {
	locOnce.Do(func() {
		var err error
		loc, err = time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.FixedZone("EST", -5*60*60)
		}
	})
	return loc
}

// SessionOpen returns the regular session open (09:30 exchange local) for
// the trading date containing t.
func SessionOpen(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day(), openHour, openMinute, 0, 0, Location())
}

// SessionClose returns the regular session close (16:00 exchange local) for
// the trading date containing t.
func SessionClose(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day(), closeHour, closeMinute, 0, 0, Location())
}

// IsMarketHours reports whether t falls inside the regular session on a
// trading day. The close boundary is exclusive.
func IsMarketHours(cal Calendar, t time.Time) bool {
	if cal != nil && !cal.IsTradingDay(t) {
		return false
	}
	local := t.In(Location())
	return !local.Before(SessionOpen(t)) && local.Before(SessionClose(t))
}

// MinutesSinceOpen returns whole minutes elapsed since the session open.
// Negative before the open.
func MinutesSinceOpen(t time.Time) int {
	return int(t.In(Location()).Sub(SessionOpen(t)) / time.Minute)
}

// TradingDate returns the trading date of t as "2006-01-02" in exchange
// local time.
func TradingDate(t time.Time) string {
	return t.In(Location()).Format("2006-01-02")
}
