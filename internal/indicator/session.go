package indicator

import (
	"sync"

	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/model"
)

// Session collects the current trading day's minute bars per symbol so the
// point-in-time indicators (RVol, ORB) can be evaluated on demand. The
// collection resets itself when a bar from a new trading date arrives.
type Session struct {
	mu   sync.Mutex
	date string
	bars map[string][]model.Bar
}

// NewSession creates an empty session collector.
func NewSession() *Session {
	return &Session{bars: make(map[string][]model.Bar)}
}

// Record ingests one completed 1-minute bar.
func (s *Session) Record(b model.Bar) {
	date := calendar.TradingDate(b.Time())

	s.mu.Lock()
	defer s.mu.Unlock()

	if date != s.date {
		s.date = date
		s.bars = make(map[string][]model.Bar)
	}
	s.bars[b.Symbol] = append(s.bars[b.Symbol], b)
}

// Bars returns a copy of today's minute bars for symbol, in arrival order.
func (s *Session) Bars(symbol string) []model.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()

	bars := s.bars[symbol]
	if len(bars) == 0 {
		return nil
	}
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	return out
}

// OpeningRange aggregates the symbol's bars inside the opening range into a
// single candle. ok is false until the range is complete, i.e. a bar at or
// past the range boundary has been seen.
func (s *Session) OpeningRange(symbol string) (model.Bar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var agg model.Bar
	var inRange, complete bool
	for _, b := range s.bars[symbol] {
		offset := calendar.MinutesSinceOpen(b.Time())
		if offset >= orbRangeMinutes {
			complete = true
			continue
		}
		if offset < 0 {
			continue
		}
		if !inRange {
			agg = b
			inRange = true
			continue
		}
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Close = b.Close
		agg.Volume += b.Volume
		agg.TradeCount += b.TradeCount
	}
	if !inRange || !complete {
		return model.Bar{}, false
	}
	return agg, true
}
