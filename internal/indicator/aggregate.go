package indicator

import (
	"sync"

	"github.com/quotelab/watchfeed/internal/model"
)

// Aggregator rolls incoming 1-minute bars into the 5m/15m series the VRS
// calculator consumes. Minute bars feed the engine directly; a coarser
// bucket is emitted when the first bar of the next bucket arrives.
type Aggregator struct {
	engine *Engine

	mu      sync.Mutex
	buckets map[string]map[Timeframe]*model.Bar // symbol → timeframe → open bucket
}

var aggregateFrames = map[Timeframe]int64{
	TF5m:  5 * 60_000,
	TF15m: 15 * 60_000,
}

// NewAggregator creates an aggregator feeding the given engine.
func NewAggregator(engine *Engine) *Aggregator {
	return &Aggregator{
		engine:  engine,
		buckets: make(map[string]map[Timeframe]*model.Bar),
	}
}

// OnMinuteBar ingests one completed 1-minute bar.
func (a *Aggregator) OnMinuteBar(b model.Bar) {
	a.engine.OnBar(TF1m, b)

	a.mu.Lock()
	defer a.mu.Unlock()

	byTF := a.buckets[b.Symbol]
	if byTF == nil {
		byTF = make(map[Timeframe]*model.Bar)
		a.buckets[b.Symbol] = byTF
	}

	for tf, width := range aggregateFrames {
		start := b.Timestamp - b.Timestamp%width

		cur := byTF[tf]
		if cur == nil {
			bar := b
			bar.Timestamp = start
			byTF[tf] = &bar
			continue
		}

		if cur.Timestamp != start {
			// Bucket rolled over; the previous one is complete.
			a.engine.OnBar(tf, *cur)
			bar := b
			bar.Timestamp = start
			byTF[tf] = &bar
			continue
		}

		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
		cur.TradeCount += b.TradeCount
	}
}
