package indicator

import (
	"time"

	"github.com/quotelab/watchfeed/internal/model"
)

// UpdateADR computes and caches the ADR% for a symbol from its daily bars:
// the mean of (high−low)/close over the last ADRDays days, as a percent.
// Computed once from daily history and held constant intraday.
func (e *Engine) UpdateADR(symbol string, daily []model.Bar) {
	if len(daily) > e.cfg.ADRDays {
		daily = daily[len(daily)-e.cfg.ADRDays:]
	}

	var total float64
	n := 0
	for _, b := range daily {
		if b.Close == 0 {
			continue
		}
		total += (b.High - b.Low) / b.Close * 100
		n++
	}
	if n == 0 {
		return
	}

	e.mu.Lock()
	e.adr[symbol] = total / float64(n)
	e.mu.Unlock()

	e.logger.Debug("adr updated", "symbol", symbol, "adr_pct", total/float64(n), "days", n)
}

// ADR returns the cached ADR% for a symbol.
func (e *Engine) ADR(symbol string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.adr[symbol]
	return v, ok
}

// OnBar records a completed candle close for one timeframe and, for
// non-benchmark symbols, refreshes that timeframe's VRS value. Benchmark
// bars only feed the shared history.
func (e *Engine) OnBar(tf Timeframe, bar model.Bar) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history(bar.Symbol, tf).push(bar.Close)

	if bar.Symbol == e.cfg.Benchmark {
		return
	}
	e.refreshVRSLocked(tf, bar.Symbol, bar.Timestamp)
}

// VRS returns the latest per-timeframe relative-strength values for a
// symbol. Fields update independently as each timeframe's candles close.
func (e *Engine) VRS(symbol string) model.VRSResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vrs[symbol]
}

// refreshVRSLocked recomputes one timeframe's VRS for a symbol:
//
//	vrs = stockReturn/stockADR% − benchReturn/benchADR%
//
// using the latest two closes of the timeframe's series for both symbols.
// Skipped (previous value retained) when either return or either ADR% is
// unavailable.
func (e *Engine) refreshVRSLocked(tf Timeframe, symbol string, ts int64) {
	stockADR, ok1 := e.adr[symbol]
	benchADR, ok2 := e.adr[e.cfg.Benchmark]
	if !ok1 || !ok2 || stockADR == 0 || benchADR == 0 {
		return
	}

	stockRet, ok := lastReturn(e.closes[symbol][tf])
	if !ok {
		return
	}
	benchRet, ok := lastReturn(e.closes[e.cfg.Benchmark][tf])
	if !ok {
		return
	}

	vrs := stockRet/stockADR - benchRet/benchADR

	result := e.vrs[symbol]
	switch tf {
	case TF1m:
		result.VRS1m = &vrs
	case TF5m:
		result.VRS5m = &vrs
	case TF15m:
		result.VRS15m = &vrs
	default:
		return
	}
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	result.Timestamp = ts
	e.vrs[symbol] = result
}

// lastReturn computes the percent return between the latest two closes.
func lastReturn(h *closeHistory) (float64, bool) {
	if h == nil {
		return 0, false
	}
	prev, last, ok := h.lastTwo()
	if !ok || prev == 0 {
		return 0, false
	}
	return (last - prev) / prev * 100, true
}
