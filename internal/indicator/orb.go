package indicator

import (
	"context"
	"fmt"

	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/model"
)

// Opening range length in minutes.
const orbRangeMinutes = 5

// ORB classifies the session's first 5-minute candle into breakout tiers.
//
// A non-zero tier requires all five conditions for one bias:
//   - open inside the extreme of the range (≤ORBOpenPct for bullish,
//     ≥1−ORBOpenPct for bearish)
//   - close at the opposite extreme (≥ORBClosePct bullish, ≤1−ORBClosePct
//     bearish)
//   - body-to-range ratio ≥ ORBBodyRatio
//   - candle direction matching the bias
//   - volume vs the historical first-5-minute average: ≥ORBTier2Volume →
//     tier 2, ≥ORBTier1Volume → tier 1
//
// The two biases cannot both fire: the open/close position tests are
// mutually exclusive.
func (e *Engine) ORB(ctx context.Context, symbol string, c model.Bar) model.ORBResult {
	result := model.ORBResult{Candle: c}

	rng := c.High - c.Low
	if rng <= 0 {
		result.Err = "degenerate candle range"
		return result
	}

	result.OpenPct = (c.Open - c.Low) / rng
	result.ClosePct = (c.Close - c.Low) / rng
	result.BodyRatio = abs(c.Close-c.Open) / rng
	result.IsGreen = c.Close > c.Open

	days, err := e.store.GetRecentDays(ctx, symbol, e.cfg.LookbackDays)
	if err != nil {
		result.Err = fmt.Sprintf("load history: %v", err)
		return result
	}

	var total float64
	sampled := 0
	for _, day := range days {
		v := openingRangeVolume(day.Bars)
		if v == 0 {
			continue
		}
		total += float64(v)
		sampled++
	}

	if sampled < e.cfg.MinSampleDays {
		result.Err = fmt.Sprintf("insufficient history: %d days, need %d", sampled, e.cfg.MinSampleDays)
		return result
	}
	result.HistoricalAvgVolume = total / float64(sampled)

	bullish := result.OpenPct <= e.cfg.ORBOpenPct &&
		result.ClosePct >= e.cfg.ORBClosePct &&
		result.BodyRatio >= e.cfg.ORBBodyRatio &&
		result.IsGreen

	bearish := result.OpenPct >= 1-e.cfg.ORBOpenPct &&
		result.ClosePct <= 1-e.cfg.ORBClosePct &&
		result.BodyRatio >= e.cfg.ORBBodyRatio &&
		!result.IsGreen && c.Close != c.Open

	tier := 0
	if bullish || bearish {
		mult := float64(c.Volume) / result.HistoricalAvgVolume
		switch {
		case mult >= e.cfg.ORBTier2Volume:
			tier = 2
		case mult >= e.cfg.ORBTier1Volume:
			tier = 1
		}
	}
	result.Tier = &tier
	return result
}

// openingRangeVolume sums volume over the first orbRangeMinutes of a day.
func openingRangeVolume(bars []model.Bar) int64 {
	var sum int64
	for _, b := range bars {
		off := calendar.MinutesSinceOpen(b.Time())
		if off < 0 || off >= orbRangeMinutes {
			continue
		}
		sum += b.Volume
	}
	return sum
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
