package indicator

import (
	"context"
	"fmt"

	"github.com/quotelab/watchfeed/internal/calendar"
	"github.com/quotelab/watchfeed/internal/model"
)

// RVol computes relative volume: today's cumulative volume at the given
// minute offset divided by the historical average cumulative volume at the
// same offset. todayBars are today's minute bars so far.
//
// The ratio is refused (nil, with an explanation) below MinSampleDays of
// history, and when the historical average is zero — a zero denominator is
// ambiguous, not infinite relative volume.
func (e *Engine) RVol(ctx context.Context, symbol string, todayBars []model.Bar, minutesSinceOpen int) model.RVolResult {
	result := model.RVolResult{MinutesSinceOpen: minutesSinceOpen}

	if minutesSinceOpen < 0 {
		result.Err = "session not open"
		return result
	}

	days, err := e.store.GetRecentDays(ctx, symbol, e.cfg.LookbackDays)
	if err != nil {
		result.Err = fmt.Sprintf("load history: %v", err)
		return result
	}

	result.CurrentCumulative = cumulativeAtOffset(todayBars, minutesSinceOpen)

	var total float64
	sampled := 0
	for _, day := range days {
		if len(day.Bars) == 0 {
			continue
		}
		total += float64(cumulativeAtOffset(day.Bars, minutesSinceOpen))
		sampled++
	}
	result.SampleDays = sampled

	if sampled < e.cfg.MinSampleDays {
		result.Err = fmt.Sprintf("insufficient history: %d days, need %d", sampled, e.cfg.MinSampleDays)
		return result
	}

	result.AvgCumulative = total / float64(sampled)
	if result.AvgCumulative == 0 {
		result.Err = "historical average volume is zero"
		return result
	}

	rvol := float64(result.CurrentCumulative) / result.AvgCumulative
	result.RVol = &rvol
	return result
}

// cumulativeAtOffset sums bar volume from the session open through the
// given minute offset (inclusive of the bar starting at that offset).
func cumulativeAtOffset(bars []model.Bar, minutesSinceOpen int) int64 {
	var sum int64
	for _, b := range bars {
		if calendar.MinutesSinceOpen(b.Time()) > minutesSinceOpen {
			continue
		}
		sum += b.Volume
	}
	return sum
}
