// Package indicator derives the three watchlist-ranking indicators from
// normalized candles:
//
//   - RVol: today's cumulative volume vs the historical average at the
//     same time of day.
//   - ORB: tier classification (0/1/2) of the session's first 5-minute
//     candle by shape and volume.
//   - VRS: ADR%-normalized excess return vs a benchmark symbol, tracked
//     independently per 1m/5m/15m timeframe.
//
// Results carry explicit nil-plus-reason semantics so consumers can render
// "no data" distinctly from zero.
package indicator
