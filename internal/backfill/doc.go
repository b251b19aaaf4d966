// Package backfill hydrates the candle store with the minute-bar history
// behind the indicator baselines, fetching symbols concurrently and
// deduplicating concurrent requests for the same symbol.
package backfill
