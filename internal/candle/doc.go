// Package candle is the day-bucketed bar cache behind the indicator
// baselines. Two implementations: MemoryStore for cache-less runs and
// tests, PGStore for durable baselines across restarts.
package candle
