// Package model defines the shared data types for the feed pipeline.
//
// Two categories:
//   - Event types (Tick, QuoteSnapshot, Bar): immutable, produced by the
//     transports and normalized before anything downstream sees them.
//   - Derived types (PriceState, indicator results): produced by the merger
//     and indicator engine for consumption by the presentation layer.
//
// All timestamps are int64 milliseconds since the Unix epoch.
package model
