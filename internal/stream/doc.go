// Package stream implements the push transport for real-time market data.
//
// Two layers:
//   - Transport: one persistent WebSocket connection carrying raw frames.
//     Abstracted behind an interface so tests (and non-socket runtimes)
//     can substitute their own implementation.
//   - Feed: the client state machine on top — auth handshake, per-symbol
//     callback registry with wildcard support, tagged-union frame
//     dispatch, debounced resubscription, reconnection with capped
//     exponential backoff, and a staleness watchdog that force-closes
//     zombie connections.
//
// Auth rejections are fatal and never retried; exhausting the reconnect
// cap leaves the feed in a terminal Failed state so the poll loop can take
// over at its fallback cadence.
package stream
