// Package rest implements the batched REST client for the broker's data API.
//
// The client:
//   - Fetches latest quotes (batched, or sequential for providers without a
//     batch endpoint), historical bars, and session snapshots
//   - Passes every request through the shared rate limiter before sending
//   - Retries transient failures (network, 5xx, 429) with exponential
//     backoff and jitter; credential errors (401/403) surface immediately
//   - Distinguishes "no data for range" (nil result) from an empty range
package rest
