// Package ratelimit implements sliding-window admission control for
// outbound REST calls.
//
// The upstream data API enforces a calls-per-minute quota. Every REST
// request passes through Limiter.Admit before being sent, so callers never
// need their own quota bookkeeping. The invariant: no sliding window of the
// configured length ever contains more than MaxCalls admissions.
package ratelimit
