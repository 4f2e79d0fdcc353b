// Package rate provides the Redis-backed failed-login counter behind the
// engine's counting rate limiter.
//
// # Window semantics
//
// Fixed-window counters: a single INCR per recorded failure, with the window
// expiry set on first failure and refreshed on each subsequent one, so the
// lockout holds for a full window after the most recent failure. Counters key
// on the presented identifier string, not a resolved user id, so enumeration
// attempts against nonexistent accounts are throttled the same way.
//
// # What this package must NOT do
//
//   - Decide lockout policy (max attempts, window length) — that is
//     configuration owned by the root package.
//   - Be imported outside this module.
package rate
