// Package stores provides the Redis-backed record stores owned by the auth
// engine: rotating persistent-session tokens, typed single-use user links,
// and the active-session registry behind "sign out everywhere".
//
// # Design
//
// Persistent-session consumption is a single Lua script so the
// match-then-delete step is atomic: two requests racing the same token can
// produce at most one winner, and the loser observes a miss. Series and token
// values are stored as HMAC-SHA256 digests under a dedicated key; the raw
// values never reach Redis. User links are windowed by both a Redis TTL and a
// created-at check in the record, with a per-user guard key enforcing the
// single-live-link invariant without a scan.
//
// # What this package must NOT do
//
//   - Make authentication decisions, touch cookies, or record audit events.
//   - Store plaintext secrets or reuse password-hashing parameters.
//   - Import the root auth package or the session package.
package stores
