// Package session implements the session storage contract of the auth engine:
// ephemeral browser sessions with user-agent binding and fixation defenses,
// and rotating single-use "remember me" tokens with replay detection.
//
// # Design
//
// Storage is one contract with one implementation, [Store], so the
// rotation/replay-defense algorithm exists exactly once. The ephemeral layer
// rides on a collaborator-provided [SessionState]; the persistent layer and
// the active-session registry are Redis records owned by internal/stores. The
// remember-me cookie is an HS256-signed claim set, so the payload carries a
// keyed MAC end to end and malformed or mis-signed cookies decode to absent.
//
// # What this package must NOT do
//
//   - Resolve account rows beyond the narrow [UserResolver] lookup, apply
//     account-state gates, or record security events — those belong to the
//     Manager in the root package.
//   - Reuse password-hashing parameters for token matching.
package session
