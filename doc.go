// Package identity provides user identity primitives (account registration,
// JWT issuance and refresh, role/permission storage) plus an access-control
// gate for HTTP handlers.
//
// Accounts:
//   - Users carry unique username and email columns plus an is_active flag.
//     Login rejects inactive accounts before credentials are even checked,
//     and failed lookups are indistinguishable from wrong passwords so the
//     response never leaks which accounts exist.
//   - Profile updates are guarded by a version counter. A stale write
//     surfaces ErrConcurrentModification instead of silently clobbering a
//     concurrent change.
//
// Tokens:
//   - TokenService signs HS256 session tokens and parses them in two modes:
//     strict (Validate, Parse) and lenient (CanRefresh, Refresh). A token
//     whose signature verifies may be refreshed for a grace period after
//     expiry; a malformed or forged token is never refreshable.
//
// Roles and permissions:
//   - Associations links users to roles and roles to permissions through
//     composite-key join tables. Resolver answers "which roles do these N
//     users hold" with one query and "what can this user do" with at most
//     two, so bulk listings never fan out per row.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther to
//     describe registration, login, and refresh outcomes. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package identity
