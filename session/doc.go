// Package session is the Redis-backed session cache: live session records,
// the revocation blacklist, and the atomic single-session
// evict-and-create used when multi-session is disabled.
//
// Records are keyed per policy: one key per user under single-session, one
// key per (user, session) under multi-session with a per-user index set.
// Blacklist entries are TTL'd to the remaining lifetime of the token they
// invalidate and expire naturally; they are never deleted early.
package session
