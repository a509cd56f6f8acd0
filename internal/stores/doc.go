// Package stores contains the Redis-backed stores the engine coordinates
// through: one-time codes, the refresh-token chain, and mobile app
// instances. Each store owns its key layout and wraps transport failures in
// its own unavailable sentinel; callers translate those to public errors.
package stores
