// Package limiters contains Redis-backed throttles. Fixed windows and
// cooldowns only; counters live in Redis so limits hold across engine
// instances.
package limiters
