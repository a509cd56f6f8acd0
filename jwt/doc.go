// Package jwt is the token engine: HS256-signed access and refresh tokens
// with separate secrets and TTLs. Refresh tokens always carry a fresh random
// jti so individual tokens can be revoked without touching the signing
// secret.
//
// # Architecture boundaries
//
// This package signs, verifies, and decodes. It knows nothing about Redis,
// sessions, or revocation; the engine owns those decisions and only asks
// this package whether a token is authentic and what it claims.
package jwt
