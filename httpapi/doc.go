// Package httpapi is the HTTP boundary over the clinicauth engine. It owns
// request/response shapes and the mapping from the engine's typed errors to
// HTTP status codes; no authentication logic lives here.
package httpapi
