// Package clinicauth provides the authentication and session lifecycle engine
// for a multi-tenant clinic-management platform: credential and OTP login,
// JWT access/refresh token issuance with rotation and replay detection,
// single-vs-multi-device session enforcement, token revocation, and mobile
// app-instance binding.
//
// The package is designed for concurrent, multi-instance server workloads:
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build], and all cross-request coordination
// happens through TTL'd conditional writes in Redis; no in-process lock is
// ever held across I/O.
//
// # Architecture boundaries
//
// clinicauth is the public surface. It exposes [Engine], [Builder], [Config],
// the provider interfaces ([CredentialStore], [Notifier],
// [MembershipProvider], [SessionEndRecorder]), and value types. Store
// implementations and throttles live under internal/ and are never exported.
// The durable user store is owned by the host application and reached only
// through [CredentialStore].
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or cache key layouts in its
//     public API.
//   - Deliver OTP codes itself. Delivery is the [Notifier]'s problem, and a
//     delivery failure never fails the flow that requested it.
//   - Hold business-entity state (patients, visits, clinics); only identity,
//     session, and token state pass through here.
package clinicauth
