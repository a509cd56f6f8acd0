package clinicauth

import "errors"

var (
	// ErrEngineNotReady is returned when Engine methods are invoked before Build.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials covers unknown identifiers and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when the account is locked and the lock window has not passed.
	ErrAccountLocked = errors.New("account locked")
	// ErrUserNotFound is returned when a user id or identifier resolves to nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrOTPInvalid is returned when a live code exists but does not match.
	ErrOTPInvalid = errors.New("invalid otp code")
	// ErrOTPExpired is returned when the code existed but its TTL has passed.
	ErrOTPExpired = errors.New("otp code expired")
	// ErrOTPNotFound is returned when no code was ever issued for the identifier and purpose.
	ErrOTPNotFound = errors.New("otp code not found")
	// ErrOTPRateLimited is returned when OTP sends for an identifier are throttled.
	ErrOTPRateLimited = errors.New("otp send rate limited")
	// ErrTokenInvalid is returned on signature or claim failures.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned for blacklisted sessions and rotated-away refresh tokens.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrSessionNotFound is returned when no session record exists for the caller.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionConflict is returned when session creation races another login and loses.
	ErrSessionConflict = errors.New("session conflict")
	// ErrPasswordPolicy is returned when a new password fails the policy check.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrPasswordResetNotAllowed is returned when the account's roles are outside the reset allowlist.
	ErrPasswordResetNotAllowed = errors.New("password reset not allowed for this account")
	// ErrMobileBindingDisabled is returned when app-instance binding is requested but disabled.
	ErrMobileBindingDisabled = errors.New("mobile app binding disabled")
	// ErrDeliveryFailed reports a notifier failure. It is logged, never propagated.
	ErrDeliveryFailed = errors.New("otp delivery failed")
	// ErrStoreUnavailable wraps Redis transport failures from any backing store.
	ErrStoreUnavailable = errors.New("session backend unavailable")
)
