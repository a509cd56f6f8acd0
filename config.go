package clinicauth

import (
	"errors"
	"time"
)

// Config defines a public type used by clinicauth APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	OTP           OTPConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	MobileApp     MobileAppConfig
	Audit         AuditConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token-engine settings. Access and refresh tokens are
// signed with distinct secrets so a leaked access secret cannot forge
// refresh tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session cache and the session-count policy.
type SessionConfig struct {
	RedisPrefix string
	// MultiSession keeps one cache entry per (user, session). When false a
	// second login evicts and blacklists the user's existing session.
	MultiSession bool
	// ElevatedRoles skip the organization-membership lookup during session
	// creation; their tokens carry no membership claims.
	ElevatedRoles []string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code generation, expiry, and send throttling.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
	// RetentionWindow keeps consumed-TTL records readable after expiry so
	// verification can answer "expired" rather than "not found".
	RetentionWindow time.Duration
	ResendCooldown  time.Duration
	MaxSendsPerHour int
	DefaultChannel  string
	// FixedCodes maps allowlisted identifiers to a constant code that always
	// verifies and is never persisted or delivered. Intended for app-store
	// review and demo accounts only; leave empty in production.
	FixedCodes map[string]string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordResetConfig restricts the forgot/reset channel to an allowlist of
// privileged role ids. An empty allowlist disables the channel entirely.
type PasswordResetConfig struct {
	AllowedRoleIDs []string
	OTPTTL         time.Duration
}

/*
====================================
MOBILE APP CONFIG
====================================
*/

// MobileAppConfig toggles app-instance binding at OTP login.
type MobileAppConfig struct {
	Enabled bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Issuer:     "clinicauth",
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:  "ca",
			MultiSession: false,
		},
		OTP: OTPConfig{
			Digits:          6,
			TTL:             5 * time.Minute,
			RetentionWindow: 30 * time.Minute,
			ResendCooldown:  30 * time.Second,
			MaxSendsPerHour: 5,
			DefaultChannel:  "sms",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordReset: PasswordResetConfig{
			OTPTTL: 10 * time.Minute,
		},
		MobileApp: MobileAppConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return errors.New("invalid TTL configuration")
	}
	if cfg.JWT.RefreshTTL <= cfg.JWT.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if len(cfg.JWT.AccessSecret) == 0 || len(cfg.JWT.RefreshSecret) == 0 {
		return errors.New("access and refresh secrets are required")
	}
	if string(cfg.JWT.AccessSecret) == string(cfg.JWT.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if cfg.OTP.Digits < 4 || cfg.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if cfg.OTP.TTL <= 0 {
		return errors.New("otp TTL must be positive")
	}
	if cfg.OTP.RetentionWindow < 0 {
		return errors.New("otp retention window must not be negative")
	}
	for identifier, code := range cfg.OTP.FixedCodes {
		if identifier == "" || code == "" {
			return errors.New("fixed otp entries must have identifier and code")
		}
	}
	if cfg.Session.RedisPrefix == "" {
		return errors.New("session redis prefix is required")
	}
	if cfg.PasswordReset.OTPTTL <= 0 {
		return errors.New("password reset otp TTL must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = append([]byte(nil), cfg.JWT.AccessSecret...)
	out.JWT.RefreshSecret = append([]byte(nil), cfg.JWT.RefreshSecret...)
	out.Session.ElevatedRoles = append([]string(nil), cfg.Session.ElevatedRoles...)
	out.PasswordReset.AllowedRoleIDs = append([]string(nil), cfg.PasswordReset.AllowedRoleIDs...)
	if cfg.OTP.FixedCodes != nil {
		out.OTP.FixedCodes = make(map[string]string, len(cfg.OTP.FixedCodes))
		for k, v := range cfg.OTP.FixedCodes {
			out.OTP.FixedCodes[k] = v
		}
	}
	return out
}
