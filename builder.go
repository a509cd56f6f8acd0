package clinicauth

import (
	"errors"
	"log"

	"github.com/clinicore/clinicauth/internal/limiters"
	"github.com/clinicore/clinicauth/internal/stores"
	"github.com/clinicore/clinicauth/jwt"
	"github.com/clinicore/clinicauth/password"
	"github.com/clinicore/clinicauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the first Engine method call.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials CredentialStore
	notifier    Notifier
	memberships MembershipProvider
	sessionEnds SessionEndRecorder
	auditSink   AuditSink
	warn        func(string, ...any)

	built bool
}

// New returns a [Builder] loaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is cloned; later
// mutation of cfg does not reach the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing every shared store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the host-supplied durable user store. Required.
func (b *Builder) WithCredentialStore(cs CredentialStore) *Builder {
	b.credentials = cs
	return b
}

// WithNotifier sets the OTP delivery collaborator.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithMembershipProvider sets the organization-membership resolver.
func (b *Builder) WithMembershipProvider(mp MembershipProvider) *Builder {
	b.memberships = mp
	return b
}

// WithSessionEndRecorder sets the session-duration audit collaborator.
func (b *Builder) WithSessionEndRecorder(r SessionEndRecorder) *Builder {
	b.sessionEnds = r
	return b
}

// WithAuditSink sets the audit sink fed by the async dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithWarnFunc overrides the warn logger used for best-effort failures.
// Defaults to log.Printf.
func (b *Builder) WithWarnFunc(warn func(string, ...any)) *Builder {
	b.warn = warn
	return b
}

// Build validates the configuration and wires the engine. A Builder builds
// at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessSecret:  b.config.JWT.AccessSecret,
		RefreshSecret: b.config.JWT.RefreshSecret,
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	warn := b.warn
	if warn == nil {
		warn = func(format string, args ...any) {
			log.Printf(format, args...)
		}
	}

	prefix := b.config.Session.RedisPrefix
	e := &Engine{
		config:        b.config,
		jwtManager:    jwtManager,
		passwordHash:  hasher,
		sessionStore:  session.NewStore(b.redis, prefix, b.config.Session.MultiSession),
		otpStore:      stores.NewOTPStore(b.redis, prefix, b.config.OTP.RetentionWindow),
		chainStore:    stores.NewChainStore(b.redis, prefix),
		instanceStore: stores.NewInstanceStore(b.redis, prefix),
		otpLimiter: limiters.NewOTPSendLimiter(b.redis, prefix, limiters.OTPSendConfig{
			ResendCooldown:  b.config.OTP.ResendCooldown,
			MaxSendsPerHour: b.config.OTP.MaxSendsPerHour,
		}),
		credentials: b.credentials,
		notifier:    b.notifier,
		memberships: b.memberships,
		sessionEnds: b.sessionEnds,
		audit:       newAuditDispatcher(b.config.Audit, b.auditSink),
		warn:        warn,
	}

	b.built = true
	return e, nil
}
