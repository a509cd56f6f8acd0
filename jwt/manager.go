package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrExpired is returned by Parse methods when the token is past its expiry.
var ErrExpired = errors.New("token expired")

// ErrInvalid is returned by Parse methods on signature or claim failures.
var ErrInvalid = errors.New("token invalid")

// Config defines the token engine settings. AccessSecret and RefreshSecret
// must differ; a leaked access secret must not be able to forge refresh
// tokens.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Claims is the claim set carried by both token kinds. TokenUse
// distinguishes them so an access token can never pass refresh verification.
type Claims struct {
	UID           string       `json:"uid"`
	TID           string       `json:"tid,omitempty"`
	SID           string       `json:"sid"`
	RoleIDs       []string     `json:"rid,omitempty"`
	ClinicIDs     []string     `json:"cid,omitempty"`
	Memberships   []OrgClaim   `json:"org,omitempty"`
	AppInstanceID string       `json:"aid,omitempty"`
	TokenUse      string       `json:"use"`
	jwt.RegisteredClaims
}

// OrgClaim is an organization-membership entry inside Claims.
type OrgClaim struct {
	OrganizationID string `json:"o"`
	RoleID         string `json:"r"`
}

// Manager issues and verifies tokens. Safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh secret is required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// CreateAccess signs an access token from base. The base's registered claims
// and TokenUse are overwritten.
func (m *Manager) CreateAccess(base Claims) (string, error) {
	return m.sign(base, useAccess, m.config.AccessSecret, m.config.AccessTTL)
}

// CreateRefresh signs a refresh token from base and returns the token and
// its jti. The jti is a fresh UUID on every call.
func (m *Manager) CreateRefresh(base Claims) (token string, jti string, err error) {
	jti = uuid.NewString()
	base.ID = jti
	token, err = m.sign(base, useRefresh, m.config.RefreshSecret, m.config.RefreshTTL)
	if err != nil {
		return "", "", err
	}
	return token, jti, nil
}

func (m *Manager) sign(claims Claims, use string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.TokenUse = use
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccess verifies an access token. Returns [ErrExpired] or [ErrInvalid].
func (m *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, useAccess, m.config.AccessSecret)
}

// ParseRefresh verifies a refresh token. Returns [ErrExpired] or [ErrInvalid].
func (m *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return m.parse(tokenStr, useRefresh, m.config.RefreshSecret)
}

func (m *Manager) parse(tokenStr, wantUse string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenUse != wantUse {
		return nil, ErrInvalid
	}

	return claims, nil
}

// Decode reads claims without verifying the signature or expiry. Used only
// for logout bookkeeping on already-expired access tokens; never trust the
// result for authorization.
func (m *Manager) Decode(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}
