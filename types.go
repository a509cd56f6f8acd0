package clinicauth

import (
	"context"
	"time"
)

// OTPPurpose tags a one-time code with the flow that issued it. A code stored
// for one purpose never verifies under another.
type OTPPurpose string

const (
	// PurposeLogin is the purpose tag for login codes.
	PurposeLogin OTPPurpose = "login"
	// PurposePasswordReset is the purpose tag for password-reset codes.
	PurposePasswordReset OTPPurpose = "password_reset"
)

// RoleRef is a role attached to an identity. Only the id travels in token
// claims; the name is for callers.
type RoleRef struct {
	ID   string
	Name string
}

// Identity is the credential-store view of a user. The engine reads it and
// writes back only the password hash and lock flag.
type Identity struct {
	ID           string
	TenantID     string
	Username     string
	Email        string
	Mobile       string
	PasswordHash string // empty when no password has been set yet
	Locked       bool
	LockedUntil  time.Time // zero means locked indefinitely while Locked is true
	Roles        []RoleRef
	ClinicIDs    []string
}

// LockActive reports whether the lock is in force at the given time.
// A lock with a past LockedUntil is treated as expired.
func (i *Identity) LockActive(now time.Time) bool {
	if i == nil || !i.Locked {
		return false
	}
	if i.LockedUntil.IsZero() {
		return true
	}
	return now.Before(i.LockedUntil)
}

// RoleIDs returns the role ids in declaration order.
func (i *Identity) RoleIDs() []string {
	if i == nil || len(i.Roles) == 0 {
		return nil
	}
	ids := make([]string, 0, len(i.Roles))
	for _, r := range i.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// Membership is an organization-membership record carried in token claims
// for non-elevated roles.
type Membership struct {
	OrganizationID string `json:"org_id"`
	RoleID         string `json:"role_id"`
}

// MobileAppSettings describes a mobile installation presented at OTP login.
type MobileAppSettings struct {
	Platform   string
	FCMID      string
	Version    string
	DeviceInfo map[string]string
	MetaData   map[string]string
}

// AppInstance is a registered mobile installation. At most one unblocked
// instance exists per user.
type AppInstance struct {
	ID         string
	UserID     string
	Platform   string
	FCMID      string
	Version    string
	Blocked    bool
	DeviceInfo map[string]string
	MetaData   map[string]string
	CreatedAt  time.Time
}

// LoginResult is returned by Login and VerifyOTPAndLogin.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	SessionID     string
	AppInstanceID string // set when a mobile instance was (re)bound during login
	ExpiresIn     int64  // access token lifetime in seconds
	User          *Identity
}

// RefreshResult is returned by Refresh.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// OTPIssue is returned by GenerateOTP and ForgotPassword. For unknown
// identifiers the shape is identical to the success case so callers cannot
// probe which identifiers exist.
type OTPIssue struct {
	ExpiresIn int64 // seconds until the issued code expires
}

// CredentialStore is the host-supplied durable user store. FindByIdentifier
// and FindByID return (nil, nil) when no record matches.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Identity, error)
	FindByID(ctx context.Context, userID string) (*Identity, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetLocked(ctx context.Context, userID string, locked bool) error
}

// Notifier delivers OTP codes over SMS or email. Delivery failures are
// logged by the engine and never fail the requesting flow.
type Notifier interface {
	Send(ctx context.Context, identifier, code string, purpose OTPPurpose, channel string) error
}

// MembershipProvider resolves organization memberships for token claims.
// Optional; when absent, no membership claims are issued.
type MembershipProvider interface {
	MembershipsForUser(ctx context.Context, userID string) ([]Membership, error)
}

// SessionEndRecorder receives session-duration bookkeeping on logout.
// Optional and best-effort; errors are logged, never propagated.
type SessionEndRecorder interface {
	RecordSessionEnd(ctx context.Context, sessionID string, loginAt, logoutAt time.Time) error
}
