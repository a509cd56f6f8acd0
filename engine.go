package clinicauth

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/clinicauth/internal/limiters"
	"github.com/clinicore/clinicauth/internal/stores"
	"github.com/clinicore/clinicauth/jwt"
	"github.com/clinicore/clinicauth/password"
	"github.com/clinicore/clinicauth/session"
)

// Engine is the session orchestrator. It coordinates the credential store,
// OTP engine, token engine, session cache, and instance registrar, and is
// safe for concurrent use after [Builder.Build].
type Engine struct {
	config        Config
	jwtManager    *jwt.Manager
	passwordHash  *password.Argon2
	sessionStore  *session.Store
	otpStore      *stores.OTPStore
	chainStore    *stores.ChainStore
	instanceStore *stores.InstanceStore
	otpLimiter    *limiters.OTPSendLimiter
	credentials   CredentialStore
	notifier      Notifier
	memberships   MembershipProvider
	sessionEnds   SessionEndRecorder
	audit         *auditDispatcher
	warn          func(string, ...any)
}

// Close drains and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.jwtManager == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) warnf(format string, args ...any) {
	if e == nil || e.warn == nil {
		return
	}
	e.warn(format, args...)
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, userID, sessionID string, success bool, failure error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) hasElevatedRole(identity *Identity) bool {
	if identity == nil || len(e.config.Session.ElevatedRoles) == 0 {
		return false
	}
	for _, role := range identity.Roles {
		for _, elevated := range e.config.Session.ElevatedRoles {
			if role.ID == elevated {
				return true
			}
		}
	}
	return false
}
