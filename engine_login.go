package clinicauth

import (
	"context"
	"time"
)

// Login authenticates identifier/password and creates a session. Unknown
// identifiers and wrong passwords both surface as [ErrInvalidCredentials];
// locked accounts as [ErrAccountLocked].
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	identity, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		e.emitAudit(ctx, auditEventLogin, "", "", false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}
	if identity.LockActive(time.Now()) {
		e.emitAudit(ctx, auditEventLogin, identity.ID, "", false, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}
	if identity.PasswordHash == "" {
		e.emitAudit(ctx, auditEventLogin, identity.ID, "", false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pass, identity.PasswordHash)
	if err != nil || !ok {
		// A malformed stored hash reads the same as a mismatch; nothing
		// about the stored credential leaks to the caller.
		e.emitAudit(ctx, auditEventLogin, identity.ID, "", false, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	result, err := e.createSession(ctx, identity, "")
	if err != nil {
		e.emitAudit(ctx, auditEventLogin, identity.ID, "", false, err, nil)
		return nil, err
	}

	e.emitAudit(ctx, auditEventLogin, identity.ID, result.SessionID, true, nil, nil)
	return result, nil
}
