package clinicauth

import (
	"context"
	"fmt"
)

// ForgotPassword issues a password-reset code. The channel is restricted to
// an allowlist of privileged role ids; low-trust accounts cannot be taken
// over through it. Unknown identifiers get the usual success-shaped
// response.
func (e *Engine) ForgotPassword(ctx context.Context, identifier, channel string) (*OTPIssue, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	identity, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return &OTPIssue{ExpiresIn: int64(e.config.PasswordReset.OTPTTL.Seconds())}, nil
	}
	if !e.resetAllowed(identity) {
		e.emitAudit(ctx, auditEventPasswordForgot, identity.ID, "", false, ErrPasswordResetNotAllowed, nil)
		return nil, ErrPasswordResetNotAllowed
	}

	issue, err := e.issueOTP(ctx, identifier, channel, PurposePasswordReset, e.config.PasswordReset.OTPTTL, false)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventPasswordForgot, identity.ID, "", true, nil, nil)
	return issue, nil
}

// ResetPassword re-verifies the reset code, updates the password hash, and
// invalidates every session the user holds.
func (e *Engine) ResetPassword(ctx context.Context, identifier, code, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	identity, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if identity == nil {
		return ErrUserNotFound
	}
	if !e.resetAllowed(identity) {
		return ErrPasswordResetNotAllowed
	}

	if err := e.verifyOTP(ctx, identifier, code, PurposePasswordReset); err != nil {
		e.emitAudit(ctx, auditEventPasswordReset, identity.ID, "", false, err, nil)
		return err
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	if err := e.credentials.UpdatePassword(ctx, identity.ID, hash); err != nil {
		return err
	}

	if err := e.invalidateAllSessions(ctx, identity.ID); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventPasswordReset, identity.ID, "", true, nil, nil)
	return nil
}

// ChangePassword rotates the password of an authenticated user. The current
// password is required unless none was ever set (first-time setup). The new
// password must differ from the current one. All sessions are invalidated
// on success; the caller is expected to follow with an explicit logout of
// its own token.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	identity, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if identity == nil {
		return ErrUserNotFound
	}

	if identity.PasswordHash != "" {
		ok, err := e.passwordHash.Verify(currentPassword, identity.PasswordHash)
		if err != nil || !ok {
			e.emitAudit(ctx, auditEventPasswordChange, userID, "", false, ErrInvalidCredentials, nil)
			return ErrInvalidCredentials
		}

		same, err := e.passwordHash.Verify(newPassword, identity.PasswordHash)
		if err == nil && same {
			return ErrPasswordReuse
		}
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	if err := e.credentials.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if err := e.invalidateAllSessions(ctx, userID); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventPasswordChange, userID, "", true, nil, nil)
	return nil
}

// resetAllowed reports whether any of the identity's roles is on the
// password-reset allowlist. An empty allowlist closes the channel.
func (e *Engine) resetAllowed(identity *Identity) bool {
	if len(e.config.PasswordReset.AllowedRoleIDs) == 0 {
		return false
	}
	for _, role := range identity.Roles {
		for _, allowed := range e.config.PasswordReset.AllowedRoleIDs {
			if role.ID == allowed {
				return true
			}
		}
	}
	return false
}
