package clinicauth

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/clinicauth/jwt"
)

// Logout ends the session carried by accessToken. An expired token is
// accepted (decoded without verification) so clients can clean up after
// their token lapses; a token with a bad signature is not. The revocation
// entry and the cache delete are mandatory; refresh revocation and
// session-duration recording are best-effort.
func (e *Engine) Logout(ctx context.Context, userID, accessToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		if !errors.Is(err, jwt.ErrExpired) {
			return ErrTokenInvalid
		}
		claims, err = e.jwtManager.Decode(accessToken)
		if err != nil {
			return ErrTokenInvalid
		}
	}
	if claims.UID != userID || claims.SID == "" {
		return ErrTokenInvalid
	}

	now := time.Now()
	remaining := time.Minute
	if claims.ExpiresAt != nil {
		if r := claims.ExpiresAt.Time.Sub(now); r > remaining {
			remaining = r
		}
	}

	if err := e.sessionStore.Revoke(ctx, claims.SID, remaining); err != nil {
		return storeUnavailable(err)
	}

	rec, err := e.sessionStore.Delete(ctx, userID, claims.SID)
	if err != nil && !sessionStoreNotFound(err) {
		return storeUnavailable(err)
	}

	if rec != nil {
		e.revokeRefreshFromRecord(ctx, rec)
		if e.sessionEnds != nil {
			loginAt := time.Unix(rec.LoginAt, 0)
			if err := e.sessionEnds.RecordSessionEnd(ctx, claims.SID, loginAt, now); err != nil {
				e.warnf("clinicauth: session end recording failed for %s: %v", claims.SID, err)
			}
		}
	}

	e.emitAudit(ctx, auditEventLogout, userID, claims.SID, true, nil, nil)
	return nil
}

// LogoutAll ends every session the user holds: each cached session is
// removed, blacklisted for its remaining lifetime, and its refresh jti
// best-effort revoked.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.invalidateAllSessions(ctx, userID); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventLogout, userID, "", true, nil, map[string]string{"scope": "all"})
	return nil
}
