package clinicauth

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/clinicauth/internal"
	"github.com/clinicore/clinicauth/internal/stores"
	"github.com/clinicore/clinicauth/jwt"
	"github.com/clinicore/clinicauth/session"
)

// buildClaims derives the supplementary claim set for an identity. The
// organization-membership lookup is skipped for elevated roles; their
// tokens stay small and the lookup cost is avoided.
func (e *Engine) buildClaims(ctx context.Context, identity *Identity, sessionID, appInstanceID string) (jwt.Claims, error) {
	claims := jwt.Claims{
		UID:           identity.ID,
		TID:           identity.TenantID,
		SID:           sessionID,
		RoleIDs:       identity.RoleIDs(),
		ClinicIDs:     identity.ClinicIDs,
		AppInstanceID: appInstanceID,
	}

	if e.memberships != nil && !e.hasElevatedRole(identity) {
		memberships, err := e.memberships.MembershipsForUser(ctx, identity.ID)
		if err != nil {
			return jwt.Claims{}, err
		}
		for _, m := range memberships {
			claims.Memberships = append(claims.Memberships, jwt.OrgClaim{
				OrganizationID: m.OrganizationID,
				RoleID:         m.RoleID,
			})
		}
	}

	return claims, nil
}

// createSession issues an access/refresh pair bound to a fresh session id,
// persists the refresh jti to the chain store, and writes the session
// record per the session-count policy. Under single-session the write
// atomically evicts and blacklists any session the user already holds.
func (e *Engine) createSession(ctx context.Context, identity *Identity, appInstanceID string) (*LoginResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	sessionID := sid.String()

	claims, err := e.buildClaims(ctx, identity, sessionID, appInstanceID)
	if err != nil {
		return nil, err
	}

	accessToken, err := e.jwtManager.CreateAccess(claims)
	if err != nil {
		return nil, err
	}
	refreshToken, jti, err := e.jwtManager.CreateRefresh(claims)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refreshTTL := e.jwtManager.RefreshTTL()

	if err := e.chainStore.Insert(ctx, jti, stores.ChainRecord{
		UserID:    identity.ID,
		SessionID: sessionID,
		ExpiresAt: now.Add(refreshTTL).Unix(),
	}, refreshTTL); err != nil {
		return nil, storeUnavailable(err)
	}

	rec := &session.Record{
		SessionID:     sessionID,
		UserID:        identity.ID,
		TenantID:      identity.TenantID,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AppInstanceID: appInstanceID,
		LoginAt:       now.Unix(),
		ExpiresAt:     now.Add(refreshTTL).Unix(),
	}

	evicted, err := e.sessionStore.SaveEvicting(ctx, rec, refreshTTL)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if evicted != "" {
		e.emitAudit(ctx, auditEventSessionEvicted, identity.ID, evicted, true, nil, nil)
	}

	return &LoginResult{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		SessionID:     sessionID,
		AppInstanceID: appInstanceID,
		ExpiresIn:     int64(e.jwtManager.AccessTTL() / time.Second),
		User:          identity,
	}, nil
}

// invalidateAllSessions purges every cached session for the user,
// blacklists each evicted session id for its remaining lifetime, and
// best-effort revokes the associated refresh jtis.
func (e *Engine) invalidateAllSessions(ctx context.Context, userID string) error {
	removed, err := e.sessionStore.PurgeUser(ctx, userID)
	if err != nil {
		return storeUnavailable(err)
	}

	for _, rec := range removed {
		remaining := time.Until(time.Unix(rec.ExpiresAt, 0))
		if remaining <= 0 {
			remaining = time.Minute
		}
		if err := e.sessionStore.Revoke(ctx, rec.SessionID, remaining); err != nil {
			return storeUnavailable(err)
		}
		e.revokeRefreshFromRecord(ctx, &rec)
	}
	return nil
}

// revokeRefreshFromRecord best-effort revokes the refresh jti carried by a
// cached session record. Failures are warned, never propagated.
func (e *Engine) revokeRefreshFromRecord(ctx context.Context, rec *session.Record) {
	if rec == nil || rec.RefreshToken == "" {
		return
	}
	claims, err := e.jwtManager.Decode(rec.RefreshToken)
	if err != nil || claims.ID == "" {
		return
	}
	if err := e.chainStore.Revoke(ctx, claims.ID); err != nil {
		e.warnf("clinicauth: refresh revocation failed for session %s: %v", rec.SessionID, err)
	}
}

func sessionStoreNotFound(err error) bool {
	return errors.Is(err, session.ErrNotFound)
}
