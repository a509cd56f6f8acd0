package clinicauth

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/clinicauth/internal/stores"
	"github.com/clinicore/clinicauth/jwt"
	"github.com/clinicore/clinicauth/session"
)

// Refresh rotates a refresh token: the presented jti is atomically revoked
// and the replacement inserted before the new pair reaches the caller.
// Presenting an already-rotated token fails closed with [ErrTokenRevoked]
// (replay detection); nothing about the chain changes on any failure path.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := e.sessionStore.IsRevoked(ctx, claims.SID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	identity, err := e.credentials.FindByID(ctx, claims.UID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrUserNotFound
	}

	// Claims are re-derived from the live identity; role or clinic changes
	// take effect at the next rotation. Session id and app instance carry
	// over from the presented token.
	nextClaims, err := e.buildClaims(ctx, identity, claims.SID, claims.AppInstanceID)
	if err != nil {
		return nil, err
	}

	accessToken, err := e.jwtManager.CreateAccess(nextClaims)
	if err != nil {
		return nil, err
	}
	nextRefresh, nextJTI, err := e.jwtManager.CreateRefresh(nextClaims)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refreshTTL := e.jwtManager.RefreshTTL()

	err = e.chainStore.Rotate(ctx, claims.ID, claims.UID, claims.SID, nextJTI, stores.ChainRecord{
		UserID:    claims.UID,
		SessionID: claims.SID,
		ExpiresAt: now.Add(refreshTTL).Unix(),
	}, refreshTTL)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrChainRevoked):
			e.emitAudit(ctx, auditEventRefreshReplay, claims.UID, claims.SID, false, err, nil)
			return nil, ErrTokenRevoked
		case errors.Is(err, stores.ErrChainNotFound),
			errors.Is(err, stores.ErrChainExpired),
			errors.Is(err, stores.ErrChainMismatch):
			return nil, ErrTokenRevoked
		default:
			return nil, storeUnavailable(err)
		}
	}

	// The cache record is bookkeeping; last writer wins and a failed
	// overwrite must not unwind an already-rotated chain.
	e.overwriteSessionRecord(ctx, identity, claims, accessToken, nextRefresh, now, refreshTTL)

	e.emitAudit(ctx, auditEventRefresh, claims.UID, claims.SID, true, nil, nil)
	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
		ExpiresIn:    int64(e.jwtManager.AccessTTL() / time.Second),
	}, nil
}

func (e *Engine) overwriteSessionRecord(
	ctx context.Context,
	identity *Identity,
	claims *jwt.Claims,
	accessToken, refreshToken string,
	now time.Time,
	refreshTTL time.Duration,
) {
	loginAt := now.Unix()
	if prev, err := e.sessionStore.Get(ctx, claims.UID, claims.SID); err == nil {
		loginAt = prev.LoginAt
	}

	rec := &session.Record{
		SessionID:     claims.SID,
		UserID:        claims.UID,
		TenantID:      identity.TenantID,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AppInstanceID: claims.AppInstanceID,
		LoginAt:       loginAt,
		ExpiresAt:     now.Add(refreshTTL).Unix(),
	}
	if err := e.sessionStore.Save(ctx, rec, refreshTTL); err != nil {
		e.warnf("clinicauth: session record overwrite failed for %s: %v", claims.SID, err)
	}
}
