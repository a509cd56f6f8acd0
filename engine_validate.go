package clinicauth

import (
	"context"
	"errors"

	"github.com/clinicore/clinicauth/jwt"
)

// Validate verifies an access token and checks its session against the
// revocation blacklist. This is what makes single-session eviction and
// logout observable before the token's natural expiry.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
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

	return claims, nil
}
