package clinicauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/clinicore/clinicauth/internal"
	"github.com/clinicore/clinicauth/internal/limiters"
	"github.com/clinicore/clinicauth/internal/stores"
)

// GenerateOTP issues and delivers a login code for identifier. Unknown
// identifiers receive the same success-shaped response with no side
// effects, so the endpoint cannot be used to enumerate accounts.
func (e *Engine) GenerateOTP(ctx context.Context, identifier, channel string) (*OTPIssue, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.issueOTP(ctx, identifier, channel, PurposeLogin, e.config.OTP.TTL, false)
}

// ResendOTP clears any live login code for identifier before issuing a new
// one, so a stale code can never race its replacement.
func (e *Engine) ResendOTP(ctx context.Context, identifier, channel string) (*OTPIssue, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.issueOTP(ctx, identifier, channel, PurposeLogin, e.config.OTP.TTL, true)
}

func (e *Engine) issueOTP(ctx context.Context, identifier, channel string, purpose OTPPurpose, ttl time.Duration, clearFirst bool) (*OTPIssue, error) {
	issue := &OTPIssue{ExpiresIn: int64(ttl / time.Second)}

	// Fixed-code identifiers never persist or deliver anything; the constant
	// code verifies on its own. Demo/app-store-review affordance only.
	if _, ok := e.config.OTP.FixedCodes[identifier]; ok {
		e.emitAudit(ctx, auditEventOTPGenerate, "", "", true, nil, map[string]string{"fixed": "true"})
		return issue, nil
	}

	identity, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		// Success-shaped response, no stored code, no delivery.
		return issue, nil
	}

	if err := e.otpLimiter.CheckSend(ctx, identifier, string(purpose)); err != nil {
		if errors.Is(err, limiters.ErrOTPSendLimited) {
			return nil, ErrOTPRateLimited
		}
		return nil, storeUnavailable(err)
	}

	if clearFirst {
		if err := e.otpStore.Clear(ctx, identifier, string(purpose)); err != nil {
			return nil, storeUnavailable(err)
		}
	}

	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return nil, err
	}
	if err := e.otpStore.Save(ctx, identifier, string(purpose), code, ttl); err != nil {
		return nil, storeUnavailable(err)
	}

	e.deliverOTP(ctx, identifier, code, purpose, channel)
	e.emitAudit(ctx, auditEventOTPGenerate, identity.ID, "", true, nil, map[string]string{"purpose": string(purpose)})
	return issue, nil
}

// deliverOTP hands the code to the notifier. Delivery is best-effort: a
// failed or timed-out send is warned and audited, never returned.
func (e *Engine) deliverOTP(ctx context.Context, identifier, code string, purpose OTPPurpose, channel string) {
	if e.notifier == nil {
		return
	}
	if channel == "" {
		channel = e.config.OTP.DefaultChannel
	}
	if err := e.notifier.Send(ctx, identifier, code, purpose, channel); err != nil {
		e.warnf("clinicauth: otp delivery failed for %s: %v", identifier, err)
		e.emitAudit(ctx, auditEventOTPGenerate, "", "", false, ErrDeliveryFailed, map[string]string{"purpose": string(purpose)})
	}
}

// verifyOTP checks a presented code, consuming the stored record on
// success. Fixed-code identifiers compare against their configured constant
// and touch no storage.
func (e *Engine) verifyOTP(ctx context.Context, identifier, code string, purpose OTPPurpose) error {
	if fixed, ok := e.config.OTP.FixedCodes[identifier]; ok {
		if subtle.ConstantTimeCompare([]byte(fixed), []byte(code)) != 1 {
			return ErrOTPInvalid
		}
		return nil
	}

	err := e.otpStore.Verify(ctx, identifier, string(purpose), code)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPCodeMismatch):
		return ErrOTPInvalid
	case errors.Is(err, stores.ErrOTPExpired):
		return ErrOTPExpired
	case errors.Is(err, stores.ErrOTPNotFound):
		return ErrOTPNotFound
	default:
		return storeUnavailable(err)
	}
}

// VerifyOTPAndLogin verifies a login code and creates a session. When
// mobile settings are present the installation is bound first and the new
// app-instance id rides the token claims and the result.
func (e *Engine) VerifyOTPAndLogin(ctx context.Context, identifier, code string, settings *MobileAppSettings) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if err := e.verifyOTP(ctx, identifier, code, PurposeLogin); err != nil {
		e.emitAudit(ctx, auditEventOTPLogin, "", "", false, err, nil)
		return nil, err
	}

	identity, err := e.credentials.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrUserNotFound
	}
	if identity.LockActive(time.Now()) {
		e.emitAudit(ctx, auditEventOTPLogin, identity.ID, "", false, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	var appInstanceID string
	if settings != nil {
		instance, err := e.RegisterAppInstance(ctx, identity.ID, *settings)
		if err != nil {
			e.emitAudit(ctx, auditEventOTPLogin, identity.ID, "", false, err, nil)
			return nil, err
		}
		appInstanceID = instance.ID
	}

	result, err := e.createSession(ctx, identity, appInstanceID)
	if err != nil {
		e.emitAudit(ctx, auditEventOTPLogin, identity.ID, "", false, err, nil)
		return nil, err
	}

	e.emitAudit(ctx, auditEventOTPLogin, identity.ID, result.SessionID, true, nil, nil)
	return result, nil
}
