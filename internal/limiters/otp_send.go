package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrOTPSendLimited means the identifier hit the cooldown or hourly cap.
	ErrOTPSendLimited = errors.New("otp send rate limited")
	// ErrOTPLimiterUnavailable wraps Redis transport failures.
	ErrOTPLimiterUnavailable = errors.New("otp limiter redis unavailable")
)

// OTPSendConfig controls per-identifier OTP send throttling.
type OTPSendConfig struct {
	ResendCooldown  time.Duration
	MaxSendsPerHour int
}

// OTPSendLimiter throttles code delivery per identifier: a short resend
// cooldown plus a fixed hourly window.
type OTPSendLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config OTPSendConfig
}

// NewOTPSendLimiter creates an [OTPSendLimiter] with the given key prefix.
func NewOTPSendLimiter(client redis.UniversalClient, prefix string, cfg OTPSendConfig) *OTPSendLimiter {
	if prefix == "" {
		prefix = "ca"
	}
	return &OTPSendLimiter{
		redis:  client,
		prefix: prefix,
		config: cfg,
	}
}

func (l *OTPSendLimiter) cooldownKey(identifier, purpose string) string {
	return l.prefix + ":otpcd:" + purpose + ":" + identifier
}

func (l *OTPSendLimiter) windowKey(identifier, purpose string) string {
	return l.prefix + ":otpwin:" + purpose + ":" + identifier
}

// CheckSend enforces both throttles and, when allowed, claims the cooldown
// slot. Callers invoke it once per delivery attempt.
func (l *OTPSendLimiter) CheckSend(ctx context.Context, identifier, purpose string) error {
	if l.config.ResendCooldown > 0 {
		ok, err := l.redis.SetNX(ctx, l.cooldownKey(identifier, purpose), "1", l.config.ResendCooldown).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOTPLimiterUnavailable, err)
		}
		if !ok {
			return ErrOTPSendLimited
		}
	}

	if l.config.MaxSendsPerHour > 0 {
		key := l.windowKey(identifier, purpose)
		count, err := l.redis.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOTPLimiterUnavailable, err)
		}
		if count == 1 {
			if err := l.redis.Expire(ctx, key, time.Hour).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrOTPLimiterUnavailable, err)
			}
		}
		if count > int64(l.config.MaxSendsPerHour) {
			return ErrOTPSendLimited
		}
	}

	return nil
}
