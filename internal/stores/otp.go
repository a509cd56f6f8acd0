package stores

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrOTPNotFound means no code was ever stored, or the retention window passed.
	ErrOTPNotFound = errors.New("otp record not found")
	// ErrOTPExpired means the record exists but its code TTL has passed.
	ErrOTPExpired = errors.New("otp record expired")
	// ErrOTPCodeMismatch means a live record exists but the code is wrong.
	ErrOTPCodeMismatch = errors.New("otp code mismatch")
	// ErrOTPRedisUnavailable wraps Redis transport failures.
	ErrOTPRedisUnavailable = errors.New("otp redis unavailable")
)

type otpRecord struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"exp"`
}

// OTPStore holds at most one live code per (identifier, purpose). Records
// outlive their code expiry by a retention window so verification can
// distinguish "expired" from "never issued".
type OTPStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewOTPStore creates an [OTPStore] with the given key prefix and
// post-expiry retention window.
func NewOTPStore(client redis.UniversalClient, prefix string, retention time.Duration) *OTPStore {
	if prefix == "" {
		prefix = "ca"
	}
	return &OTPStore{
		redis:     client,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *OTPStore) key(identifier, purpose string) string {
	return s.prefix + ":otp:" + purpose + ":" + identifier
}

// Save upserts the code for (identifier, purpose), overwriting any prior
// live code. Latest code wins.
func (s *OTPStore) Save(ctx context.Context, identifier, purpose, code string, ttl time.Duration) error {
	data, err := json.Marshal(otpRecord{
		Code:      code,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(identifier, purpose), data, ttl+s.retention).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}

// Verify checks code against the stored record and consumes the record on
// success (single use). The check-and-delete runs under an optimistic
// transaction so two concurrent verifications of the same code cannot both
// succeed.
func (s *OTPStore) Verify(ctx context.Context, identifier, purpose, code string) error {
	const maxRetries = 4
	key := s.key(identifier, purpose)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrOTPNotFound
				}
				return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
			}

			var record otpRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return ErrOTPNotFound
			}

			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
				}
				return ErrOTPExpired
			}

			if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
				return ErrOTPCodeMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
			}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrOTPNotFound
}

// Clear invalidates any live code for (identifier, purpose). Used before
// resend so a stale code cannot linger next to the fresh one.
func (s *OTPStore) Clear(ctx context.Context, identifier, purpose string) error {
	if err := s.redis.Del(ctx, s.key(identifier, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}
