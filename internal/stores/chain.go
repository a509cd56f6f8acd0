package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrChainNotFound means the presented jti was never issued or has aged out.
	ErrChainNotFound = errors.New("refresh chain entry not found")
	// ErrChainRevoked means the presented jti was already rotated or revoked.
	ErrChainRevoked = errors.New("refresh chain entry revoked")
	// ErrChainExpired means the entry exists but the token lifetime has passed.
	ErrChainExpired = errors.New("refresh chain entry expired")
	// ErrChainMismatch means the entry belongs to a different user or session.
	ErrChainMismatch = errors.New("refresh chain entry mismatch")
	// ErrChainRedisUnavailable wraps Redis transport failures.
	ErrChainRedisUnavailable = errors.New("refresh chain redis unavailable")
)

// ChainRecord tracks one issued refresh token. Exactly one unrevoked record
// exists per chain at any time; rotation flips the old record and inserts
// the new one in a single script.
type ChainRecord struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	ExpiresAt int64  `json:"exp"`
	Revoked   bool   `json:"rev"`
}

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRevoked  int64 = 1
	rotateStatusExpired  int64 = 2
	rotateStatusMismatch int64 = 3
	rotateStatusRotated  int64 = 4
)

// rotateChainScript atomically revokes the presented jti and inserts the
// replacement. Any precondition failure leaves both keys untouched, so a
// failed rotation never half-migrates the chain.
const rotateChainScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local ok, rec = pcall(cjson.decode, data)
if not ok or not rec then
  return 0
end
if rec.rev then
  return 1
end
if tonumber(rec.exp) <= tonumber(ARGV[3]) then
  return 2
end
if rec.uid ~= ARGV[1] or rec.sid ~= ARGV[2] then
  return 3
end
rec.rev = true
local ttl = redis.call("TTL", KEYS[1])
if ttl < 1 then
  ttl = 1
end
redis.call("SET", KEYS[1], cjson.encode(rec), "EX", ttl)
redis.call("SET", KEYS[2], ARGV[4], "EX", tonumber(ARGV[5]))
return 4
`

var rotateChainLua = redis.NewScript(rotateChainScript)

const revokeChainScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local ok, rec = pcall(cjson.decode, data)
if not ok or not rec then
  return 0
end
rec.rev = true
local ttl = redis.call("TTL", KEYS[1])
if ttl < 1 then
  ttl = 1
end
redis.call("SET", KEYS[1], cjson.encode(rec), "EX", ttl)
return 1
`

var revokeChainLua = redis.NewScript(revokeChainScript)

// ChainStore is the refresh-token chain: one TTL'd record per issued jti.
type ChainStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewChainStore creates a [ChainStore] with the given key prefix.
func NewChainStore(client redis.UniversalClient, prefix string) *ChainStore {
	if prefix == "" {
		prefix = "ca"
	}
	return &ChainStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *ChainStore) key(jti string) string {
	return s.prefix + ":rtc:" + jti
}

// Insert stores the record for a freshly issued jti.
func (s *ChainStore) Insert(ctx context.Context, jti string, rec ChainRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.redis.Set(ctx, s.key(jti), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChainRedisUnavailable, err)
	}
	return nil
}

// Get returns the record for jti.
func (s *ChainStore) Get(ctx context.Context, jti string) (*ChainRecord, error) {
	data, err := s.redis.Get(ctx, s.key(jti)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChainNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChainRedisUnavailable, err)
	}
	rec := &ChainRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, ErrChainNotFound
	}
	return rec, nil
}

// Rotate verifies that oldJTI is live, unrevoked, and bound to (userID,
// sessionID), then atomically marks it revoked and inserts newRec under
// newJTI. Exactly one concurrent caller presenting the same jti can win;
// the rest observe [ErrChainRevoked].
func (s *ChainStore) Rotate(
	ctx context.Context,
	oldJTI, userID, sessionID string,
	newJTI string,
	newRec ChainRecord,
	newTTL time.Duration,
) error {
	data, err := json.Marshal(newRec)
	if err != nil {
		return err
	}

	seconds := int64(newTTL / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	status, err := rotateChainLua.Run(
		ctx,
		s.redis,
		[]string{s.key(oldJTI), s.key(newJTI)},
		userID,
		sessionID,
		time.Now().Unix(),
		string(data),
		seconds,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChainRedisUnavailable, err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusRevoked:
		return ErrChainRevoked
	case rotateStatusExpired:
		return ErrChainExpired
	case rotateStatusMismatch:
		return ErrChainMismatch
	default:
		return ErrChainNotFound
	}
}

// Revoke marks jti revoked in place, preserving its TTL. Revoking an
// unknown jti is a no-op.
func (s *ChainStore) Revoke(ctx context.Context, jti string) error {
	if err := revokeChainLua.Run(ctx, s.redis, []string{s.key(jti)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChainRedisUnavailable, err)
	}
	return nil
}
