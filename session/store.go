package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no session record exists for the key.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// evictAndCreateScript implements the single-session policy atomically:
// read the user's existing record, blacklist its session id for the
// remainder of its lifetime, then install the new record. A concurrent
// login on the same user sees either the fully-old or fully-new state.
const evictAndCreateScript = `
local evicted = ""
local old = redis.call("GET", KEYS[1])
if old then
  local ok, rec = pcall(cjson.decode, old)
  if ok and rec and rec.sid then
    local remaining = tonumber(rec.exp) - tonumber(ARGV[2])
    if remaining and remaining > 0 then
      redis.call("SET", ARGV[3] .. rec.sid, "1", "EX", remaining)
    end
    evicted = rec.sid
  end
end
redis.call("SET", KEYS[1], ARGV[1], "EX", tonumber(ARGV[4]))
return evicted
`

var evictAndCreateLua = redis.NewScript(evictAndCreateScript)

// Store is the Redis session cache. Safe for concurrent use; all
// multi-step writes go through Lua or transactional pipelines.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	multi  bool
}

// NewStore creates a session [Store]. prefix namespaces every key; multi
// selects the per-(user, session) key layout.
func NewStore(client redis.UniversalClient, prefix string, multi bool) *Store {
	return &Store{
		redis:  client,
		prefix: prefix,
		multi:  multi,
	}
}

// Multi reports whether the store runs the multi-session key layout.
func (s *Store) Multi() bool { return s.multi }

func (s *Store) sessionKey(userID, sessionID string) string {
	if s.multi {
		return s.prefix + ":sess:" + userID + ":" + sessionID
	}
	return s.prefix + ":sess:" + userID
}

func (s *Store) indexKey(userID string) string {
	return s.prefix + ":idx:" + userID
}

func (s *Store) denyKey(sessionID string) string {
	return s.prefix + ":deny:" + sessionID
}

func (s *Store) denyPrefix() string {
	return s.prefix + ":deny:"
}

// Save writes rec without touching any existing record. Used for refresh
// overwrites in both modes and for logins under multi-session. Last writer
// wins on the record itself.
func (s *Store) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := s.sessionKey(rec.UserID, rec.SessionID)
	if !s.multi {
		if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.SAdd(ctx, s.indexKey(rec.UserID), rec.SessionID)
		pipe.Expire(ctx, s.indexKey(rec.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SaveEvicting installs rec under the single-session policy, atomically
// blacklisting and removing any session the user already holds. Returns the
// evicted session id, if any. Falls back to Save under multi-session.
func (s *Store) SaveEvicting(ctx context.Context, rec *Record, ttl time.Duration) (string, error) {
	if s.multi {
		return "", s.Save(ctx, rec, ttl)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	evicted, err := evictAndCreateLua.Run(
		ctx,
		s.redis,
		[]string{s.sessionKey(rec.UserID, rec.SessionID)},
		string(data),
		time.Now().Unix(),
		s.denyPrefix(),
		seconds,
	).Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return evicted, nil
}

// Get retrieves the session record for (userID, sessionID). Under
// single-session the stored record must still carry the requested session
// id; a mismatch means the session was evicted and reads as not found.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(userID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	if !s.multi && sessionID != "" && rec.SessionID != sessionID {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Delete removes the session record and returns what was stored, so callers
// can revoke the associated refresh token and record session duration.
// Deleting an absent session returns [ErrNotFound] but leaves no residue
// (idempotent for the cache state).
func (s *Store) Delete(ctx context.Context, userID, sessionID string) (*Record, error) {
	key := s.sessionKey(userID, sessionID)

	data, err := s.redis.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if s.multi {
		if err := s.redis.SRem(ctx, s.indexKey(userID), sessionID).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PurgeUser removes every session the user holds and returns the removed
// records. Under multi-session the per-user index set drives the sweep; a
// session created concurrently with the sweep may survive and is left to
// expire or to the next purge.
func (s *Store) PurgeUser(ctx context.Context, userID string) ([]Record, error) {
	if !s.multi {
		rec, err := s.Delete(ctx, userID, "")
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []Record{*rec}, nil
	}

	sessionIDs, err := s.redis.SMembers(ctx, s.indexKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var removed []Record
	for _, sid := range sessionIDs {
		rec, err := s.Delete(ctx, userID, sid)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed = append(removed, *rec)
	}

	if err := s.redis.Del(ctx, s.indexKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// Revoke blacklists a session id for ttl. Entries expire naturally and are
// never deleted early.
func (s *Store) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := s.redis.Set(ctx, s.denyKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the session id is on the blacklist.
func (s *Store) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.denyKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}
