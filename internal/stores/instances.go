package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInstanceNotFound means no instance with the given id exists for the user.
	ErrInstanceNotFound = errors.New("app instance not found")
	// ErrInstanceRedisUnavailable wraps Redis transport failures.
	ErrInstanceRedisUnavailable = errors.New("app instance redis unavailable")
)

// InstanceRecord is one registered mobile installation. Stored as a hash
// field under the owning user's key.
type InstanceRecord struct {
	ID         string            `json:"id"`
	UserID     string            `json:"uid"`
	Platform   string            `json:"platform,omitempty"`
	FCMID      string            `json:"fcm_id,omitempty"`
	Version    string            `json:"version,omitempty"`
	Blocked    bool              `json:"blocked"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
	MetaData   map[string]string `json:"meta_data,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

// InstanceStore is the mobile app-instance registrar. Invariant: at most one
// unblocked instance per user; Create blocks all priors and inserts the new
// one in a single transaction.
type InstanceStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewInstanceStore creates an [InstanceStore] with the given key prefix.
func NewInstanceStore(client redis.UniversalClient, prefix string) *InstanceStore {
	if prefix == "" {
		prefix = "ca"
	}
	return &InstanceStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *InstanceStore) key(userID string) string {
	return s.prefix + ":ami:" + userID
}

// Create registers rec as the user's only unblocked instance. Existing
// unblocked instances are marked blocked in the same MULTI/EXEC that inserts
// the new one, so no interleaving can observe two unblocked instances.
func (s *InstanceStore) Create(ctx context.Context, rec InstanceRecord) error {
	const maxRetries = 4
	key := s.key(rec.UserID)
	rec.Blocked = false
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}

	newData, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %v", ErrInstanceRedisUnavailable, err)
			}

			blocked := make(map[string]string)
			for id, raw := range fields {
				var existing InstanceRecord
				if err := json.Unmarshal([]byte(raw), &existing); err != nil {
					continue
				}
				if existing.Blocked {
					continue
				}
				existing.Blocked = true
				data, err := json.Marshal(existing)
				if err != nil {
					return err
				}
				blocked[id] = string(data)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for id, data := range blocked {
					pipe.HSet(ctx, key, id, data)
				}
				pipe.HSet(ctx, key, rec.ID, newData)
				return nil
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInstanceRedisUnavailable, err)
			}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("%w: create contention not resolved", ErrInstanceRedisUnavailable)
}

// List returns every instance for the user, newest first.
func (s *InstanceStore) List(ctx context.Context, userID string) ([]InstanceRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInstanceRedisUnavailable, err)
	}

	out := make([]InstanceRecord, 0, len(fields))
	for _, raw := range fields {
		var rec InstanceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Block marks one instance blocked. Administrative action; not part of the
// login flow.
func (s *InstanceStore) Block(ctx context.Context, userID, instanceID string) error {
	key := s.key(userID)

	raw, err := s.redis.HGet(ctx, key, instanceID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInstanceNotFound
		}
		return fmt.Errorf("%w: %v", ErrInstanceRedisUnavailable, err)
	}

	var rec InstanceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return ErrInstanceNotFound
	}
	rec.Blocked = true

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.HSet(ctx, key, instanceID, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInstanceRedisUnavailable, err)
	}
	return nil
}
