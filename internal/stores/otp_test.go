package stores

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestOTPSaveAndVerifyConsumes(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	if err := store.Save(ctx, "alice", "login", "123456", 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Verify(ctx, "alice", "login", "123456"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// Single use: the record is gone after a successful verify.
	if err := store.Verify(ctx, "alice", "login", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on replay, got %v", err)
	}
}

func TestOTPVerifyWrongCode(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	if err := store.Save(ctx, "alice", "login", "123456", 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Verify(ctx, "alice", "login", "654321"); !errors.Is(err, ErrOTPCodeMismatch) {
		t.Fatalf("expected ErrOTPCodeMismatch, got %v", err)
	}

	// A wrong guess must not consume the record.
	if err := store.Verify(ctx, "alice", "login", "123456"); err != nil {
		t.Fatalf("expected real code to still verify, got %v", err)
	}
}

func TestOTPVerifyNeverIssued(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	if err := store.Verify(context.Background(), "alice", "login", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound, got %v", err)
	}
}

func TestOTPVerifyExpiredInsideRetention(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	// The key is still alive (retention window) but the code TTL has passed.
	stale, err := json.Marshal(otpRecord{
		Code:      "123456",
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := rdb.Set(ctx, "ca:otp:login:alice", stale, 30*time.Minute).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := store.Verify(ctx, "alice", "login", "123456"); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}

	// The expired record was deleted; the next attempt reads never-issued.
	if err := store.Verify(ctx, "alice", "login", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after delete, got %v", err)
	}
}

func TestOTPSaveOverwrites(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	if err := store.Save(ctx, "alice", "login", "111111", 5*time.Minute); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save(ctx, "alice", "login", "222222", 5*time.Minute); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if err := store.Verify(ctx, "alice", "login", "111111"); !errors.Is(err, ErrOTPCodeMismatch) {
		t.Fatalf("expected stale code mismatch, got %v", err)
	}
	if err := store.Verify(ctx, "alice", "login", "222222"); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
}

func TestOTPPurposeIsolation(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	if err := store.Save(ctx, "alice", "login", "123456", 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Verify(ctx, "alice", "password_reset", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected cross-purpose verify to miss, got %v", err)
	}
}

func TestOTPClear(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	if err := store.Save(ctx, "alice", "login", "123456", 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Clear(ctx, "alice", "login"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := store.Verify(ctx, "alice", "login", "123456"); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after clear, got %v", err)
	}

	// Clearing nothing is fine.
	if err := store.Clear(ctx, "alice", "login"); err != nil {
		t.Fatalf("Clear of absent record failed: %v", err)
	}
}

func TestOTPKeyCarriesRetentionTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewOTPStore(rdb, "ca", 30*time.Minute)

	if err := store.Save(ctx, "alice", "login", "123456", 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ttl := mr.TTL("ca:otp:login:alice")
	if ttl <= 5*time.Minute || ttl > 35*time.Minute {
		t.Fatalf("expected key TTL of code TTL plus retention, got %v", ttl)
	}
}
