package stores

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInstanceCreateAndList(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewInstanceStore(rdb, "ca")

	rec := InstanceRecord{
		ID:       "i1",
		UserID:   "u1",
		Platform: "android",
		FCMID:    "fcm-1",
		Version:  "2.3.0",
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	instances, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("expected one instance, got %d", len(instances))
	}
	if instances[0].ID != "i1" || instances[0].Blocked {
		t.Fatalf("unexpected instance: %+v", instances[0])
	}
	if instances[0].CreatedAt == 0 {
		t.Fatal("expected a creation timestamp to be filled in")
	}
}

func TestInstanceCreateBlocksPriors(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewInstanceStore(rdb, "ca")

	now := time.Now().Unix()
	if err := store.Create(ctx, InstanceRecord{ID: "i1", UserID: "u1", CreatedAt: now - 10}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if err := store.Create(ctx, InstanceRecord{ID: "i2", UserID: "u1", CreatedAt: now - 5}); err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if err := store.Create(ctx, InstanceRecord{ID: "i3", UserID: "u1", CreatedAt: now}); err != nil {
		t.Fatalf("third Create failed: %v", err)
	}

	instances, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("expected three instances, got %d", len(instances))
	}

	// Newest first, and only the newest unblocked.
	if instances[0].ID != "i3" {
		t.Fatalf("expected i3 first, got %s", instances[0].ID)
	}
	unblocked := 0
	for _, inst := range instances {
		if !inst.Blocked {
			unblocked++
			if inst.ID != "i3" {
				t.Fatalf("expected only i3 unblocked, found %s", inst.ID)
			}
		}
	}
	if unblocked != 1 {
		t.Fatalf("expected exactly one unblocked instance, got %d", unblocked)
	}
}

func TestInstanceCreateIsolatedPerUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewInstanceStore(rdb, "ca")

	if err := store.Create(ctx, InstanceRecord{ID: "i1", UserID: "u1"}); err != nil {
		t.Fatalf("Create u1 failed: %v", err)
	}
	if err := store.Create(ctx, InstanceRecord{ID: "i2", UserID: "u2"}); err != nil {
		t.Fatalf("Create u2 failed: %v", err)
	}

	instances, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(instances) != 1 || instances[0].Blocked {
		t.Fatalf("expected u1's instance to stay unblocked, got %+v", instances)
	}
}

func TestInstanceBlock(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	store := NewInstanceStore(rdb, "ca")

	if err := store.Create(ctx, InstanceRecord{ID: "i1", UserID: "u1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Block(ctx, "u1", "i1"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	instances, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(instances) != 1 || !instances[0].Blocked {
		t.Fatalf("expected i1 to be blocked, got %+v", instances)
	}

	if err := store.Block(ctx, "u1", "ghost"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestInstanceListEmpty(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewInstanceStore(rdb, "ca")

	instances, err := store.List(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("expected empty list, got %d", len(instances))
	}
}
