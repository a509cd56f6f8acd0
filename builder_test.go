package clinicauth

import (
	"testing"
)

func TestBuilderRequiresRedis(t *testing.T) {
	store := newMockCredentialStore()

	_, err := New().
		WithConfig(testConfig()).
		WithCredentialStore(store).
		Build()
	if err == nil {
		t.Fatal("expected build to fail without a redis client")
	}
}

func TestBuilderRequiresCredentialStore(t *testing.T) {
	_, rdb := newTestRedis(t)

	_, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		Build()
	if err == nil {
		t.Fatal("expected build to fail without a credential store")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	_, rdb := newTestRedis(t)

	cfg := testConfig()
	cfg.JWT.RefreshSecret = append([]byte(nil), cfg.JWT.AccessSecret...)

	_, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(newMockCredentialStore()).
		Build()
	if err == nil {
		t.Fatal("expected build to fail with identical secrets")
	}
}

func TestBuilderBuildsAtMostOnce(t *testing.T) {
	_, rdb := newTestRedis(t)

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithCredentialStore(newMockCredentialStore())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}
