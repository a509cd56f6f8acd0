package clinicauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/clinicauth/password"
)

type mockCredentialStore struct {
	mu    sync.Mutex
	users map[string]*Identity
	index map[string]string // identifier -> user id

	findErr error

	findByIdentifierCalls int
	findByIDCalls         int
	updatePasswordCalls   int
	setLockedCalls        int
}

func newMockCredentialStore(users ...*Identity) *mockCredentialStore {
	s := &mockCredentialStore{
		users: make(map[string]*Identity),
		index: make(map[string]string),
	}
	for _, u := range users {
		s.add(u)
	}
	return s
}

func (m *mockCredentialStore) add(u *Identity) {
	m.users[u.ID] = u
	for _, identifier := range []string{u.Username, u.Email, u.Mobile} {
		if identifier != "" {
			m.index[identifier] = u.ID
		}
	}
}

func (m *mockCredentialStore) FindByIdentifier(_ context.Context, identifier string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByIdentifierCalls++

	if m.findErr != nil {
		return nil, m.findErr
	}
	id, ok := m.index[identifier]
	if !ok {
		return nil, nil
	}
	return cloneTestIdentity(m.users[id]), nil
}

func (m *mockCredentialStore) FindByID(_ context.Context, userID string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByIDCalls++

	if m.findErr != nil {
		return nil, m.findErr
	}
	return cloneTestIdentity(m.users[userID]), nil
}

func (m *mockCredentialStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatePasswordCalls++

	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockCredentialStore) SetLocked(_ context.Context, userID string, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLockedCalls++

	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Locked = locked
	return nil
}

func (m *mockCredentialStore) passwordHashOf(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return u.PasswordHash
	}
	return ""
}

func cloneTestIdentity(in *Identity) *Identity {
	if in == nil {
		return nil
	}
	out := *in
	out.Roles = append([]RoleRef(nil), in.Roles...)
	out.ClinicIDs = append([]string(nil), in.ClinicIDs...)
	return &out
}

type sentCode struct {
	identifier string
	code       string
	purpose    OTPPurpose
	channel    string
}

type recordingNotifier struct {
	mu    sync.Mutex
	sends []sentCode
	err   error
}

func (n *recordingNotifier) Send(_ context.Context, identifier, code string, purpose OTPPurpose, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sends = append(n.sends, sentCode{identifier: identifier, code: code, purpose: purpose, channel: channel})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

func (n *recordingNotifier) lastCode(identifier string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sends) - 1; i >= 0; i-- {
		if n.sends[i].identifier == identifier {
			return n.sends[i].code
		}
	}
	return ""
}

type mockMembershipProvider struct {
	mu          sync.Mutex
	memberships map[string][]Membership
	err         error
	calls       int
}

func (m *mockMembershipProvider) MembershipsForUser(_ context.Context, userID string) ([]Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.memberships[userID], nil
}

type sessionEndRecord struct {
	sessionID string
	loginAt   time.Time
	logoutAt  time.Time
}

type recordingSessionEnds struct {
	mu      sync.Mutex
	records []sessionEndRecord
	err     error
}

func (r *recordingSessionEnds) RecordSessionEnd(_ context.Context, sessionID string, loginAt, logoutAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, sessionEndRecord{sessionID: sessionID, loginAt: loginAt, logoutAt: logoutAt})
	return nil
}

func (r *recordingSessionEnds) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("test-access-secret-0123456789")
	cfg.JWT.RefreshSecret = []byte("test-refresh-secret-0123456789")
	cfg.JWT.Issuer = "clinicauth-test"
	cfg.JWT.Leeway = 0
	// No throttling by default; limiter behavior has its own tests.
	cfg.OTP.ResendCooldown = 0
	cfg.OTP.MaxSendsPerHour = 0
	cfg.PasswordReset.AllowedRoleIDs = []string{"admin"}
	return cfg
}

type testEngineOptions struct {
	mutate      func(*Config)
	notifier    Notifier
	memberships MembershipProvider
	sessionEnds SessionEndRecorder
	auditSink   AuditSink
}

func newTestEngine(t *testing.T, rdb redis.UniversalClient, store CredentialStore, opts testEngineOptions) *Engine {
	t.Helper()

	cfg := testConfig()
	if opts.mutate != nil {
		opts.mutate(&cfg)
	}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithWarnFunc(func(string, ...any) {})
	if opts.notifier != nil {
		b.WithNotifier(opts.notifier)
	}
	if opts.memberships != nil {
		b.WithMembershipProvider(opts.memberships)
	}
	if opts.sessionEnds != nil {
		b.WithSessionEndRecorder(opts.sessionEnds)
	}
	if opts.auditSink != nil {
		b.WithAuditSink(opts.auditSink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// hashPassword runs the engine's own Argon2 parameters so seeded users carry
// hashes the engine can verify.
func hashPassword(t *testing.T, pass string) string {
	t.Helper()

	cfg := testConfig()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	hash, err := hasher.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return hash
}

func seedUser(t *testing.T, id, username, pass string, roles ...string) *Identity {
	t.Helper()

	refs := make([]RoleRef, 0, len(roles))
	for _, r := range roles {
		refs = append(refs, RoleRef{ID: r})
	}
	u := &Identity{
		ID:       id,
		TenantID: "t1",
		Username: username,
		Roles:    refs,
	}
	if pass != "" {
		u.PasswordHash = hashPassword(t, pass)
	}
	return u
}
