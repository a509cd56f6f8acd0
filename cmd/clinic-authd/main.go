package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/clinicore/clinicauth"
	"github.com/clinicore/clinicauth/httpapi"
	"github.com/redis/go-redis/v9"
)

func main() {
	fmt.Println("Starting clinic-authd...")

	addr := os.Getenv("CLINICAUTH_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	redisAddr := os.Getenv("CLINICAUTH_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	accessSecret := os.Getenv("CLINICAUTH_ACCESS_SECRET")
	refreshSecret := os.Getenv("CLINICAUTH_REFRESH_SECRET")
	if accessSecret == "" || refreshSecret == "" {
		log.Fatal("CLINICAUTH_ACCESS_SECRET and CLINICAUTH_REFRESH_SECRET are required")
	}

	usersFile := os.Getenv("CLINICAUTH_USERS_FILE")
	if usersFile == "" {
		usersFile = "./users.json"
	}

	credentials, err := loadFileCredentialStore(usersFile)
	if err != nil {
		log.Fatalf("Failed to load credential store: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Redis unreachable at %s: %v", redisAddr, err)
	}

	cfg := daemonConfig([]byte(accessSecret), []byte(refreshSecret))

	engine, err := clinicauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(credentials).
		WithNotifier(logNotifier{}).
		WithAuditSink(clinicauth.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	defer engine.Close()

	server := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(engine),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		fmt.Printf("Auth API listening on %s\n", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func daemonConfig(accessSecret, refreshSecret []byte) clinicauth.Config {
	return clinicauth.Config{
		JWT: clinicauth.JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
			Issuer:        "clinic-authd",
			Leeway:        30 * time.Second,
		},
		Session: clinicauth.SessionConfig{
			RedisPrefix:  "ca",
			MultiSession: os.Getenv("CLINICAUTH_MULTI_SESSION") == "true",
		},
		OTP: clinicauth.OTPConfig{
			Digits:          6,
			TTL:             5 * time.Minute,
			RetentionWindow: 30 * time.Minute,
			ResendCooldown:  30 * time.Second,
			MaxSendsPerHour: 5,
			DefaultChannel:  "sms",
		},
		Password: clinicauth.PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordReset: clinicauth.PasswordResetConfig{
			AllowedRoleIDs: splitEnvList("CLINICAUTH_RESET_ROLES"),
			OTPTTL:         10 * time.Minute,
		},
		MobileApp: clinicauth.MobileAppConfig{Enabled: true},
		Audit: clinicauth.AuditConfig{
			Enabled:    true,
			BufferSize: 512,
			DropIfFull: true,
		},
	}
}

func splitEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// logNotifier prints codes to the log. Stand-in for a real SMS/email
// gateway in local and demo deployments.
type logNotifier struct{}

func (logNotifier) Send(_ context.Context, identifier, code string, purpose clinicauth.OTPPurpose, channel string) error {
	log.Printf("clinic-authd: OTP for %s via %s (%s): %s", identifier, channel, purpose, code)
	return nil
}

// fileCredentialStore serves identities from a JSON file. Good enough for
// demos and integration environments; production deployments implement
// clinicauth.CredentialStore over their user database.
type fileCredentialStore struct {
	mu    sync.RWMutex
	path  string
	users map[string]*clinicauth.Identity // keyed by user id
	index map[string]string               // identifier -> user id
}

type fileUser struct {
	ID           string   `json:"id"`
	TenantID     string   `json:"tenantId"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Mobile       string   `json:"mobile"`
	PasswordHash string   `json:"passwordHash"`
	Locked       bool     `json:"locked"`
	RoleIDs      []string `json:"roleIds"`
	ClinicIDs    []string `json:"clinicIds"`
}

func loadFileCredentialStore(path string) (*fileCredentialStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var users []fileUser
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, err
	}

	s := &fileCredentialStore{
		path:  path,
		users: make(map[string]*clinicauth.Identity, len(users)),
		index: make(map[string]string),
	}
	for _, u := range users {
		roles := make([]clinicauth.RoleRef, 0, len(u.RoleIDs))
		for _, rid := range u.RoleIDs {
			roles = append(roles, clinicauth.RoleRef{ID: rid})
		}
		identity := &clinicauth.Identity{
			ID:           u.ID,
			TenantID:     u.TenantID,
			Username:     u.Username,
			Email:        u.Email,
			Mobile:       u.Mobile,
			PasswordHash: u.PasswordHash,
			Locked:       u.Locked,
			Roles:        roles,
			ClinicIDs:    u.ClinicIDs,
		}
		s.users[u.ID] = identity
		for _, identifier := range []string{u.Username, u.Email, u.Mobile} {
			if identifier != "" {
				s.index[identifier] = u.ID
			}
		}
	}
	return s, nil
}

func (s *fileCredentialStore) FindByIdentifier(_ context.Context, identifier string) (*clinicauth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.index[identifier]
	if !ok {
		return nil, nil
	}
	return cloneIdentity(s.users[id]), nil
}

func (s *fileCredentialStore) FindByID(_ context.Context, userID string) (*clinicauth.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIdentity(s.users[userID]), nil
}

func (s *fileCredentialStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("unknown user %s", userID)
	}
	user.PasswordHash = passwordHash
	return nil
}

func (s *fileCredentialStore) SetLocked(_ context.Context, userID string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("unknown user %s", userID)
	}
	user.Locked = locked
	return nil
}

func cloneIdentity(in *clinicauth.Identity) *clinicauth.Identity {
	if in == nil {
		return nil
	}
	out := *in
	out.Roles = append([]clinicauth.RoleRef(nil), in.Roles...)
	out.ClinicIDs = append([]string(nil), in.ClinicIDs...)
	return &out
}
