package clinicauth

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestAuditDispatcherDeliversLoginEvent(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	sink := NewChannelSink(16)
	store := newMockCredentialStore(seedUser(t, "u1", "alice", "correct-horse-1"))
	engine := newTestEngine(t, rdb, store, testEngineOptions{
		auditSink: sink,
		mutate: func(cfg *Config) {
			cfg.Audit = AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: false}
		},
	})

	if _, err := engine.Login(WithClientIP(ctx, "10.0.0.9"), "alice", "correct-horse-1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != "login" {
			t.Fatalf("expected login event, got %s", event.EventType)
		}
		if !event.Success || event.UserID != "u1" || event.SessionID == "" {
			t.Fatalf("unexpected event payload: %+v", event)
		}
		if event.IP != "10.0.0.9" {
			t.Fatalf("expected client ip on event, got %q", event.IP)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8, DropIfFull: false}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "logout"})
	}
	d.Close()

	received := 0
	for {
		select {
		case <-sink.Events():
			received++
		default:
			if received != 3 {
				t.Fatalf("expected 3 events after drain, got %d", received)
			}
			return
		}
	}
}

type gatedSink struct {
	mu      sync.Mutex
	gate    chan struct{}
	emitted int
}

func (s *gatedSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.gate
	s.mu.Lock()
	s.emitted++
	s.mu.Unlock()
}

func TestAuditDispatcherDropsUnderBackpressure(t *testing.T) {
	sink := &gatedSink{gate: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event stalls in the sink, one fills the buffer, the rest drop.
	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "refresh"})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}

	close(sink.gate)
	d.Close()
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventType: "password_change", UserID: "u1", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: "logout", UserID: "u1", Success: true})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var event AuditEvent
	if err := json.Unmarshal(lines[0], &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if event.EventType != "password_change" || event.UserID != "u1" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestAuditDisabledIsInert(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("expected nil dispatcher when audit is disabled")
	}
	// nil receivers must be safe; the engine calls these unconditionally.
	d.Emit(context.Background(), AuditEvent{EventType: "login"})
	if d.Dropped() != 0 {
		t.Fatal("expected zero drops on nil dispatcher")
	}
	d.Close()
}
