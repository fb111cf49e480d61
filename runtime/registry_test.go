package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"telecare/domain"
	"telecare/domain/event"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// captureSink records every pushed event. Shared by the runtime tests.
type captureSink struct {
	id     string
	mu     sync.Mutex
	events []event.DomainEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{id: uuid.NewString()}
}

func (s *captureSink) ID() string {
	return s.id
}

func (s *captureSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

func (s *captureSink) Named(name string) []event.DomainEvent {
	var out []event.DomainEvent
	for _, e := range s.Events() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func TestRegistry_Register_FirstConnection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLog, 0)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}

	// When the identity connects twice (two tabs)
	first := registry.Register(alice, newCaptureSink())
	second := registry.Register(alice, newCaptureSink())

	// Then only the first registration is reported as first
	req.True(first)
	req.False(second)
	req.Len(registry.Resolve(alice), 2)
	req.True(registry.Online(alice))
}

func TestRegistry_ResolveOthers_ExcludesOrigin(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLog, 0)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	tab1 := newCaptureSink()
	tab2 := newCaptureSink()
	registry.Register(alice, tab1)
	registry.Register(alice, tab2)

	others := registry.ResolveOthers(alice, tab1.ID())

	req.Len(others, 1)
	req.Equal(tab2.ID(), others[0].ID())
}

func TestRegistry_Unregister_LastConnectionGoesOffline(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLog, 0)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	sink := newCaptureSink()
	registry.Register(alice, sink)

	// When the only connection drops with no grace period
	registry.Unregister(alice, sink)

	// Then offline is immediate and authoritative
	req.False(registry.Online(alice))
	req.Empty(registry.Resolve(alice))
	req.False(registry.Presence(alice).Online)
	req.False(registry.Presence(alice).LastSeenAt.IsZero())
}

func TestRegistry_GracePeriod_AbsorbsReconnect(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLog, 50*time.Millisecond)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	bobSink := newCaptureSink()
	registry.Register(bob, bobSink)
	registry.SubscribeToPresence(alice, bob)

	sink := newCaptureSink()
	registry.Register(alice, sink)

	// When the connection drops and reconnects inside the grace window
	registry.Unregister(alice, sink)
	req.True(registry.Online(alice))
	registry.Register(alice, newCaptureSink())

	// Then the watcher never sees an offline transition
	time.Sleep(100 * time.Millisecond)
	req.True(registry.Online(alice))
	req.Empty(bobSink.Named("presence"))
}

func TestRegistry_GracePeriod_ExpiresToOffline(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLog, 20*time.Millisecond)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	bobSink := newCaptureSink()
	registry.Register(bob, bobSink)
	registry.SubscribeToPresence(alice, bob)

	sink := newCaptureSink()
	registry.Register(alice, sink)

	// When the last connection drops and the grace window elapses
	registry.Unregister(alice, sink)

	// Then offline becomes authoritative and the watcher is told once
	req.Eventually(func() bool { return !registry.Online(alice) },
		time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return len(bobSink.Named("presence")) == 1 },
		time.Second, 5*time.Millisecond)
	presence := bobSink.Named("presence")[0].(event.Presence)
	req.Equal(alice, presence.Identity)
	req.False(presence.Online)
}

func TestRegistry_OnlineTransition_NotifiesWatcher(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLog, 0)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	bobSink := newCaptureSink()
	registry.Register(bob, bobSink)
	registry.SubscribeToPresence(alice, bob)

	// When the observed identity comes online
	registry.Register(alice, newCaptureSink())

	events := bobSink.Named("presence")
	req.Len(events, 1)
	req.True(events[0].(event.Presence).Online)
}

type recordingListener struct {
	mu      sync.Mutex
	records []domain.PresenceRecord
}

func (l *recordingListener) PresenceChanged(record domain.PresenceRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
}

func (l *recordingListener) Records() []domain.PresenceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.PresenceRecord(nil), l.records...)
}

func TestRegistry_Listener_SeesAuthoritativeOffline(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(testLog, 0)
	listener := &recordingListener{}
	registry.AddPresenceListener(listener)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	sink := newCaptureSink()

	registry.Register(alice, sink)
	registry.Unregister(alice, sink)

	records := listener.Records()
	req.Len(records, 2)
	req.True(records[0].Online)
	req.False(records[1].Online)
}
