// Package runtime hosts the coordinator's stateful components: the
// connection registry, the message router, the notification fanout and
// the call signaling relay. It contains no transport or storage code.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
)

type watcherSet map[string]domain.Identity

// Registry tracks the mapping from a logical identity to its live
// connections and derives presence from it. One identity may own several
// concurrent connections (multi-tab, multi-device).
//
// An identity going to zero connections is not immediately offline: a
// bounded grace period absorbs reconnect-on-navigation. After the grace
// window, offline is authoritative and is broadcast to watchers.
type Registry struct {
	mu          sync.Mutex
	log         *slog.Logger
	gracePeriod time.Duration

	connections map[string][]contract.EventSink
	identities  map[string]domain.Identity
	lastSeen    map[string]time.Time
	// watchers maps an observed identity to the identities interested in
	// its transitions. Watches placed by an identity are dropped when
	// that identity itself goes offline.
	watchers      map[string]watcherSet
	offlineTimers map[string]*time.Timer
	listeners     []contract.PresenceListener
}

func NewRegistry(log *slog.Logger, gracePeriod time.Duration) *Registry {
	return &Registry{
		log:           log,
		gracePeriod:   gracePeriod,
		connections:   make(map[string][]contract.EventSink),
		identities:    make(map[string]domain.Identity),
		lastSeen:      make(map[string]time.Time),
		watchers:      make(map[string]watcherSet),
		offlineTimers: make(map[string]*time.Timer),
	}
}

// AddPresenceListener registers a component (e.g. the call relay) that
// must observe authoritative offline transitions. Listeners are expected
// to be wired once at boot, before connections arrive.
func (r *Registry) AddPresenceListener(listener contract.PresenceListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Register adds a connection under the identity and reports whether it
// is the identity's first live connection. The online transition is
// broadcast only when the identity was authoritatively offline before,
// so a reconnect inside the grace window stays silent.
func (r *Registry) Register(identity domain.Identity, sink contract.EventSink) bool {
	key := identity.Key()

	r.mu.Lock()
	wasOnline := len(r.connections[key]) > 0
	if timer, ok := r.offlineTimers[key]; ok {
		timer.Stop()
		delete(r.offlineTimers, key)
		wasOnline = true
	}
	r.connections[key] = append(r.connections[key], sink)
	r.identities[key] = identity
	first := len(r.connections[key]) == 1

	var record domain.PresenceRecord
	var targets []contract.EventSink
	var listeners []contract.PresenceListener
	if !wasOnline {
		record = domain.PresenceRecord{Identity: identity, Online: true, LastSeenAt: time.Now().UTC()}
		targets = r.watcherSinksLocked(key)
		listeners = append(listeners, r.listeners...)
	}
	r.mu.Unlock()

	if !wasOnline {
		r.broadcastPresence(record, targets, listeners)
	}
	return first
}

// Unregister removes the connection. When the identity has zero
// remaining connections the offline transition is scheduled after the
// grace period (immediately when the period is zero).
func (r *Registry) Unregister(identity domain.Identity, sink contract.EventSink) {
	key := identity.Key()

	r.mu.Lock()
	sinks := r.connections[key]
	for i, s := range sinks {
		if s.ID() == sink.ID() {
			sinks = append(sinks[:i], sinks[i+1:]...)
			break
		}
	}
	if len(sinks) > 0 {
		r.connections[key] = sinks
		r.mu.Unlock()
		return
	}
	delete(r.connections, key)
	r.lastSeen[key] = time.Now().UTC()

	if r.gracePeriod <= 0 {
		r.mu.Unlock()
		r.goOffline(key)
		return
	}
	if timer, ok := r.offlineTimers[key]; ok {
		timer.Stop()
	}
	r.offlineTimers[key] = time.AfterFunc(r.gracePeriod, func() { r.goOffline(key) })
	r.mu.Unlock()
}

// goOffline makes the offline state authoritative, notifies watchers and
// listeners, and drops the presence subscriptions held by the identity.
func (r *Registry) goOffline(key string) {
	r.mu.Lock()
	delete(r.offlineTimers, key)
	if len(r.connections[key]) > 0 {
		// A connection sneaked back in before the timer fired.
		r.mu.Unlock()
		return
	}
	identity, known := r.identities[key]
	if !known {
		r.mu.Unlock()
		return
	}
	record := domain.PresenceRecord{Identity: identity, Online: false, LastSeenAt: r.lastSeen[key]}
	targets := r.watcherSinksLocked(key)
	listeners := append([]contract.PresenceListener(nil), r.listeners...)
	for observed, set := range r.watchers {
		delete(set, key)
		if len(set) == 0 {
			delete(r.watchers, observed)
		}
	}
	r.mu.Unlock()

	r.log.Debug("Identity offline", "identity", key)
	r.broadcastPresence(record, targets, listeners)
}

// Resolve returns the identity's live connections, empty if offline.
// Deliverers must treat an empty result as "persist only", never as an
// error.
func (r *Registry) Resolve(identity domain.Identity) []contract.EventSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]contract.EventSink(nil), r.connections[identity.Key()]...)
}

// ResolveOthers returns the identity's connections except the one the
// triggering action came from. Used for multi-device echo.
func (r *Registry) ResolveOthers(identity domain.Identity, exceptConnID string) []contract.EventSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []contract.EventSink
	for _, s := range r.connections[identity.Key()] {
		if s.ID() != exceptConnID {
			out = append(out, s)
		}
	}
	return out
}

// Online reports whether the identity currently holds at least one live
// connection (a pending grace timer still counts as online).
func (r *Registry) Online(identity domain.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identity.Key()
	if len(r.connections[key]) > 0 {
		return true
	}
	_, pending := r.offlineTimers[key]
	return pending
}

// Presence returns the identity's derived presence record.
func (r *Registry) Presence(identity domain.Identity) domain.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identity.Key()
	online := len(r.connections[key]) > 0
	if _, pending := r.offlineTimers[key]; pending {
		online = true
	}
	return domain.PresenceRecord{Identity: identity, Online: online, LastSeenAt: r.lastSeen[key]}
}

// SubscribeToPresence registers that interestedIn wants to be told about
// target's online/offline transitions. The subscription dies with the
// subscriber's own offline transition.
func (r *Registry) SubscribeToPresence(target, interestedIn domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := target.Key()
	if _, ok := r.watchers[key]; !ok {
		r.watchers[key] = make(watcherSet)
	}
	r.watchers[key][interestedIn.Key()] = interestedIn
}

// Counts samples the registry sizes for telemetry.
func (r *Registry) Counts() (identities, connections int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sinks := range r.connections {
		connections += len(sinks)
	}
	return len(r.connections), connections
}

// watcherSinksLocked resolves the live connections of every watcher of
// the given identity. Caller holds the mutex.
func (r *Registry) watcherSinksLocked(key string) []contract.EventSink {
	var out []contract.EventSink
	for watcherKey := range r.watchers[key] {
		out = append(out, r.connections[watcherKey]...)
	}
	return out
}

// broadcastPresence pushes the transition outside the registry lock so a
// slow sink can never stall registry operations.
func (r *Registry) broadcastPresence(record domain.PresenceRecord,
	targets []contract.EventSink, listeners []contract.PresenceListener) {
	evt := event.Presence{Identity: record.Identity, Online: record.Online, LastSeenAt: record.LastSeenAt}
	ctx := context.Background()
	for _, sink := range targets {
		_ = sink.Consume(ctx, evt)
	}
	for _, l := range listeners {
		l.PresenceChanged(record)
	}
}
