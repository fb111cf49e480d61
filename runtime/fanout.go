package runtime

import (
	"context"
	"log/slog"
	"sync"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
)

// Fanout maintains the per-identity unread counter and pushes every
// change to that identity's live connections only.
//
// The pushed count is always the authoritative server-side value:
// clients must treat each push as a replace, never as an increment, so
// reordered delivery can never make them drift.
type Fanout struct {
	log      *slog.Logger
	registry contract.ConnectionRegistry

	mu     sync.Mutex
	counts map[string]int
}

func NewFanout(log *slog.Logger, registry contract.ConnectionRegistry) *Fanout {
	return &Fanout{
		log:      log,
		registry: registry,
		counts:   make(map[string]int),
	}
}

// Increment raises the unread counter. Called by external notification
// producers (appointment events, system events) through the service
// layer.
func (f *Fanout) Increment(ctx context.Context, identity domain.Identity, amount int) {
	if amount <= 0 {
		amount = 1
	}
	f.mu.Lock()
	f.counts[identity.Key()] += amount
	count := f.counts[identity.Key()]
	f.mu.Unlock()

	f.push(ctx, identity, count)
}

// SetAbsolute overwrites the counter with an authoritative value, e.g.
// when the CRUD layer recomputes it. Idempotent.
func (f *Fanout) SetAbsolute(ctx context.Context, identity domain.Identity, count int) {
	if count < 0 {
		count = 0
	}
	f.mu.Lock()
	f.counts[identity.Key()] = count
	f.mu.Unlock()

	f.push(ctx, identity, count)
}

// MarkRead decrements by one, never below zero.
func (f *Fanout) MarkRead(ctx context.Context, identity domain.Identity) {
	f.mu.Lock()
	if f.counts[identity.Key()] > 0 {
		f.counts[identity.Key()]--
	}
	count := f.counts[identity.Key()]
	f.mu.Unlock()

	f.push(ctx, identity, count)
}

// MarkAllRead zeroes the counter.
func (f *Fanout) MarkAllRead(ctx context.Context, identity domain.Identity) {
	f.zero(ctx, identity)
}

// Clear zeroes the counter after a purge.
func (f *Fanout) Clear(ctx context.Context, identity domain.Identity) {
	f.zero(ctx, identity)
}

// Publish passes a notification through to the identity's connections
// and bumps the counter, which triggers the usual count push.
func (f *Fanout) Publish(ctx context.Context, identity domain.Identity, title, message string) {
	evt := event.NewNotification{Title: title, Message: message}
	for _, sink := range f.registry.Resolve(identity) {
		_ = sink.Consume(ctx, evt)
	}
	f.Increment(ctx, identity, 1)
}

// Current returns the authoritative count, used to seed a connection
// right after it registers.
func (f *Fanout) Current(identity domain.Identity) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[identity.Key()]
}

// PushCurrent sends the authoritative count to the identity, typically
// on connect.
func (f *Fanout) PushCurrent(ctx context.Context, identity domain.Identity) {
	f.push(ctx, identity, f.Current(identity))
}

func (f *Fanout) zero(ctx context.Context, identity domain.Identity) {
	f.mu.Lock()
	f.counts[identity.Key()] = 0
	f.mu.Unlock()

	f.push(ctx, identity, 0)
}

// push fans the absolute count out to the owning identity's connections,
// never to anyone else's.
func (f *Fanout) push(ctx context.Context, identity domain.Identity, count int) {
	evt := event.NotificationCount{UnreadCount: count}
	for _, sink := range f.registry.Resolve(identity) {
		_ = sink.Consume(ctx, evt)
	}
}
