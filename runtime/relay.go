package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
	"telecare/errors"
)

// Relay manages the ephemeral two-party call rooms and forwards
// signaling payloads between the participants' live connections.
//
// Everything here is fire-and-forget: when the target identity has no
// live connection the payload is dropped, with no persistence and no
// retry. Call signaling is only meaningful in real time.
type Relay struct {
	log         *slog.Logger
	registry    contract.ConnectionRegistry
	idleTimeout time.Duration

	mu    sync.Mutex
	rooms map[string]*domain.CallRoom
}

func NewRelay(log *slog.Logger, registry contract.ConnectionRegistry, idleTimeout time.Duration) *Relay {
	return &Relay{
		log:         log,
		registry:    registry,
		idleTimeout: idleTimeout,
		rooms:       make(map[string]*domain.CallRoom),
	}
}

// Join admits the identity into the appointment's room, creating the
// room on first join. When the second distinct identity enters, the
// first participant is told a peer joined, which triggers the
// offer-creation step on their client. A third identity is rejected
// with a capacity error and no state change.
func (r *Relay) Join(ctx context.Context, appointmentID string, identity domain.Identity) error {
	now := time.Now().UTC()

	r.mu.Lock()
	room, ok := r.rooms[appointmentID]
	if !ok {
		r.rooms[appointmentID] = domain.NewCallRoom(appointmentID, identity, now)
		r.mu.Unlock()
		r.log.Debug("Call room created", "appointment_id", appointmentID, "identity", identity)
		return nil
	}
	becameActive, err := room.Join(identity, now)
	var waiting domain.Identity
	if becameActive {
		waiting = room.ParticipantA
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if becameActive {
		evt := event.PeerJoined{AppointmentID: appointmentID, Identity: identity}
		for _, sink := range r.registry.Resolve(waiting) {
			_ = sink.Consume(ctx, evt)
		}
	}
	return nil
}

// Signal relays an offer, answer or ICE payload verbatim to the other
// participant's connections. The payload is never parsed: a malformed
// blob is still relayed byte-for-byte and it is the client's job to
// reject garbage.
func (r *Relay) Signal(ctx context.Context, kind event.SignalKind, appointmentID string,
	from domain.Identity, payload json.RawMessage) error {
	if !kind.Valid() {
		return errors.ErrInvalidPayload
	}

	r.mu.Lock()
	room, ok := r.rooms[appointmentID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: appointment=%s", errors.ErrUnknownRoom, appointmentID)
	}
	if !room.HasParticipant(from) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s in room %s", errors.ErrNotAParticipant, from, appointmentID)
	}
	other, present := room.Other(from)
	room.LastActivity = time.Now().UTC()
	r.mu.Unlock()

	if !present {
		// Nobody on the other side yet; fire-and-forget means drop.
		return nil
	}
	evt := event.CallSignal{Kind: kind, AppointmentID: appointmentID, From: from, Payload: payload}
	for _, sink := range r.registry.Resolve(other) {
		_ = sink.Consume(ctx, evt)
	}
	return nil
}

// End terminates the room on behalf of a participant. ENDED is terminal:
// the room is removed and a later join for the same appointment creates
// a brand-new one. Ending an unknown room is a no-op so that both
// parties hanging up at once never surfaces an error.
func (r *Relay) End(ctx context.Context, appointmentID string, from domain.Identity, reason string) error {
	r.mu.Lock()
	room, ok := r.rooms[appointmentID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if !room.HasParticipant(from) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s in room %s", errors.ErrNotAParticipant, from, appointmentID)
	}
	other, present := room.Other(from)
	room.State = domain.CallEnded
	delete(r.rooms, appointmentID)
	r.mu.Unlock()

	r.log.Debug("Call room ended", "appointment_id", appointmentID, "by", from, "reason", reason)
	if present {
		r.notifyEnded(ctx, appointmentID, reason, other)
	}
	return nil
}

// PresenceChanged implements contract.PresenceListener: when a call
// participant's offline state becomes authoritative, every room they
// were in ends and the remaining participant gets exactly one end-call.
func (r *Relay) PresenceChanged(record domain.PresenceRecord) {
	if record.Online {
		return
	}

	type ending struct {
		appointmentID string
		remaining     domain.Identity
		present       bool
	}
	var endings []ending

	r.mu.Lock()
	for id, room := range r.rooms {
		if !room.HasParticipant(record.Identity) {
			continue
		}
		other, present := room.Other(record.Identity)
		room.State = domain.CallEnded
		delete(r.rooms, id)
		endings = append(endings, ending{appointmentID: id, remaining: other, present: present})
	}
	r.mu.Unlock()

	ctx := context.Background()
	for _, e := range endings {
		r.log.Debug("Call room ended by disconnect",
			"appointment_id", e.appointmentID, "identity", record.Identity)
		if e.present {
			r.notifyEnded(ctx, e.appointmentID, "peer-disconnected", e.remaining)
		}
	}
}

// Sweep force-ends rooms with no join/relay activity for the configured
// idle timeout and returns how many were ended. Called periodically by
// the room sweeper worker.
func (r *Relay) Sweep(now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}

	type ending struct {
		appointmentID string
		participants  []domain.Identity
	}
	var endings []ending

	r.mu.Lock()
	for id, room := range r.rooms {
		if room.IdleSince(now, r.idleTimeout) {
			room.State = domain.CallEnded
			delete(r.rooms, id)
			endings = append(endings, ending{appointmentID: id, participants: room.Participants()})
		}
	}
	r.mu.Unlock()

	ctx := context.Background()
	for _, e := range endings {
		r.log.Info("Idle call room swept", "appointment_id", e.appointmentID)
		for _, p := range e.participants {
			r.notifyEnded(ctx, e.appointmentID, "idle-timeout", p)
		}
	}
	return len(endings)
}

// RoomCount samples the active room count for telemetry.
func (r *Relay) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Relay) notifyEnded(ctx context.Context, appointmentID, reason string, to domain.Identity) {
	evt := event.CallEnded{AppointmentID: appointmentID, Reason: reason}
	for _, sink := range r.registry.Resolve(to) {
		_ = sink.Consume(ctx, evt)
	}
}
