// Package services exposes the coordinator facade the transport layer
// talks to. It owns no state of its own: it composes the registry, the
// router, the fanout and the relay into the operations a connection can
// trigger.
package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
	"telecare/runtime"
)

type CoordinatorService struct {
	log      *slog.Logger
	registry contract.ConnectionRegistry
	router   *runtime.Router
	fanout   *runtime.Fanout
	relay    *runtime.Relay
}

func NewCoordinatorService(log *slog.Logger, registry contract.ConnectionRegistry,
	router *runtime.Router, fanout *runtime.Fanout, relay *runtime.Relay) *CoordinatorService {
	return &CoordinatorService{
		log:      log,
		registry: registry,
		router:   router,
		fanout:   fanout,
		relay:    relay,
	}
}

// Connect registers the connection under its authenticated identity and
// seeds it with the authoritative unread count.
func (s *CoordinatorService) Connect(ctx context.Context, identity domain.Identity, sink contract.EventSink) {
	first := s.registry.Register(identity, sink)
	s.log.Info("Connection registered",
		"identity", identity, "connection_id", sink.ID(), "first", first)
	s.fanout.PushCurrent(ctx, identity)
}

// Disconnect removes the connection; presence follows the grace window.
func (s *CoordinatorService) Disconnect(identity domain.Identity, sink contract.EventSink) {
	s.registry.Unregister(identity, sink)
	s.log.Info("Connection unregistered", "identity", identity, "connection_id", sink.ID())
}

// JoinConversation subscribes the caller to the other participant's
// presence transitions and pushes the current snapshot to the joining
// connection so the client renders the right indicator immediately.
func (s *CoordinatorService) JoinConversation(ctx context.Context, me, other domain.Identity,
	origin contract.EventSink) {
	s.registry.SubscribeToPresence(other, me)
	record := s.registry.Presence(other)
	_ = origin.Consume(ctx, event.Presence{
		Identity:   record.Identity,
		Online:     record.Online,
		LastSeenAt: record.LastSeenAt,
	})
}

func (s *CoordinatorService) Send(ctx context.Context, sender, recipient domain.Identity,
	kind domain.Kind, payload, originConnID string) (domain.Message, error) {
	return s.router.Send(ctx, sender, recipient, kind, payload, originConnID)
}

func (s *CoordinatorService) MarkRead(ctx context.Context, conversation domain.ConversationID,
	reader domain.Identity) error {
	return s.router.MarkRead(ctx, conversation, reader)
}

func (s *CoordinatorService) Delete(ctx context.Context, messageID uuid.UUID, requester domain.Identity) error {
	return s.router.Delete(ctx, messageID, requester)
}

func (s *CoordinatorService) Typing(ctx context.Context, conversation domain.ConversationID,
	from domain.Identity, active bool) error {
	return s.router.Typing(ctx, conversation, from, active)
}

func (s *CoordinatorService) History(ctx context.Context, conversation domain.ConversationID,
	reader domain.Identity, cursor *string) (event.History, error) {
	return s.router.History(ctx, conversation, reader, cursor)
}

func (s *CoordinatorService) JoinCall(ctx context.Context, appointmentID string, identity domain.Identity) error {
	return s.relay.Join(ctx, appointmentID, identity)
}

func (s *CoordinatorService) Signal(ctx context.Context, kind event.SignalKind, appointmentID string,
	from domain.Identity, payload json.RawMessage) error {
	return s.relay.Signal(ctx, kind, appointmentID, from, payload)
}

// LeaveCall ends the room on behalf of the leaving participant.
func (s *CoordinatorService) LeaveCall(ctx context.Context, appointmentID string, from domain.Identity) error {
	return s.relay.End(ctx, appointmentID, from, "peer-left")
}

// EndCall is the explicit hang-up.
func (s *CoordinatorService) EndCall(ctx context.Context, appointmentID string, from domain.Identity) error {
	return s.relay.End(ctx, appointmentID, from, "hang-up")
}

// Notify is called by the internal HTTP endpoint when the platform
// produces a notification for an identity.
func (s *CoordinatorService) Notify(ctx context.Context, identity domain.Identity, title, message string) {
	s.fanout.Publish(ctx, identity, title, message)
}

// SetUnread overwrites the counter with an authoritative recount.
func (s *CoordinatorService) SetUnread(ctx context.Context, identity domain.Identity, count int) {
	s.fanout.SetAbsolute(ctx, identity, count)
}

func (s *CoordinatorService) NotificationRead(ctx context.Context, identity domain.Identity) {
	s.fanout.MarkRead(ctx, identity)
}

func (s *CoordinatorService) AllNotificationsRead(ctx context.Context, identity domain.Identity) {
	s.fanout.MarkAllRead(ctx, identity)
}

func (s *CoordinatorService) NotificationsCleared(ctx context.Context, identity domain.Identity) {
	s.fanout.Clear(ctx, identity)
}
