//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"

	"telecare/domain"
	"telecare/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live connection's outbound queue. Consume must never
// block the caller beyond the sink's own timeout; a slow consumer loses
// events, it never stalls a deliverer.
type EventSink interface {
	ID() string
	Consume(ctx context.Context, e event.DomainEvent) error
}

// ConnectionRegistry maps a logical identity to its zero or more live
// connections. Operations never error for valid inputs; resolving an
// unknown identity returns an empty set.
type ConnectionRegistry interface {
	Register(identity domain.Identity, sink EventSink) (first bool)
	Unregister(identity domain.Identity, sink EventSink)
	Resolve(identity domain.Identity) []EventSink
	ResolveOthers(identity domain.Identity, exceptConnID string) []EventSink
	Online(identity domain.Identity) bool
	Presence(identity domain.Identity) domain.PresenceRecord
	SubscribeToPresence(target, interestedIn domain.Identity)
	AddPresenceListener(listener PresenceListener)
}

// PresenceListener observes authoritative online/offline transitions.
type PresenceListener interface {
	PresenceChanged(record domain.PresenceRecord)
}

// ConversationStore is the adapter to the external durable message log.
// The coordinator calls it, never the reverse. Append assigns the next
// sentSeq for the conversation as a single atomic operation; callers
// serialize appends per conversation.
type ConversationStore interface {
	Append(ctx context.Context, message *domain.Message) error
	ListSince(ctx context.Context, conversation domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
	Get(ctx context.Context, messageID uuid.UUID) (domain.Message, error)
	MarkDelivered(ctx context.Context, messageID uuid.UUID, identity domain.Identity, at time.Time) (applied bool, err error)
	MarkConversationRead(ctx context.Context, conversation domain.ConversationID, reader domain.Identity, at time.Time) ([]domain.Message, error)
	SoftDelete(ctx context.Context, messageID uuid.UUID) (domain.Message, error)
}
