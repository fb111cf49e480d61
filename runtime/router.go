package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
	"telecare/errors"
	"telecare/moderation"
)

// Router accepts send requests, assigns ordering through the store,
// and delivers to the live connections of both participants.
//
// Per-conversation serialization is the one hard requirement here: two
// racing sends into the same conversation must still observe strictly
// increasing sentSeq. Each conversation owns a lazily created lock; the
// lock covers store mutations only, never socket pushes, so a slow
// client cannot stall a conversation.
type Router struct {
	log      *slog.Logger
	store    contract.ConversationStore
	registry contract.ConnectionRegistry
	filter   *moderation.Filter

	mu    sync.Mutex
	locks map[domain.ConversationID]*sync.Mutex
}

func NewRouter(log *slog.Logger, store contract.ConversationStore,
	registry contract.ConnectionRegistry, filter *moderation.Filter) *Router {
	return &Router{
		log:      log,
		store:    store,
		registry: registry,
		filter:   filter,
		locks:    make(map[domain.ConversationID]*sync.Mutex),
	}
}

// Send persists the message with the next sentSeq and attempts immediate
// delivery to every live connection of the recipient plus the sender's
// other connections. An offline recipient is not an error: the message
// is durably appended and delivery happens on a later observe.
func (r *Router) Send(ctx context.Context, sender, recipient domain.Identity,
	kind domain.Kind, payload, originConnID string) (domain.Message, error) {
	if !kind.Valid() {
		return domain.Message{}, errors.ErrInvalidKind
	}
	if sender == recipient {
		return domain.Message{}, fmt.Errorf("%w: cannot message yourself", errors.ErrInvalidIdentity)
	}

	conversation := domain.ConversationBetween(sender, recipient)
	message := domain.Message{
		ID:           uuid.New(),
		Conversation: conversation,
		Sender:       sender,
		Kind:         kind,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
	if kind == domain.KindText && r.filter != nil {
		censored, hit := r.filter.Censor(payload)
		message.Payload = censored
		message.Lang = moderation.Lang(payload)
		if hit {
			r.log.Debug("Message payload censored",
				"conversation", conversation, "lang", message.Lang)
		}
	}

	lock := r.conversationLock(conversation)
	lock.Lock()
	err := r.store.Append(ctx, &message)
	lock.Unlock()
	if err != nil {
		return domain.Message{}, err
	}

	r.deliver(ctx, &message, originConnID)
	return message, nil
}

// deliver pushes the message to the recipient's connections and echoes
// it to the sender's other devices, then records one delivery receipt
// per identity that got at least one successful push.
func (r *Router) deliver(ctx context.Context, message *domain.Message, originConnID string) {
	recipient, err := message.Conversation.Other(message.Sender)
	if err != nil {
		r.log.Error("Undeliverable message", "conversation", message.Conversation, "error", err)
		return
	}

	evt := event.MessageReceived{Message: *message}
	for _, target := range []struct {
		identity domain.Identity
		sinks    []contract.EventSink
	}{
		{recipient, r.registry.Resolve(recipient)},
		{message.Sender, r.registry.ResolveOthers(message.Sender, originConnID)},
	} {
		pushed := false
		for _, sink := range target.sinks {
			if sink.Consume(ctx, evt) == nil {
				pushed = true
			}
		}
		if pushed {
			r.recordDelivery(ctx, message, target.identity)
		}
	}
}

// ObserveDelivered records delivery for messages an identity just
// observed through history replay. The receipt is applied per identity,
// exactly once, even when the identity observes from two tabs at once.
func (r *Router) ObserveDelivered(ctx context.Context, messages []domain.Message, observer domain.Identity) {
	for i := range messages {
		if messages[i].Sender == observer || messages[i].DeliveredFor(observer) {
			continue
		}
		r.recordDelivery(ctx, &messages[i], observer)
	}
}

// recordDelivery applies the receipt under the conversation lock and, if
// it was newly applied, emits one delivered event to both participants.
func (r *Router) recordDelivery(ctx context.Context, message *domain.Message, identity domain.Identity) {
	at := time.Now().UTC()

	lock := r.conversationLock(message.Conversation)
	lock.Lock()
	applied, err := r.store.MarkDelivered(ctx, message.ID, identity, at)
	lock.Unlock()
	if err != nil {
		r.log.Warn("Failed to record delivery receipt",
			"message_id", message.ID, "identity", identity, "error", err)
		return
	}
	if !applied {
		return
	}

	evt := event.Delivered{
		MessageID:    message.ID,
		Conversation: message.Conversation,
		Identity:     identity,
		At:           at,
	}
	r.broadcast(ctx, message.Conversation, evt)
}

// MarkRead applies a read receipt to every message of the conversation
// not yet read by the reader and pushes one batched readBy event to both
// participants' connections.
func (r *Router) MarkRead(ctx context.Context, conversation domain.ConversationID, reader domain.Identity) error {
	if !conversation.HasParticipant(reader) {
		return fmt.Errorf("%w: %s in conversation %s", errors.ErrNotAParticipant, reader, conversation)
	}
	at := time.Now().UTC()

	lock := r.conversationLock(conversation)
	lock.Lock()
	updated, err := r.store.MarkConversationRead(ctx, conversation, reader, at)
	lock.Unlock()
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return nil
	}

	seqs := make([]uint64, len(updated))
	for i, m := range updated {
		seqs[i] = m.SentSeq
	}
	r.broadcast(ctx, conversation, event.ReadBy{
		Conversation: conversation,
		Identity:     reader,
		At:           at,
		Seqs:         seqs,
	})
	return nil
}

// Delete tombstones a message. Only the original sender may delete; the
// deletion event fans out to all participants so every device drops the
// payload.
func (r *Router) Delete(ctx context.Context, messageID uuid.UUID, requester domain.Identity) error {
	message, err := r.store.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if message.Sender != requester {
		return fmt.Errorf("%w: %s on message %s", errors.ErrNotSender, requester, messageID)
	}

	lock := r.conversationLock(message.Conversation)
	lock.Lock()
	_, err = r.store.SoftDelete(ctx, messageID)
	lock.Unlock()
	if err != nil {
		return err
	}

	r.broadcast(ctx, message.Conversation, event.MessageDeleted{
		MessageID:    messageID,
		Conversation: message.Conversation,
	})
	return nil
}

// Typing relays an ephemeral typing signal to the other participant's
// live connections. Best effort, never persisted.
func (r *Router) Typing(ctx context.Context, conversation domain.ConversationID,
	from domain.Identity, active bool) error {
	other, err := conversation.Other(from)
	if err != nil {
		return err
	}
	var evt event.DomainEvent
	if active {
		evt = event.Typing{Conversation: conversation, Identity: from}
	} else {
		evt = event.StopTyping{Conversation: conversation, Identity: from}
	}
	for _, sink := range r.registry.Resolve(other) {
		_ = sink.Consume(ctx, evt)
	}
	return nil
}

// History returns one page of the conversation and records delivery
// receipts for everything the reader just observed (reconnect replay).
func (r *Router) History(ctx context.Context, conversation domain.ConversationID,
	reader domain.Identity, cursor *string) (event.History, error) {
	if !conversation.HasParticipant(reader) {
		return event.History{}, fmt.Errorf("%w: %s in conversation %s", errors.ErrNotAParticipant, reader, conversation)
	}
	messages, next, err := r.store.ListSince(ctx, conversation, cursor)
	if err != nil {
		return event.History{}, err
	}
	r.ObserveDelivered(ctx, messages, reader)
	return event.History{Conversation: conversation, Messages: messages, Cursor: next}, nil
}

// broadcast pushes an event to every live connection of both
// conversation participants.
func (r *Router) broadcast(ctx context.Context, conversation domain.ConversationID, evt event.DomainEvent) {
	a, b, err := conversation.Participants()
	if err != nil {
		return
	}
	for _, identity := range []domain.Identity{a, b} {
		for _, sink := range r.registry.Resolve(identity) {
			_ = sink.Consume(ctx, evt)
		}
	}
}

// conversationLock returns the serialization point for a conversation,
// creating it on first use.
func (r *Router) conversationLock(conversation domain.ConversationID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[conversation]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[conversation] = lock
	}
	return lock
}
