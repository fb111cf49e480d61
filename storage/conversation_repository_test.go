package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"telecare/domain"
	domainerrors "telecare/errors"
)

func newTestRepository(t *testing.T, pageLimit *int) ConversationRepository {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewConversationRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)), pageLimit)
}

func newMessage(conversation domain.ConversationID, sender domain.Identity, payload string) *domain.Message {
	return &domain.Message{
		ID:           uuid.New(),
		Conversation: conversation,
		Sender:       sender,
		Kind:         domain.KindText,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestConversationRepository_Append_AssignsSequence(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, nil)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	conversation := domain.ConversationBetween(alice, bob)

	// When three messages are appended
	for i := 0; i < 3; i++ {
		message := newMessage(conversation, alice, "msg")
		req.NoError(repository.Append(ctx, message))
		req.Equal(uint64(i+1), message.SentSeq)
	}

	// Then the counter is per conversation, not global
	otherConversation := domain.ConversationBetween(alice, domain.Identity{Role: domain.RoleAdmin, ID: "eve"})
	message := newMessage(otherConversation, alice, "msg")
	req.NoError(repository.Append(ctx, message))
	req.Equal(uint64(1), message.SentSeq)
}

func TestConversationRepository_ListSince_PaginatesBackwards(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	limit := 2
	repository := newTestRepository(t, &limit)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	conversation := domain.ConversationBetween(alice, bob)
	for i := 0; i < 5; i++ {
		req.NoError(repository.Append(ctx, newMessage(conversation, alice, "msg")))
	}

	// When the newest page is requested
	page, cursor, err := repository.ListSince(ctx, conversation, nil)
	req.NoError(err)
	req.NotNil(cursor)

	// Then it holds the two newest messages in ascending order
	req.Len(page, 2)
	req.Equal(uint64(4), page[0].SentSeq)
	req.Equal(uint64(5), page[1].SentSeq)

	// And the cursor continues toward older messages
	page, cursor, err = repository.ListSince(ctx, conversation, cursor)
	req.NoError(err)
	req.Len(page, 2)
	req.Equal(uint64(2), page[0].SentSeq)
	req.Equal(uint64(3), page[1].SentSeq)

	page, _, err = repository.ListSince(ctx, conversation, cursor)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(uint64(1), page[0].SentSeq)
}

func TestConversationRepository_Get_UnknownID(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)

	_, err := repository.Get(context.Background(), uuid.New())

	req.ErrorIs(err, domainerrors.ErrUnknownMessage)
}

func TestConversationRepository_MarkDelivered_AppliedOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, nil)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	conversation := domain.ConversationBetween(alice, bob)
	message := newMessage(conversation, alice, "hello")
	req.NoError(repository.Append(ctx, message))

	applied, err := repository.MarkDelivered(ctx, message.ID, bob, time.Now().UTC())
	req.NoError(err)
	req.True(applied)

	// Re-applying is a no-op, not an error
	applied, err = repository.MarkDelivered(ctx, message.ID, bob, time.Now().UTC())
	req.NoError(err)
	req.False(applied)

	// Unknown id is also a no-op
	applied, err = repository.MarkDelivered(ctx, uuid.New(), bob, time.Now().UTC())
	req.NoError(err)
	req.False(applied)
}

func TestConversationRepository_MarkConversationRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, nil)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	conversation := domain.ConversationBetween(alice, bob)
	for i := 0; i < 3; i++ {
		req.NoError(repository.Append(ctx, newMessage(conversation, alice, "msg")))
	}

	// When bob reads the conversation
	updated, err := repository.MarkConversationRead(ctx, conversation, bob, time.Now().UTC())
	req.NoError(err)

	// Then every message is newly marked, in sequence order
	req.Len(updated, 3)
	for i, m := range updated {
		req.Equal(uint64(i+1), m.SentSeq)
		req.True(m.ReadFor(bob))
	}

	// And a second read marks nothing
	updated, err = repository.MarkConversationRead(ctx, conversation, bob, time.Now().UTC())
	req.NoError(err)
	req.Empty(updated)
}

func TestConversationRepository_SoftDelete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, nil)
	alice := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	bob := domain.Identity{Role: domain.RoleProvider, ID: "bob"}
	conversation := domain.ConversationBetween(alice, bob)
	message := newMessage(conversation, alice, "secret")
	req.NoError(repository.Append(ctx, message))

	deleted, err := repository.SoftDelete(ctx, message.ID)
	req.NoError(err)
	req.True(deleted.Deleted)
	req.Empty(deleted.Payload)
	req.Equal(message.SentSeq, deleted.SentSeq)

	// Idempotent
	_, err = repository.SoftDelete(ctx, message.ID)
	req.NoError(err)

	// Unknown id errors
	_, err = repository.SoftDelete(ctx, uuid.New())
	req.ErrorIs(err, domainerrors.ErrUnknownMessage)
}
