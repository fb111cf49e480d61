// Package storage implements the conversation store adapter on top of
// BadgerDB: the durable per-conversation message log, the sequence
// counters, and the receipt/tombstone updates.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"telecare/domain"
	domainerrors "telecare/errors"
)

// Key layout:
//
//	msg:{conversation}:{seq_padded} -> message JSON
//	seq:{conversation}              -> last assigned sentSeq
//	id:{message_uuid}               -> full msg key
//
// The 12-digit zero padding keeps messages of a conversation in sentSeq
// order under Badger's lexicographic iteration, so a prefix scan is a
// replay and a reverse scan is history pagination.
const seqPadding = "%012d"

type ConversationRepository struct {
	db        *badger.DB
	log       *slog.Logger
	pageLimit *int
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, pageLimit *int) ConversationRepository {
	return ConversationRepository{db: db, log: log, pageLimit: pageLimit}
}

// Append persists the message with the next sentSeq for its
// conversation. The read-increment-write of the counter and the message
// insert happen in one transaction; the router serializes appends per
// conversation, so the counter never races.
func (r ConversationRepository) Append(_ context.Context, message *domain.Message) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		next, err := nextSeq(txn, message.Conversation)
		if err != nil {
			return err
		}
		message.SentSeq = next

		key := messageKey(message.Conversation, next)
		bytes, err := json.Marshal(message)
		if err != nil {
			return err
		}
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(message.ID), key)
	})
	if err != nil {
		return fmt.Errorf("%w: append: %v", domainerrors.ErrStoreUnavailable, err)
	}
	return nil
}

// ListSince retrieves one page of a conversation's history, newest page
// first but oldest-first inside the page. The returned cursor continues
// the scan toward older messages; nil input starts from the newest.
func (r ConversationRepository) ListSince(_ context.Context, conversation domain.ConversationID,
	cursor *string) ([]domain.Message, *string, error) {
	var messages []domain.Message
	var lastKey string

	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversation)
		prefix := []byte(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the highest possible seq, then walk backwards.
			seekKey = append(prefix, []byte("999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.pageLimit != nil && len(messages) == *r.pageLimit {
				r.log.Debug(fmt.Sprintf("History page limit of %d reached", *r.pageLimit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(value []byte) error {
				var m domain.Message
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list: %v", domainerrors.ErrStoreUnavailable, err)
	}

	// The reverse scan collected newest first; readers expect ascending
	// sentSeq order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, &lastKey, nil
}

// Get loads a message through the id index.
func (r ConversationRepository) Get(_ context.Context, messageID uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		return loadByID(txn, messageID, &message)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: %s", domainerrors.ErrUnknownMessage, messageID)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: get: %v", domainerrors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// MarkDelivered applies a delivery receipt for the identity. Re-applying
// is a no-op; an unknown message id is also a no-op, receipts are
// idempotent by contract.
func (r ConversationRepository) MarkDelivered(_ context.Context, messageID uuid.UUID,
	identity domain.Identity, at time.Time) (bool, error) {
	applied := false
	err := r.db.Update(func(txn *badger.Txn) error {
		var message domain.Message
		if err := loadByID(txn, messageID, &message); err != nil {
			return err
		}
		if !message.MarkDelivered(identity, at) {
			return nil
		}
		applied = true
		return storeMessage(txn, &message)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: mark delivered: %v", domainerrors.ErrStoreUnavailable, err)
	}
	return applied, nil
}

// MarkConversationRead applies a read receipt to every message of the
// conversation not yet read by the identity, in sentSeq order, and
// returns the messages that were newly marked.
func (r ConversationRepository) MarkConversationRead(_ context.Context, conversation domain.ConversationID,
	reader domain.Identity, at time.Time) ([]domain.Message, error) {
	var updated []domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", conversation))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var message domain.Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			})
			if err != nil {
				return err
			}
			if !message.MarkRead(reader, at) {
				continue
			}
			if err := storeMessage(txn, &message); err != nil {
				return err
			}
			updated = append(updated, message)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: mark read: %v", domainerrors.ErrStoreUnavailable, err)
	}
	return updated, nil
}

// SoftDelete tombstones the message: the deleted flag is one-way, the
// payload is dropped, and the sentSeq position is preserved so sequence
// gaps never occur. Receipt metadata is frozen at its last state.
func (r ConversationRepository) SoftDelete(_ context.Context, messageID uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := loadByID(txn, messageID, &message); err != nil {
			return err
		}
		if message.Deleted {
			return nil
		}
		message.Tombstone()
		return storeMessage(txn, &message)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: %s", domainerrors.ErrUnknownMessage, messageID)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: soft delete: %v", domainerrors.ErrStoreUnavailable, err)
	}
	return message, nil
}

func nextSeq(txn *badger.Txn, conversation domain.ConversationID) (uint64, error) {
	key := []byte("seq:" + string(conversation))
	last := uint64(0)

	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		// First message of the conversation.
	case err != nil:
		return 0, err
	default:
		err = item.Value(func(value []byte) error {
			parsed, parseErr := strconv.ParseUint(string(value), 10, 64)
			last = parsed
			return parseErr
		})
		if err != nil {
			return 0, err
		}
	}

	next := last + 1
	if err := txn.Set(key, []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func messageKey(conversation domain.ConversationID, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:"+seqPadding, conversation, seq))
}

func indexKey(id uuid.UUID) []byte {
	return []byte("id:" + id.String())
}

func loadByID(txn *badger.Txn, messageID uuid.UUID, out *domain.Message) error {
	idxItem, err := txn.Get(indexKey(messageID))
	if err != nil {
		return err
	}
	var msgKey []byte
	if err := idxItem.Value(func(value []byte) error {
		msgKey = append([]byte(nil), value...)
		return nil
	}); err != nil {
		return err
	}
	item, err := txn.Get(msgKey)
	if err != nil {
		return err
	}
	return item.Value(func(value []byte) error {
		return json.Unmarshal(value, out)
	})
}

func storeMessage(txn *badger.Txn, message *domain.Message) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return txn.Set(messageKey(message.Conversation, message.SentSeq), bytes)
}
