// This file defines Message events and receipt rules.
// Messages are immutable once persisted, except for the append-only
// receipt sets and the one-way deleted flag.
package domain

import (
	"time"

	"github.com/google/uuid"

	"telecare/errors"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindEmoji Kind = "emoji"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile, KindEmoji:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.ErrInvalidKind
	}
	return k, nil
}

// Receipt records that a specific identity received or read a message.
type Receipt struct {
	Identity Identity  `json:"identity"`
	At       time.Time `json:"at"`
}

// Message is a single chat event inside a conversation. SentSeq is the
// per-conversation monotonic ordering key assigned at persistence time.
type Message struct {
	ID           uuid.UUID      `json:"id"`
	Conversation ConversationID `json:"conversationId"`
	Sender       Identity       `json:"sender"`
	Kind         Kind           `json:"kind"`
	Payload      string         `json:"payload"`
	Lang         string         `json:"lang,omitempty"`
	SentSeq      uint64         `json:"sentSeq"`
	CreatedAt    time.Time      `json:"createdAt"`
	DeliveredTo  []Receipt      `json:"deliveredTo"`
	ReadBy       []Receipt      `json:"readBy"`
	Deleted      bool           `json:"deleted"`
}

// DeliveredFor reports whether a delivery receipt exists for the identity.
func (m *Message) DeliveredFor(id Identity) bool {
	return hasReceipt(m.DeliveredTo, id)
}

// ReadFor reports whether a read receipt exists for the identity.
func (m *Message) ReadFor(id Identity) bool {
	return hasReceipt(m.ReadBy, id)
}

// MarkDelivered appends a delivery receipt for the identity. Re-applying
// an existing identity's receipt is a no-op, and receipts on a deleted
// message are frozen. Returns true only when the receipt was applied.
func (m *Message) MarkDelivered(id Identity, at time.Time) bool {
	if m.Deleted || hasReceipt(m.DeliveredTo, id) {
		return false
	}
	m.DeliveredTo = append(m.DeliveredTo, Receipt{Identity: id, At: at})
	return true
}

// MarkRead appends a read receipt with the same idempotence and
// frozen-after-delete rules as MarkDelivered.
func (m *Message) MarkRead(id Identity, at time.Time) bool {
	if m.Deleted || hasReceipt(m.ReadBy, id) {
		return false
	}
	m.ReadBy = append(m.ReadBy, Receipt{Identity: id, At: at})
	return true
}

// Tombstone flags the message as deleted. The payload is dropped but the
// message keeps its SentSeq position so sequence gaps never occur.
func (m *Message) Tombstone() {
	m.Deleted = true
	m.Payload = ""
	m.Lang = ""
}

func hasReceipt(receipts []Receipt, id Identity) bool {
	for _, r := range receipts {
		if r.Identity == id {
			return true
		}
	}
	return false
}
