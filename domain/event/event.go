// Package event defines the outbound events pushed to client
// connections, plus the technical telemetry events used by the runtime.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"telecare/domain"
)

// DomainEvent is anything a connection sink can push to its client.
// EventName is the wire name of the enclosing envelope.
type DomainEvent interface {
	EventName() string
}

// MessageReceived carries a full message to the recipient's connections
// and to the sender's other connections (multi-device echo).
type MessageReceived struct {
	Message domain.Message `json:"message"`
}

func (MessageReceived) EventName() string { return "receiveMessage" }

// Delivered is the per-identity delivery receipt. It is emitted at most
// once per (message, identity) even when the identity holds several
// connections.
type Delivered struct {
	MessageID    uuid.UUID             `json:"messageId"`
	Conversation domain.ConversationID `json:"conversationId"`
	Identity     domain.Identity       `json:"identity"`
	At           time.Time             `json:"at"`
}

func (Delivered) EventName() string { return "delivered" }

// ReadBy batches the read receipts a single markRead applied, in
// ascending sentSeq order.
type ReadBy struct {
	Conversation domain.ConversationID `json:"conversationId"`
	Identity     domain.Identity       `json:"identity"`
	At           time.Time             `json:"at"`
	Seqs         []uint64              `json:"seqs"`
}

func (ReadBy) EventName() string { return "readBy" }

type MessageDeleted struct {
	MessageID    uuid.UUID             `json:"messageId"`
	Conversation domain.ConversationID `json:"conversationId"`
}

func (MessageDeleted) EventName() string { return "messageDeleted" }

// Typing and StopTyping are ephemeral, best-effort, never persisted.
type Typing struct {
	Conversation domain.ConversationID `json:"conversationId"`
	Identity     domain.Identity       `json:"identity"`
}

func (Typing) EventName() string { return "typing" }

type StopTyping struct {
	Conversation domain.ConversationID `json:"conversationId"`
	Identity     domain.Identity       `json:"identity"`
}

func (StopTyping) EventName() string { return "stopTyping" }

type Presence struct {
	Identity   domain.Identity `json:"identity"`
	Online     bool            `json:"online"`
	LastSeenAt time.Time       `json:"lastSeenAt"`
}

func (Presence) EventName() string { return "presence" }

// NotificationCount always carries the authoritative server-side value.
// Clients must treat each push as a replace, never an increment.
type NotificationCount struct {
	UnreadCount int `json:"unreadCount"`
}

func (NotificationCount) EventName() string { return "notificationCountUpdate" }

// NewNotification is a pass-through from the external producer.
type NewNotification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (NewNotification) EventName() string { return "newNotification" }

// History is the reply to an inbound history request, oldest first.
type History struct {
	Conversation domain.ConversationID `json:"conversationId"`
	Messages     []domain.Message      `json:"messages"`
	Cursor       *string               `json:"cursor,omitempty"`
}

func (History) EventName() string { return "history" }

// PeerJoined tells the waiting participant that the second party entered
// the call room, which triggers offer creation on the client.
type PeerJoined struct {
	AppointmentID string          `json:"appointmentId"`
	Identity      domain.Identity `json:"identity"`
}

func (PeerJoined) EventName() string { return "other-user-joined" }

type SignalKind string

const (
	SignalOffer  SignalKind = "webrtc-offer"
	SignalAnswer SignalKind = "webrtc-answer"
	SignalIce    SignalKind = "ice-candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalIce:
		return true
	}
	return false
}

// CallSignal relays an opaque offer/answer/ICE payload byte-for-byte.
// The relay never parses or validates SDP/ICE contents.
type CallSignal struct {
	Kind          SignalKind      `json:"-"`
	AppointmentID string          `json:"appointmentId"`
	From          domain.Identity `json:"from"`
	Payload       json.RawMessage `json:"payload"`
}

func (s CallSignal) EventName() string { return string(s.Kind) }

type CallEnded struct {
	AppointmentID string `json:"appointmentId"`
	Reason        string `json:"reason,omitempty"`
}

func (CallEnded) EventName() string { return "end-call" }

// WireError is a rejection surfaced only to the initiating connection.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (WireError) EventName() string { return "error" }
