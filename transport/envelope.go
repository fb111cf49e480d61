// Package transport implements the websocket surface of the
// coordinator: the envelope codec, the per-connection sink, and the
// HTTP server hosting the upgrade endpoint plus the internal
// notification endpoints.
package transport

import (
	"encoding/json"
)

// Envelope is the wire frame of every inbound and outbound message:
// an event name and an event-specific data document.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names a client may send.
const (
	EventSendMessage    = "sendMessage"
	EventRead           = "read"
	EventDeleteMessage  = "deleteMessage"
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
	EventJoin           = "join"
	EventHistory        = "history"
	EventJoinVideoRoom  = "join-video-room"
	EventLeaveVideoRoom = "leave-video-room"
	EventWebrtcOffer    = "webrtc-offer"
	EventWebrtcAnswer   = "webrtc-answer"
	EventIceCandidate   = "ice-candidate"
	EventEndCall        = "end-call"
)

// SendMessagePayload addresses the conversation; the recipient is the
// conversation's other participant.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Kind           string `json:"kind" validate:"required,oneof=text image file emoji"`
	Payload        string `json:"payload" validate:"required"`
}

// ReadPayload marks the whole conversation read for the caller.
type ReadPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,uuid4"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// JoinPayload opens a conversation: it subscribes the caller to the
// counterpart's presence and returns the current snapshot.
type JoinPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

type HistoryPayload struct {
	ConversationID string  `json:"conversationId" validate:"required"`
	Cursor         *string `json:"cursor,omitempty"`
}

type JoinVideoRoomPayload struct {
	AppointmentID string `json:"appointmentId" validate:"required"`
}

// SignalPayload carries an opaque SDP or ICE blob. Payload is relayed
// byte-for-byte, never parsed.
type SignalPayload struct {
	AppointmentID string          `json:"appointmentId" validate:"required"`
	Payload       json.RawMessage `json:"payload" validate:"required"`
}

type EndCallPayload struct {
	AppointmentID string `json:"appointmentId" validate:"required"`
}

// NotifyRequest is the body of the internal notification endpoint.
type NotifyRequest struct {
	Role    string `json:"role" validate:"required,oneof=patient provider admin"`
	ID      string `json:"id" validate:"required"`
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// NotificationStateRequest drives the unread counter from the CRUD
// layer: one of read / readAll / clear, or an absolute recount.
type NotificationStateRequest struct {
	Role   string `json:"role" validate:"required,oneof=patient provider admin"`
	ID     string `json:"id" validate:"required"`
	Action string `json:"action" validate:"required,oneof=read readAll clear set"`
	Count  int    `json:"count" validate:"gte=0"`
}
