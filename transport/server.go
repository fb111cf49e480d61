package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"telecare/auth"
	"telecare/domain"
	"telecare/domain/event"
	"telecare/errors"
	"telecare/services"
)

// Server hosts the websocket endpoint and the internal HTTP endpoints
// used by the platform's notification producers.
type Server struct {
	log           *slog.Logger
	service       *services.CoordinatorService
	verifier      *auth.Verifier
	validate      *validator.Validate
	upgrader      websocket.Upgrader
	telemetryChan chan event.Event

	bufferSize      int
	sinkTimeout     time.Duration
	maxPayloadBytes int64
}

func NewServer(log *slog.Logger, service *services.CoordinatorService, verifier *auth.Verifier,
	telemetryChan chan event.Event, bufferSize int, sinkTimeout time.Duration, maxPayloadBytes int64) *Server {
	return &Server{
		log:      log,
		service:  service,
		verifier: verifier,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
			// Clients connect from the platform's web and mobile apps;
			// authentication happens via the handshake token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		telemetryChan:   telemetryChan,
		bufferSize:      bufferSize,
		sinkTimeout:     sinkTimeout,
		maxPayloadBytes: maxPayloadBytes,
	}
}

// Routes registers the public websocket endpoint and the internal
// notification endpoints on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/internal/notifications", s.handleNotify)
	mux.HandleFunc("/internal/notifications/state", s.handleNotificationState)
}

// handleWS authenticates the handshake, upgrades, and runs the read
// loop until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		s.log.Debug("Handshake rejected", "error", err)
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Upgrade failed", "error", err)
		return
	}
	if s.maxPayloadBytes > 0 {
		conn.SetReadLimit(s.maxPayloadBytes)
	}

	sink := NewWsSink(s.log, conn, s.bufferSize, s.sinkTimeout, s.telemetryChan)
	go sink.WritePump()

	ctx := r.Context()
	s.service.Connect(ctx, identity, sink)
	defer func() {
		s.service.Disconnect(identity, sink)
		sink.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("Read loop ended", "connection_id", sink.ID(), "error", err)
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.pushError(ctx, sink, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err))
			continue
		}
		if err := s.dispatch(ctx, identity, sink, env); err != nil {
			s.pushError(ctx, sink, err)
		}
	}
}

// dispatch routes one inbound envelope. Any returned error is pushed
// back to the initiating connection only; other participants never see
// a rejection.
func (s *Server) dispatch(ctx context.Context, me domain.Identity, sink *WsSink, env Envelope) error {
	switch env.Event {
	case EventSendMessage:
		var p SendMessagePayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		to, err := domain.ConversationID(p.ConversationID).Other(me)
		if err != nil {
			return err
		}
		kind, err := domain.ParseKind(p.Kind)
		if err != nil {
			return err
		}
		_, err = s.service.Send(ctx, me, to, kind, p.Payload, sink.ID())
		return err

	case EventRead:
		var p ReadPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		return s.service.MarkRead(ctx, domain.ConversationID(p.ConversationID), me)

	case EventDeleteMessage:
		var p DeleteMessagePayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		messageID, err := uuid.Parse(p.MessageID)
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return s.service.Delete(ctx, messageID, me)

	case EventTyping, EventStopTyping:
		var p TypingPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		return s.service.Typing(ctx, domain.ConversationID(p.ConversationID), me, env.Event == EventTyping)

	case EventJoin:
		var p JoinPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		with, err := domain.ConversationID(p.ConversationID).Other(me)
		if err != nil {
			return err
		}
		s.service.JoinConversation(ctx, me, with, sink)
		return nil

	case EventHistory:
		var p HistoryPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		page, err := s.service.History(ctx, domain.ConversationID(p.ConversationID), me, p.Cursor)
		if err != nil {
			return err
		}
		return sink.Consume(ctx, page)

	case EventJoinVideoRoom:
		var p JoinVideoRoomPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		return s.service.JoinCall(ctx, p.AppointmentID, me)

	case EventWebrtcOffer, EventWebrtcAnswer, EventIceCandidate:
		var p SignalPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		return s.service.Signal(ctx, event.SignalKind(env.Event), p.AppointmentID, me, p.Payload)

	case EventLeaveVideoRoom:
		var p EndCallPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		return s.service.LeaveCall(ctx, p.AppointmentID, me)

	case EventEndCall:
		var p EndCallPayload
		if err := s.decode(env.Data, &p); err != nil {
			return err
		}
		return s.service.EndCall(ctx, p.AppointmentID, me)

	default:
		return fmt.Errorf("%w: unknown event %q", errors.ErrInvalidPayload, env.Event)
	}
}

// handleNotify receives a notification produced elsewhere in the
// platform and fans it out to the identity's live connections.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req NotifyRequest
	if err := s.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	identity, err := domain.NewIdentity(domain.Role(req.Role), req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.service.Notify(r.Context(), identity, req.Title, req.Message)
	w.WriteHeader(http.StatusAccepted)
}

// handleNotificationState lets the CRUD layer drive the unread counter:
// single read, read-all, clear, or an absolute recount.
func (s *Server) handleNotificationState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req NotificationStateRequest
	if err := s.decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	identity, err := domain.NewIdentity(domain.Role(req.Role), req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	switch req.Action {
	case "read":
		s.service.NotificationRead(ctx, identity)
	case "readAll":
		s.service.AllNotificationsRead(ctx, identity)
	case "clear":
		s.service.NotificationsCleared(ctx, identity)
	case "set":
		s.service.SetUnread(ctx, identity, req.Count)
	}
	w.WriteHeader(http.StatusAccepted)
}

// authenticate extracts the JWT from the query string or the bearer
// header and resolves the connection's identity.
func (s *Server) authenticate(r *http.Request) (domain.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return domain.Identity{}, fmt.Errorf("missing handshake token")
	}
	return s.verifier.VerifyToken(token)
}

func (s *Server) decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", errors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

func (s *Server) decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid body: %v", err)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("invalid body: %v", err)
	}
	return nil
}

// pushError surfaces a rejection to the initiating connection only. The
// message carries the mapped code's description, never internal detail.
func (s *Server) pushError(ctx context.Context, sink *WsSink, err error) {
	code := errors.WireCode(err)
	_ = sink.Consume(ctx, event.WireError{Code: code, Message: wireMessage(code)})
}

func wireMessage(code string) string {
	switch code {
	case errors.CodeCapacityExceeded:
		return "the call room is full"
	case errors.CodeNotAParticipant:
		return "you are not a participant of this resource"
	case errors.CodeUnknownTarget:
		return "no record matching this id"
	case errors.CodeAdapterUnavailable:
		return "a backing service is temporarily unavailable"
	case errors.CodeBadRequest:
		return "the request payload is invalid"
	default:
		return "internal error"
	}
}
