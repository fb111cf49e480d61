package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"telecare/domain/event"
)

// WsSink is one live connection's outbound queue. Consume enqueues and
// returns; a dedicated write pump owns the websocket. When the queue is
// full past the sink timeout the event is dropped and reported on the
// telemetry channel: a slow consumer loses events, it never stalls a
// deliverer.
type WsSink struct {
	id            string
	log           *slog.Logger
	conn          *websocket.Conn
	out           chan event.DomainEvent
	timeout       time.Duration
	telemetryChan chan event.Event

	closeOnce sync.Once
	done      chan struct{}
}

func NewWsSink(log *slog.Logger, conn *websocket.Conn, bufferSize int,
	timeout time.Duration, telemetryChan chan event.Event) *WsSink {
	return &WsSink{
		id:            uuid.NewString(),
		log:           log,
		conn:          conn,
		out:           make(chan event.DomainEvent, bufferSize),
		timeout:       timeout,
		telemetryChan: telemetryChan,
		done:          make(chan struct{}),
	}
}

func (s *WsSink) ID() string {
	return s.id
}

// Consume implements contract.EventSink.
func (s *WsSink) Consume(_ context.Context, e event.DomainEvent) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.out <- e:
		return nil
	case <-s.done:
		return fmt.Errorf("connection %s closed", s.id)
	case <-timer.C:
		s.reportDrop(e.EventName())
		return fmt.Errorf("sink %s saturated, %s dropped", s.id, e.EventName())
	}
}

// WritePump owns every write on the websocket. Returns when the sink is
// closed or the first write fails.
func (s *WsSink) WritePump() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.out:
			if err := s.write(e); err != nil {
				s.log.Debug("Write failed, closing sink", "connection_id", s.id, "error", err)
				s.Close()
				return
			}
		}
	}
}

// Close makes the sink refuse further events. Idempotent.
func (s *WsSink) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *WsSink) write(e event.DomainEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.conn.WriteJSON(Envelope{Event: e.EventName(), Data: data})
}

func (s *WsSink) reportDrop(eventName string) {
	if s.telemetryChan == nil {
		return
	}
	select {
	case s.telemetryChan <- event.Event{
		Type:    event.SinkSaturatedType,
		At:      time.Now().UTC(),
		Payload: event.SinkSaturated{ConnectionID: s.id, EventName: eventName},
	}:
	default:
	}
}
