package event

import (
	"log/slog"
	"sync"

	"telecare/errors"
)

// SinkSaturatedHandler tracks dropped pushes per connection. Drops are
// expected under slow consumers; the counter exists to make a chronic
// one visible.
type SinkSaturatedHandler struct {
	mu      sync.Mutex
	log     *slog.Logger
	counter uint64
	drops   map[string]uint64
}

func NewSinkSaturatedHandler(log *slog.Logger) *SinkSaturatedHandler {
	return &SinkSaturatedHandler{log: log, drops: make(map[string]uint64)}
}

func (h *SinkSaturatedHandler) Handle(event Event) {
	if event.Type != SinkSaturatedType {
		return
	}
	payload, ok := event.Payload.(SinkSaturated)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}

	h.mu.Lock()
	h.counter++
	h.drops[payload.ConnectionID]++
	h.mu.Unlock()

	h.log.Debug("Outbound event dropped on saturated sink",
		"connection_id", payload.ConnectionID,
		"event", payload.EventName)
}

func (h *SinkSaturatedHandler) Total() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counter
}
