package event

import (
	"log/slog"
	"sync"

	"telecare/errors"
)

// WorkerRestartedHandler counts supervisor restarts per worker name.
// A worker that keeps restarting is a bug, not load, so every hit is
// logged at warn level.
type WorkerRestartedHandler struct {
	mu       sync.Mutex
	log      *slog.Logger
	restarts map[string]uint64
}

func NewWorkerRestartedHandler(log *slog.Logger) *WorkerRestartedHandler {
	return &WorkerRestartedHandler{log: log, restarts: make(map[string]uint64)}
}

func (h *WorkerRestartedHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}

	h.mu.Lock()
	h.restarts[payload.WorkerName]++
	count := h.restarts[payload.WorkerName]
	h.mu.Unlock()

	h.log.Warn("Worker restarted after panic", "name", payload.WorkerName, "restarts", count)
}

// Restarts returns the restart count recorded for a worker name.
func (h *WorkerRestartedHandler) Restarts(name string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restarts[name]
}
