package workers

import (
	"context"
	"log/slog"
	"time"
)

type sweeper interface {
	Sweep(now time.Time) int
}

// RoomSweeperWorker periodically ends call rooms that saw no signaling
// activity for the configured idle timeout.
type RoomSweeperWorker struct {
	log      *slog.Logger
	relay    sweeper
	interval time.Duration
}

func NewRoomSweeperWorker(log *slog.Logger, relay sweeper, interval time.Duration) *RoomSweeperWorker {
	return &RoomSweeperWorker{log: log, relay: relay, interval: interval}
}

func (w *RoomSweeperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping room sweeper")
			return nil
		case <-ticker.C:
			if swept := w.relay.Sweep(time.Now().UTC()); swept > 0 {
				w.log.Info("Swept idle call rooms", "count", swept)
			}
		}
	}
}
