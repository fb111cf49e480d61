package event

import (
	"fmt"
	"log/slog"

	"telecare/errors"
)

// ProcessStatsHandler logs the coordinator's own CPU/RSS samples and
// warns when memory crosses the configured threshold.
type ProcessStatsHandler struct {
	log           *slog.Logger
	ramThresholdB uint64
}

func NewProcessStatsHandler(log *slog.Logger, ramThresholdB uint64) *ProcessStatsHandler {
	return &ProcessStatsHandler{log: log, ramThresholdB: ramThresholdB}
}

func (h *ProcessStatsHandler) Handle(event Event) {
	switch event.Type {
	case ProcessStatsType:
		payload, ok := event.Payload.(ProcessStats)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.log.Debug("telemetry: process stats",
			"pid", payload.Pid,
			"cpu_percent", fmt.Sprintf("%.1f", payload.CpuPercent),
			"ram_bytes", payload.RamBytes,
		)
		if h.ramThresholdB > 0 && payload.RamBytes > h.ramThresholdB {
			h.log.Warn("High memory usage detected", "ram_bytes", payload.RamBytes)
		}
	case RegistryGaugeType:
		payload, ok := event.Payload.(RegistryGauge)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.log.Debug("telemetry: registry gauge",
			"identities", payload.Identities,
			"connections", payload.Connections,
			"call_rooms", payload.CallRooms,
		)
	}
}
