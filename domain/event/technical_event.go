package event

import "time"

type Type string

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	SinkSaturatedType       Type = "SINK_SATURATED"
	ProcessStatsType        Type = "PROCESS_STATS"
	RegistryGaugeType       Type = "REGISTRY_GAUGE"
)

// Event is a technical telemetry event, sampled best-effort. Losing one
// never affects domain behavior.
type Event struct {
	Type    Type
	At      time.Time
	Payload any
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

// SinkSaturated reports a connection whose outbound queue was full when
// a push was attempted, forcing the event to be dropped.
type SinkSaturated struct {
	ConnectionID string
	EventName    string
}

type ProcessStats struct {
	Pid        int64
	CpuPercent float64
	RamBytes   uint64
}

// RegistryGauge samples the coordinator's live state sizes.
type RegistryGauge struct {
	Identities  int
	Connections int
	CallRooms   int
}
