package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"telecare/domain/event"
)

// registrySampler and roomSampler expose the gauge values the stats
// worker snapshots on every tick.
type registrySampler interface {
	Counts() (identities, connections int)
}

type roomSampler interface {
	RoomCount() int
}

// ProcessStatsWorker samples the coordinator's own CPU and RSS plus the
// registry gauges on a fixed interval and ships them on the telemetry
// channel. Best effort: a full channel drops the sample.
type ProcessStatsWorker struct {
	log            *slog.Logger
	telemetryChan  chan event.Event
	metricInterval time.Duration
	registry       registrySampler
	rooms          roomSampler
}

func NewProcessStatsWorker(log *slog.Logger, telemetryChan chan event.Event,
	metricInterval time.Duration, registry registrySampler, rooms roomSampler) *ProcessStatsWorker {
	return &ProcessStatsWorker{
		log:            log,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
		registry:       registry,
		rooms:          rooms,
	}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		w.log.Error("Error while retrieving own process", "pid", pid, "err", err)
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process stats worker")
			return nil
		case <-ticker.C:
			w.sample(proc, int64(pid))
		}
	}
}

func (w *ProcessStatsWorker) sample(proc *process.Process, pid int64) {
	cpu, err := proc.CPUPercent()
	if err != nil {
		w.log.Error("Error while finding process cpu usage", "err", err)
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		w.log.Error("Error while finding process ram usage", "err", err)
		return
	}
	w.emit(event.Event{
		Type: event.ProcessStatsType,
		At:   time.Now().UTC(),
		Payload: event.ProcessStats{
			Pid:        pid,
			CpuPercent: cpu,
			RamBytes:   mem.RSS,
		},
	})

	identities, connections := w.registry.Counts()
	w.emit(event.Event{
		Type: event.RegistryGaugeType,
		At:   time.Now().UTC(),
		Payload: event.RegistryGauge{
			Identities:  identities,
			Connections: connections,
			CallRooms:   w.rooms.RoomCount(),
		},
	})
}

func (w *ProcessStatsWorker) emit(evt event.Event) {
	select {
	case w.telemetryChan <- evt:
	default:
		w.log.Debug("Telemetry channel full, sample lost", "type", evt.Type)
	}
}
