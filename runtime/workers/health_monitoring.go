package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Snapshot is one health sample of the relay process.
type Snapshot struct {
	Online   int
	Cpu      float64
	Ram      float32
	RSS      uint64
	Sessions int
}

// HealthMonitoringWorker samples the relay process every metricInterval and logs
// it with the number of users online.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	registry       contract.IRegistry
	sessions       func() int
	metricInterval time.Duration
	process        *process.Process
}

func NewHealthMonitoringWorker(log *slog.Logger, registry contract.IRegistry, sessions func() int, metricInterval time.Duration) (*HealthMonitoringWorker, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &HealthMonitoringWorker{
		log:            log,
		registry:       registry,
		sessions:       sessions,
		metricInterval: metricInterval,
		process:        p,
	}, nil
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			snapshot, err := w.Sample()
			if err != nil {
				w.log.Error("Error while sampling process", "err", err)
				continue
			}
			w.log.Info("Health",
				"online", snapshot.Online,
				"sessions", snapshot.Sessions,
				"cpu", snapshot.Cpu,
				"ram", snapshot.Ram,
				"rss", snapshot.RSS)
		}
	}
}

func (w *HealthMonitoringWorker) Sample() (Snapshot, error) {
	cpu, err := w.process.CPUPercent()
	if err != nil {
		return Snapshot{}, err
	}
	ram, err := w.process.MemoryPercent()
	if err != nil {
		return Snapshot{}, err
	}
	memory, err := w.process.MemoryInfo()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Online:   w.registry.Count(),
		Cpu:      cpu,
		Ram:      ram,
		RSS:      memory.RSS,
		Sessions: w.sessions(),
	}, nil
}
