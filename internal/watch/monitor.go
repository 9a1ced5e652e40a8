// Package watch hosts the change-detection loops: the periodic full-repo
// monitor and the polling directory watchers. Each loop keeps only its own
// last-seen fingerprint; everything durable lives on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/redpen/contentsyncd/internal/engine"
	"git.home.luguber.info/redpen/contentsyncd/internal/logfields"
	"git.home.luguber.info/redpen/contentsyncd/internal/metrics"
)

// Monitor periodically compares the repository fingerprint against the
// persisted baseline and triggers a cycle when they diverge. The engine
// re-checks under the lock, so overlapping triggers cost at most one publish.
type Monitor struct {
	scheduler gocron.Scheduler
	eng       *engine.Engine
	interval  time.Duration
}

// NewMonitor creates the monitor loop on a fresh gocron scheduler.
func NewMonitor(eng *engine.Engine, interval time.Duration) (*Monitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Monitor{scheduler: s, eng: eng, interval: interval}, nil
}

// Start schedules and begins the periodic check.
func (m *Monitor) Start(ctx context.Context) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(m.tick),
		gocron.WithName("repo-monitor"),
	)
	if err != nil {
		return fmt.Errorf("schedule monitor job: %w", err)
	}

	slog.Info("Starting repository monitor", slog.Duration("interval", m.interval))
	m.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for a running tick to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	slog.Info("Stopping repository monitor")
	return m.scheduler.Shutdown()
}

func (m *Monitor) tick() {
	outcome, err := m.eng.TriggerIfChanged(metrics.TriggerMonitor)
	if err != nil {
		slog.Error("Monitor cycle failed", logfields.Error(err))
		return
	}
	if outcome != engine.OutcomeNoChange {
		slog.Info("Monitor cycle completed", slog.String("outcome", outcome))
	}
}
