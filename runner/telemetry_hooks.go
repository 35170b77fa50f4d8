package runner

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/sph/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and writes it out.
func (r *Runner) flushTelemetry() {
	tick := r.sim.Tick()
	if !r.collector.ShouldFlush(tick) {
		return
	}

	sample, err := r.sim.Sample()
	if err != nil {
		slog.Error("failed to sample simulation", "error", err)
		return
	}
	stats := r.collector.Flush(tick, sample)
	perfStats := r.perfCollector.Stats()

	if r.statsCallback != nil {
		r.statsCallback(stats)
	}

	if r.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if r.outputManager != nil {
		if err := r.outputManager.WriteStats(stats); err != nil {
			slog.Error("failed to write stats", "error", err)
		}
		if err := r.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

// maybeSnapshot saves the particle state every snapshotEvery ticks.
func (r *Runner) maybeSnapshot() {
	if r.snapshotEvery <= 0 || r.outputManager == nil {
		return
	}
	tick := r.sim.Tick()
	if tick%r.snapshotEvery != 0 {
		return
	}
	r.saveSnapshot()
}

func (r *Runner) saveSnapshot() {
	snapshot, err := r.sim.Snapshot()
	if err != nil {
		slog.Error("failed to capture snapshot", "error", err)
		return
	}
	path, err := r.outputManager.WriteSnapshot(snapshot)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "tick", snapshot.Tick)
}

// Resume restores the tick counter and smoothing length recorded in a
// snapshot. The particles themselves come from sim.SnapshotSeeder.
// The snapshot's particle mass and domain must match the active config.
func (r *Runner) Resume(snap *telemetry.Snapshot) error {
	d := r.cfg.Derived
	if snap.ParticleMass != d.Mass32 {
		return fmt.Errorf("particle mass %g, config has %g: %w", snap.ParticleMass, d.Mass32, ErrSnapshotMismatch)
	}
	if snap.DomainMin != d.Domain.Min || snap.DomainSize != d.Domain.Size {
		return fmt.Errorf("domain min %v size %v, config has min %v size %v: %w",
			snap.DomainMin, snap.DomainSize, d.Domain.Min, d.Domain.Size, ErrSnapshotMismatch)
	}
	if snap.SmoothingLength > 0 && snap.SmoothingLength != r.sim.SmoothingLength() {
		if err := r.sim.SetSmoothingLength(snap.SmoothingLength); err != nil {
			return err
		}
	}
	if err := r.sim.ResumeAt(snap.Tick); err != nil {
		return err
	}
	slog.Info("resumed from snapshot", "tick", snap.Tick, "particles", len(snap.Particles))
	return nil
}
