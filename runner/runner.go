// Package runner drives a simulation tick by tick and feeds its telemetry:
// windowed fluid stats, per-phase timing, CSV output and snapshots.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/sim"
	"github.com/pthm-cable/sph/telemetry"
)

// ErrSnapshotMismatch is returned by Resume when a snapshot was recorded
// under a different particle mass or domain.
var ErrSnapshotMismatch = errors.New("snapshot does not match config")

// Options configures a Runner.
type Options struct {
	LogStats       bool
	StatsWindowSec float64 // 0 = telemetry.stats_window
	OutputDir      string  // Empty disables CSV and snapshot output
	SnapshotEvery  int64   // Ticks between snapshots, 0 = telemetry.snapshot_every

	// StatsCallback, if set, receives every flushed stats window.
	StatsCallback func(telemetry.WindowStats)
}

// Runner owns the per-tick loop around a Simulation.
type Runner struct {
	sim *sim.Simulation
	cfg *config.Config
	dt  float32

	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager

	logStats      bool
	snapshotEvery int64
	statsCallback func(telemetry.WindowStats)
}

// New wires telemetry around s. The Runner takes ownership of s and
// closes it in Close.
func New(cfg *config.Config, s *sim.Simulation, opts Options) (*Runner, error) {
	if s == nil {
		return nil, errors.New("runner: nil simulation")
	}

	windowSec := cfg.Telemetry.StatsWindow
	if opts.StatsWindowSec > 0 {
		windowSec = opts.StatsWindowSec
	}
	snapshotEvery := int64(cfg.Telemetry.SnapshotEvery)
	if opts.SnapshotEvery > 0 {
		snapshotEvery = opts.SnapshotEvery
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, fmt.Errorf("writing config: %w", err)
	}

	r := &Runner{
		sim:           s,
		cfg:           cfg,
		dt:            cfg.Derived.DT32,
		collector:     telemetry.NewCollector(windowSec, cfg.Derived.DT32),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		outputManager: om,
		logStats:      opts.LogStats,
		snapshotEvery: snapshotEvery,
		statsCallback: opts.StatsCallback,
	}
	s.SetPerfCollector(r.perfCollector)
	return r, nil
}

// Sim returns the driven simulation.
func (r *Runner) Sim() *sim.Simulation { return r.sim }

// Tick returns the number of completed steps.
func (r *Runner) Tick() int64 { return r.sim.Tick() }

// Update advances the simulation by one tick and runs the telemetry hooks.
func (r *Runner) Update() error {
	r.perfCollector.StartTick()
	defer r.perfCollector.EndTick()

	if err := r.sim.Step(r.dt); err != nil {
		return err
	}

	r.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	r.collector.RecordWallHits(r.sim.LastWallHits())
	r.flushTelemetry()
	r.maybeSnapshot()
	return nil
}

// Run calls Update until ctx is done, maxTicks is reached (0 = no limit)
// or a step fails.
func (r *Runner) Run(ctx context.Context, maxTicks int64) error {
	slog.Info("starting simulation",
		"particles", r.sim.Count(),
		"dt", r.dt,
		"h", r.sim.SmoothingLength(),
		"max_ticks", maxTicks,
		"output_dir", r.outputManager.Dir(),
	)
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation interrupted", "tick", r.Tick())
			return nil
		}
		if err := r.Update(); err != nil {
			return err
		}
		if maxTicks > 0 && r.Tick() >= maxTicks {
			slog.Info("max ticks reached", "tick", r.Tick())
			return nil
		}
	}
}

// Close releases the simulation and closes the output files.
func (r *Runner) Close() error {
	r.sim.Close()
	return r.outputManager.Close()
}
