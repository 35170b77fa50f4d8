package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/runner"
	"github.com/pthm-cable/sph/sim"
	"github.com/pthm-cable/sph/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config and snapshots")
	seed := flag.Uint64("seed", 0, "Lattice jitter and noise seed (0 = use config)")
	maxTicks := flag.Int64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	snapshotEvery := flag.Int64("snapshot-every", 0, "Ticks between snapshots (0 = use config)")
	smoothingLength := flag.Float64("smoothing-length", 0, "Smoothing length applied from the first step (0 = use config)")
	resume := flag.String("resume", "", "Snapshot file to resume from")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *seed != 0 {
		cfg.Seed.RNGSeed = *seed
	}

	var seeder sim.Seeder = sim.NewLatticeSeeder(cfg)
	var snap *telemetry.Snapshot
	if *resume != "" {
		var err error
		snap, err = telemetry.LoadSnapshot(*resume)
		if err != nil {
			slog.Error("failed to load snapshot", "path", *resume, "error", err)
			os.Exit(1)
		}
		seeder = sim.SnapshotSeeder(snap)
		// Every particle in the snapshot was live.
		cfg.Fluid.ParticleCount = 0
	}

	s, err := sim.New(cfg, seeder)
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	r, err := runner.New(cfg, s, runner.Options{
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		OutputDir:      *outputDir,
		SnapshotEvery:  *snapshotEvery,
	})
	if err != nil {
		s.Close()
		slog.Error("failed to set up output", "error", err)
		os.Exit(1)
	}

	code := run(r, snap, float32(*smoothingLength), *maxTicks)
	if err := r.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
		code = 1
	}
	os.Exit(code)
}

func run(r *runner.Runner, snap *telemetry.Snapshot, h float32, maxTicks int64) int {
	if snap != nil {
		if err := r.Resume(snap); err != nil {
			slog.Error("failed to resume", "error", err)
			return 1
		}
	}
	if h > 0 {
		if err := r.Sim().SetSmoothingLength(h); err != nil {
			slog.Error("invalid smoothing length", "h", h, "error", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Run(ctx, maxTicks); err != nil {
		slog.Error("simulation failed", "tick", r.Tick(), "error", err)
		return 1
	}
	return 0
}
