package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/sim"
	"github.com/pthm-cable/sph/systems"
	"github.com/pthm-cable/sph/telemetry"
)

// smallConfig seeds a 4x4x4 block in the default box.
func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Fluid.Capacity = 256
	cfg.Fluid.ParticleCount = 0
	cfg.Seed.Size.X, cfg.Seed.Size.Y, cfg.Seed.Size.Z = 0.1, 0.1, 0.1
	cfg.Seed.Spacing = 0.025
	cfg.Telemetry.StatsWindow = 0.021 // 5 ticks at dt 0.004
	cfg.Telemetry.PerfCollectorWindow = 10
	require.NoError(t, cfg.Validate())
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, seeder sim.Seeder, opts Options) *Runner {
	t.Helper()
	s, err := sim.New(cfg, seeder)
	require.NoError(t, err)
	r, err := New(cfg, s, opts)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunner_RunWritesTelemetry(t *testing.T) {
	cfg := smallConfig(t)
	dir := filepath.Join(t.TempDir(), "out")

	var windows []telemetry.WindowStats
	r := newRunner(t, cfg, sim.NewLatticeSeeder(cfg), Options{
		OutputDir:     dir,
		SnapshotEvery: 10,
		StatsCallback: func(s telemetry.WindowStats) { windows = append(windows, s) },
	})

	require.NoError(t, r.Run(context.Background(), 20))
	assert.Equal(t, int64(20), r.Tick())
	require.NoError(t, r.Close())

	require.Len(t, windows, 4)
	for i, w := range windows {
		assert.Equal(t, int64(5*i), w.WindowStartTick)
		assert.Equal(t, int64(5*(i+1)), w.WindowEndTick)
		assert.Equal(t, 64, w.Particles)
		assert.Greater(t, w.DensityMean, 0.0)
	}

	f, err := os.Open(filepath.Join(dir, "stats.csv"))
	require.NoError(t, err)
	defer f.Close()
	var rows []telemetry.WindowStats
	require.NoError(t, gocsv.UnmarshalFile(f, &rows))
	assert.Len(t, rows, 4)

	for _, name := range []string{"perf.csv", "config.yaml", "snapshot_10.json", "snapshot_20.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	cfg := smallConfig(t)
	r := newRunner(t, cfg, sim.NewLatticeSeeder(cfg), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx, 0))
	assert.Equal(t, int64(0), r.Tick())
}

func TestRunner_PropagatesStepFailure(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Fluid.ParticleCount = 1
	cfg.Debug.CheckInvariants = true
	// The second particle sits outside the box and fails the grid build
	// once it is activated.
	seeder := sim.PointSeeder{
		{Pos: systems.Vec3{0.5, 0.5, 0.5}},
		{Pos: systems.Vec3{0.5, 5, 0.5}},
	}
	r := newRunner(t, cfg, seeder, Options{})

	require.NoError(t, r.Update())
	require.NoError(t, r.Sim().SetParticleCount(2))

	err := r.Run(context.Background(), 10)
	assert.True(t, errors.Is(err, systems.ErrInvariant), "got %v", err)
	assert.Equal(t, int64(1), r.Tick())
}

func TestRunner_ResumeFromSnapshot(t *testing.T) {
	cfg := smallConfig(t)
	dir := t.TempDir()
	r := newRunner(t, cfg, sim.NewLatticeSeeder(cfg), Options{OutputDir: dir, SnapshotEvery: 5})
	require.NoError(t, r.Run(context.Background(), 5))

	snap, err := telemetry.LoadSnapshot(filepath.Join(dir, "snapshot_5.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.Tick)

	resumed := newRunner(t, cfg, sim.SnapshotSeeder(snap), Options{})
	require.NoError(t, resumed.Resume(snap))
	assert.Equal(t, int64(5), resumed.Tick())
	assert.Equal(t, r.Sim().CurrentPositions(), resumed.Sim().CurrentPositions())

	require.NoError(t, resumed.Update())
	require.NoError(t, r.Update())
	assert.Equal(t, int64(6), resumed.Tick())
	assert.InDeltaSlice(t, flatten(r.Sim().CurrentPositions()), flatten(resumed.Sim().CurrentPositions()), 1e-4)
}

func flatten(v []systems.Vec3) []float64 {
	out := make([]float64, 0, 3*len(v))
	for _, p := range v {
		out = append(out, float64(p[0]), float64(p[1]), float64(p[2]))
	}
	return out
}

func TestRunner_FailedTickIsTimed(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Fluid.ParticleCount = 1
	seeder := sim.PointSeeder{
		{Pos: systems.Vec3{0.5, 0.5, 0.5}},
		{Pos: systems.Vec3{0.5, 5, 0.5}},
	}
	r := newRunner(t, cfg, seeder, Options{})
	require.NoError(t, r.Sim().SetParticleCount(2))

	require.Error(t, r.Update())

	stats := r.perfCollector.Stats()
	assert.Contains(t, stats.PhaseAvg, telemetry.PhaseGridBuild)
	assert.NotContains(t, stats.PhaseAvg, telemetry.PhaseTelemetry)
}

func TestRunner_ResumeRejectsMismatchedSnapshot(t *testing.T) {
	cfg := smallConfig(t)
	src := newRunner(t, cfg, sim.NewLatticeSeeder(cfg), Options{})
	require.NoError(t, src.Update())

	tests := []struct {
		name   string
		modify func(*telemetry.Snapshot)
	}{
		{"particle mass", func(s *telemetry.Snapshot) { s.ParticleMass *= 2 }},
		{"domain min", func(s *telemetry.Snapshot) { s.DomainMin[1] -= 0.5 }},
		{"domain size", func(s *telemetry.Snapshot) { s.DomainSize[0] += 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := src.Sim().Snapshot()
			require.NoError(t, err)
			tt.modify(snap)

			r := newRunner(t, cfg, sim.SnapshotSeeder(snap), Options{})
			err = r.Resume(snap)
			assert.True(t, errors.Is(err, ErrSnapshotMismatch), "got %v", err)
			assert.Equal(t, int64(0), r.Tick())
		})
	}

	snap, err := src.Sim().Snapshot()
	require.NoError(t, err)
	r := newRunner(t, cfg, sim.SnapshotSeeder(snap), Options{})
	require.NoError(t, r.Resume(snap))
	assert.Equal(t, int64(1), r.Tick())
}
