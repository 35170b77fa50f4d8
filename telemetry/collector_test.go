package telemetry

import (
	"math"
	"testing"

	"github.com/pthm-cable/sph/systems"
)

func TestCollector_WindowTicks(t *testing.T) {
	c := NewCollector(0.1, 0.01)
	if got := c.WindowDurationTicks(); got != 10 {
		t.Fatalf("expected 10 ticks per window, got %d", got)
	}
	if c.ShouldFlush(9) {
		t.Error("should not flush before window end")
	}
	if !c.ShouldFlush(10) {
		t.Error("should flush at window end")
	}

	// Window shorter than a tick still flushes every tick
	if got := NewCollector(0.001, 0.01).WindowDurationTicks(); got != 1 {
		t.Errorf("expected 1 tick minimum, got %d", got)
	}
}

func TestCollector_Flush(t *testing.T) {
	c := NewCollector(1, 0.5)
	c.RecordWallHits(3)
	c.RecordWallHits(2)

	sample := FluidSample{
		Frame: systems.Slot{
			PosDens: []systems.Vec4{{0, 0, 0, 900}, {1, 0, 0, 1100}},
			Vel:     []systems.Vec4{{3, 4, 0, 0}, {-1, 0, 0, 0}},
		},
		ParticleMass:     2,
		RestDensity:      1000,
		SmoothingLength:  0.1,
		OccupiedCells:    2,
		MaxCellOccupancy: 1,
	}

	stats := c.Flush(4, sample)

	if stats.WindowStartTick != 0 || stats.WindowEndTick != 4 {
		t.Errorf("window = [%d, %d], want [0, 4]", stats.WindowStartTick, stats.WindowEndTick)
	}
	if stats.SimTimeSec != 2 {
		t.Errorf("sim time = %v, want 2", stats.SimTimeSec)
	}
	if stats.Particles != 2 || stats.WallHits != 5 {
		t.Errorf("particles/wall hits = %d/%d, want 2/5", stats.Particles, stats.WallHits)
	}
	if stats.DensityMean != 1000 || math.Abs(stats.DensityError-0.1) > 1e-9 {
		t.Errorf("density mean/error = %v/%v, want 1000/0.1", stats.DensityMean, stats.DensityError)
	}
	// 0.5 * 2 * (25 + 1)
	if math.Abs(stats.KineticEnergy-26) > 1e-4 {
		t.Errorf("kinetic energy = %v, want 26", stats.KineticEnergy)
	}
	if stats.MomentumX != 4 || stats.MomentumY != 8 || stats.MomentumZ != 0 {
		t.Errorf("momentum = (%v, %v, %v), want (4, 8, 0)", stats.MomentumX, stats.MomentumY, stats.MomentumZ)
	}
	if stats.MaxSpeed != 5 {
		t.Errorf("max speed = %v, want 5", stats.MaxSpeed)
	}

	// Counters reset and the next window starts where this one ended
	next := c.Flush(6, sample)
	if next.WallHits != 0 {
		t.Errorf("wall hits not reset: %d", next.WallHits)
	}
	if next.WindowStartTick != 4 {
		t.Errorf("next window start = %d, want 4", next.WindowStartTick)
	}
}

func TestCollector_FlushCompression(t *testing.T) {
	c := NewCollector(1, 0.5)

	tests := []struct {
		name string
		rho  []float32
		want float64
	}{
		{"balanced", []float32{900, 1100}, 0},
		{"compressed", []float32{1100, 1300}, 0.2},
		{"expanded", []float32{500, 500}, -0.5},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := systems.Slot{
				PosDens: make([]systems.Vec4, len(tt.rho)),
				Vel:     make([]systems.Vec4, len(tt.rho)),
			}
			for i, r := range tt.rho {
				frame.PosDens[i][3] = r
			}
			stats := c.Flush(1, FluidSample{Frame: frame, ParticleMass: 1, RestDensity: 1000})
			if math.Abs(stats.Compression-tt.want) > 1e-6 {
				t.Errorf("compression = %v, want %v", stats.Compression, tt.want)
			}
		})
	}
}
