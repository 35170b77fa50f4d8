package telemetry

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sph/systems"
)

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int64
	dt                  float32

	// Current window tracking
	windowStartTick int64

	// Event counters for current window
	wallHits int

	// Reused between flushes
	densities []float64
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	ticksPerWindow := int64(windowDurationSec / float64(dt))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordWallHits adds wall reflections applied during a step.
func (c *Collector) RecordWallHits(n int) {
	c.wallHits += n
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// FluidSample is the state the collector samples at the end of a window.
// Frame is read, never retained.
type FluidSample struct {
	Frame           systems.Slot
	ParticleMass    float32
	RestDensity     float32
	SmoothingLength float32

	OccupiedCells    int
	MaxCellOccupancy int
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int64, s FluidSample) WindowStats {
	n := len(s.Frame.PosDens)

	c.densities = c.densities[:0]
	for i := 0; i < n; i++ {
		c.densities = append(c.densities, float64(s.Frame.PosDens[i][3]))
	}
	dens := ComputeDensityStats(c.densities, float64(s.RestDensity))

	// Momentum and peak speed
	var momentum r3.Vec
	var maxSpeed float64
	for i := range s.Frame.Vel {
		v := s.Frame.Vel[i]
		vel := r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
		momentum = r3.Add(momentum, vel)
		if speed := r3.Norm(vel); speed > maxSpeed {
			maxSpeed = speed
		}
	}
	momentum = r3.Scale(float64(s.ParticleMass), momentum)

	var compression float64
	if n > 0 && s.RestDensity > 0 {
		sum := float64(systems.DensitySum(s.Frame.PosDens))
		compression = sum/(float64(n)*float64(s.RestDensity)) - 1
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * float64(c.dt),

		Particles:       n,
		SmoothingLength: float64(s.SmoothingLength),

		DensityMean:  dens.Mean,
		DensityStd:   dens.Std,
		DensityMin:   dens.Min,
		DensityMax:   dens.Max,
		DensityP10:   dens.P10,
		DensityP50:   dens.P50,
		DensityP90:   dens.P90,
		DensityError: dens.Error,
		Compression:  compression,

		KineticEnergy: float64(systems.KineticEnergy(s.Frame.Vel, s.ParticleMass)),
		MomentumX:     momentum.X,
		MomentumY:     momentum.Y,
		MomentumZ:     momentum.Z,
		MaxSpeed:      maxSpeed,

		WallHits: c.wallHits,

		OccupiedCells:    s.OccupiedCells,
		MaxCellOccupancy: s.MaxCellOccupancy,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.wallHits = 0

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int64 {
	return c.windowDurationTicks
}
