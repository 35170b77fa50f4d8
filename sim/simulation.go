// Package sim owns a running SPH simulation: the double-buffered particle
// state, the spatial grid and the worker pool that runs each step's passes.
package sim

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/systems"
	"github.com/pthm-cable/sph/telemetry"
)

// ErrClosed is returned by Step after Close.
var ErrClosed = fmt.Errorf("simulation closed: %w", systems.ErrBufferUnavailable)

// Simulation advances a fixed-capacity particle set through
// clear, build, density, forces and flip once per Step.
//
// A Simulation is driven from one goroutine. Parallelism lives inside
// Step; none of its methods may be called concurrently.
type Simulation struct {
	cfg *config.Config
	log *slog.Logger

	buf     *systems.DoubleBuffer
	grid    *systems.HashGrid
	density systems.DensityField
	forces  systems.ForceIntegrator
	pool    *workerPool
	perf    *telemetry.PerfCollector

	seeded int
	tick   int64

	// Parameter changes wait for the start of the next step.
	pendingH     float32
	pendingCount int

	chunkHits    []int
	lastWallHits int

	err    error
	closed bool
}

// New allocates every buffer at capacity, seeds the particles and runs an
// initial density pass so CurrentDensities is meaningful before any Step.
func New(cfg *config.Config, seeder Seeder) (*Simulation, error) {
	if cfg == nil {
		return nil, errors.New("sim: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &cfg.Derived

	params, err := systems.NewGridParams(d.Domain, d.H32)
	if err != nil {
		return nil, err
	}
	grid := systems.NewHashGrid(d.CellCapacity, cfg.Fluid.Capacity)
	if err := grid.SetParams(params); err != nil {
		return nil, err
	}
	grid.SetCheckBounds(cfg.Debug.CheckInvariants)

	particles, err := seeder.Seed(cfg.Fluid.Capacity)
	if err != nil {
		return nil, fmt.Errorf("seeding: %w", err)
	}
	if len(particles) > cfg.Fluid.Capacity {
		return nil, fmt.Errorf("%d seeded particles, capacity %d: %w", len(particles), cfg.Fluid.Capacity, systems.ErrCapacity)
	}
	count := cfg.Fluid.ParticleCount
	if count == 0 {
		count = len(particles)
	}
	if count > len(particles) {
		return nil, fmt.Errorf("particle_count %d but only %d seeded: %w", count, len(particles), systems.ErrCapacity)
	}

	buf := systems.NewDoubleBuffer(cfg.Fluid.Capacity)
	for i, p := range particles {
		buf.Seed(i, p.Pos, p.Vel)
	}
	if err := buf.SetCount(count); err != nil {
		return nil, err
	}
	if err := grid.SetCount(count); err != nil {
		return nil, err
	}

	kernel := systems.NewKernelConstants(d.H32, d.Mass32)
	pool := newWorkerPool(cfg.Parallel.Workers, cfg.Parallel.Threshold, cfg.Parallel.ChunksPerWorker)

	s := &Simulation{
		cfg:     cfg,
		log:     slog.Default().With("component", "sim"),
		buf:     buf,
		grid:    grid,
		density: systems.DensityField{Kernel: kernel},
		forces: systems.ForceIntegrator{
			Kernel: kernel,
			Fluid:  d.Fluid,
			Domain: d.Domain,
		},
		pool:         pool,
		seeded:       len(particles),
		pendingCount: -1,
		chunkHits:    make([]int, pool.maxChunks()),
	}

	if err := s.initDensities(); err != nil {
		s.Close()
		return nil, fmt.Errorf("initial density pass: %w", err)
	}

	s.log.Info("simulation ready",
		"particles", count,
		"seeded", len(particles),
		"capacity", cfg.Fluid.Capacity,
		"cells", params.CellCount,
		"cell_capacity", d.CellCapacity,
		"smoothing_length", d.H32,
		"workers", pool.numWorkers,
	)
	return s, nil
}

// initDensities runs clear, build and density once and flips, so the
// current slot carries densities for the seeded positions. Velocities
// were seeded into both slots, so the flipped-to slot is complete.
func (s *Simulation) initDensities() error {
	cur, err := s.buf.Current()
	if err != nil {
		return err
	}
	next, err := s.buf.Other()
	if err != nil {
		return err
	}
	if err := s.buildGrid(cur.PosDens); err != nil {
		return err
	}
	s.runDensity(cur, next)
	s.buf.Flip()
	return nil
}

// SetPerfCollector enables per-phase timing. The caller owns the
// collector's StartTick/EndTick; Step only marks phases.
func (s *Simulation) SetPerfCollector(p *telemetry.PerfCollector) {
	s.perf = p
}

func (s *Simulation) phase(name string) {
	if s.perf != nil {
		s.perf.StartPhase(name)
	}
}

// Step advances the simulation by dt.
//
// On failure the buffers are not flipped, the simulation is marked failed
// and every later Step returns the same error.
func (s *Simulation) Step(dt float32) error {
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}
	if !(dt > 0) {
		return fmt.Errorf("time step %g must be positive", dt)
	}

	s.phase(telemetry.PhaseGridParams)
	if err := s.applyPending(); err != nil {
		return s.fail(err)
	}
	n := s.buf.Count()
	if s.perf != nil {
		s.perf.RecordParticles(n)
	}

	cur, err := s.buf.Current()
	if err != nil {
		return s.fail(err)
	}
	next, err := s.buf.Other()
	if err != nil {
		return s.fail(err)
	}

	s.phase(telemetry.PhaseGridClear)
	s.clearGrid()

	s.phase(telemetry.PhaseGridBuild)
	if err := s.fillGrid(cur.PosDens); err != nil {
		return s.fail(err)
	}

	s.phase(telemetry.PhaseDensity)
	s.runDensity(cur, next)

	s.phase(telemetry.PhaseForces)
	clear(s.chunkHits)
	if err := s.pool.run(n, func(chunk, start, end int) error {
		s.chunkHits[chunk] += s.forces.StepRange(s.grid, cur, next, dt, start, end)
		return nil
	}); err != nil {
		return s.fail(err)
	}
	hits := 0
	for _, h := range s.chunkHits {
		hits += h
	}
	s.lastWallHits = hits

	s.phase(telemetry.PhaseFlip)
	s.buf.Flip()
	s.tick++
	return nil
}

// StepDefault advances by the configured physics.dt.
func (s *Simulation) StepDefault() error {
	return s.Step(s.cfg.Derived.DT32)
}

// buildGrid clears the grid and buckets posDens into it.
func (s *Simulation) buildGrid(posDens []systems.Vec4) error {
	s.clearGrid()
	return s.fillGrid(posDens)
}

func (s *Simulation) clearGrid() {
	_ = s.pool.run(s.grid.ClearSize(), func(_, start, end int) error {
		s.grid.ClearRange(start, end)
		return nil
	})
}

func (s *Simulation) fillGrid(posDens []systems.Vec4) error {
	return s.pool.run(s.grid.Count(), func(_, start, end int) error {
		return s.grid.BuildRange(posDens, start, end)
	})
}

func (s *Simulation) runDensity(cur, next systems.Slot) {
	_ = s.pool.run(len(cur.PosDens), func(_, start, end int) error {
		s.density.EvaluateRange(s.grid, cur.PosDens, next.PosDens, start, end)
		return nil
	})
}

// applyPending installs parameter changes requested since the last step.
func (s *Simulation) applyPending() error {
	if s.pendingH > 0 {
		h := s.pendingH
		s.pendingH = 0
		params, err := systems.NewGridParams(s.cfg.Derived.Domain, h)
		if err != nil {
			return err
		}
		if err := s.grid.SetParams(params); err != nil {
			return err
		}
		kernel := systems.NewKernelConstants(h, s.cfg.Derived.Mass32)
		s.density.Kernel = kernel
		s.forces.Kernel = kernel
		s.log.Info("smoothing length applied", "tick", s.tick, "h", h, "cells", params.CellCount)
	}
	if s.pendingCount >= 0 {
		n := s.pendingCount
		s.pendingCount = -1
		if err := s.buf.SetCount(n); err != nil {
			return err
		}
		if err := s.grid.SetCount(n); err != nil {
			return err
		}
		s.log.Info("particle count applied", "tick", s.tick, "particles", n)
	}
	return nil
}

func (s *Simulation) fail(err error) error {
	s.err = fmt.Errorf("step %d: %w", s.tick, err)
	s.log.Error("step failed", "tick", s.tick, "error", err)
	return s.err
}

// Err returns the error that failed the simulation, if any.
func (s *Simulation) Err() error { return s.err }

// SetSmoothingLength validates h now and applies it, with the matching
// grid parameters and kernel constants, at the start of the next step.
func (s *Simulation) SetSmoothingLength(h float32) error {
	if !(h >= s.cfg.Derived.MinH32) {
		return fmt.Errorf("smoothing length %g, minimum %g: %w", h, s.cfg.Derived.MinH32, systems.ErrSmoothingLength)
	}
	params, err := systems.NewGridParams(s.cfg.Derived.Domain, h)
	if err != nil {
		return err
	}
	if err := params.Validate(s.grid.CellCapacity()); err != nil {
		return err
	}
	s.pendingH = h
	s.log.Info("smoothing length change queued", "tick", s.tick, "h", h)
	return nil
}

// SetParticleCount changes the number of live particles from the next
// step on. Only seeded particles can be activated; a particle that is
// deactivated and later reactivated resumes from the state the current
// slot last held for it.
func (s *Simulation) SetParticleCount(n int) error {
	if n < 0 || n > s.seeded {
		return fmt.Errorf("%d particles, %d seeded: %w", n, s.seeded, systems.ErrCapacity)
	}
	s.pendingCount = n
	return nil
}

// SmoothingLength returns the smoothing length in use.
func (s *Simulation) SmoothingLength() float32 { return s.density.Kernel.H }

// Count returns the number of live particles.
func (s *Simulation) Count() int { return s.buf.Count() }

// Tick returns the number of completed steps.
func (s *Simulation) Tick() int64 { return s.tick }

// ResumeAt sets the tick counter of a run restored from a snapshot. Only
// valid before the first Step.
func (s *Simulation) ResumeAt(tick int64) error {
	if s.tick != 0 {
		return fmt.Errorf("resume at tick %d after %d steps", tick, s.tick)
	}
	s.tick = tick
	return nil
}

// LastWallHits returns the wall reflections applied by the last step.
func (s *Simulation) LastWallHits() int { return s.lastWallHits }

// CurrentPositions copies the positions of the current slot.
func (s *Simulation) CurrentPositions() []systems.Vec3 { return s.buf.CurrentPositions() }

// CurrentVelocities copies the velocities of the current slot.
func (s *Simulation) CurrentVelocities() []systems.Vec3 { return s.buf.CurrentVelocities() }

// CurrentDensities copies the densities of the current slot.
func (s *Simulation) CurrentDensities() []float32 { return s.buf.CurrentDensities() }

// Frame returns a read-only view of the current slot. It is valid until
// the next Step.
func (s *Simulation) Frame() (systems.Slot, error) {
	return s.buf.Current()
}

// Sample gathers the state the telemetry collector needs. Grid occupancy
// reflects the last grid build.
func (s *Simulation) Sample() (telemetry.FluidSample, error) {
	frame, err := s.buf.Current()
	if err != nil {
		return telemetry.FluidSample{}, err
	}
	occupied, longest := s.grid.Occupancy()
	return telemetry.FluidSample{
		Frame:            frame,
		ParticleMass:     s.cfg.Derived.Mass32,
		RestDensity:      s.forces.Fluid.RestDensity,
		SmoothingLength:  s.density.Kernel.H,
		OccupiedCells:    occupied,
		MaxCellOccupancy: longest,
	}, nil
}

// Snapshot captures the current slot for saving.
func (s *Simulation) Snapshot() (*telemetry.Snapshot, error) {
	frame, err := s.buf.Current()
	if err != nil {
		return nil, err
	}
	return &telemetry.Snapshot{
		Version:         telemetry.SnapshotVersion,
		RNGSeed:         s.cfg.Seed.RNGSeed,
		DomainMin:       s.cfg.Derived.Domain.Min,
		DomainSize:      s.cfg.Derived.Domain.Size,
		SmoothingLength: s.density.Kernel.H,
		ParticleMass:    s.cfg.Derived.Mass32,
		Tick:            s.tick,
		Particles:       telemetry.CaptureParticles(frame),
	}, nil
}

// SurfaceNormals returns the colour field gradient of every live particle
// at the current positions. The current slot's densities belong to the
// positions before the last integration, so it rebuilds the grid and runs
// a density pass into the other slot first. Both are redone by the next
// Step.
func (s *Simulation) SurfaceNormals() ([]systems.Vec3, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	frame, err := s.buf.Current()
	if err != nil {
		return nil, err
	}
	scratch, err := s.buf.Other()
	if err != nil {
		return nil, err
	}
	if err := s.buildGrid(frame.PosDens); err != nil {
		return nil, err
	}
	s.runDensity(frame, scratch)

	out := make([]systems.Vec3, len(scratch.PosDens))
	err = s.pool.run(len(out), func(_, start, end int) error {
		for i := start; i < end; i++ {
			out[i] = s.density.Gradient(s.grid, scratch.PosDens, i)
		}
		return nil
	})
	return out, err
}

// Close stops the workers and releases the particle buffers. Later steps
// fail with ErrClosed.
func (s *Simulation) Close() {
	if s.closed {
		return
	}
	s.pool.stop()
	s.buf.Release()
	s.closed = true
}
