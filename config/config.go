// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/sph/systems"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Fluid     FluidConfig     `yaml:"fluid"`
	Kernel    KernelConfig    `yaml:"kernel"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Domain    DomainConfig    `yaml:"domain"`
	Boundary  BoundaryConfig  `yaml:"boundary"`
	Seed      SeedConfig      `yaml:"seed"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Debug     DebugConfig     `yaml:"debug"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// FluidConfig holds particle and material parameters.
type FluidConfig struct {
	ParticleCount int     `yaml:"particle_count"` // Live particles at start, 0 = every seeded particle
	Capacity      int     `yaml:"capacity"`       // Allocated particles, fixed for the run
	ParticleMass  float64 `yaml:"particle_mass"`
	RestDensity   float64 `yaml:"rest_density"`
	Stiffness     float64 `yaml:"stiffness"` // Gas constant k in p = k(rho - rho0)
	Viscosity     float64 `yaml:"viscosity"` // mu
}

// KernelConfig holds smoothing length settings.
type KernelConfig struct {
	SmoothingLength        float64 `yaml:"smoothing_length"`
	MinimumSmoothingLength float64 `yaml:"minimum_smoothing_length"` // Sizes the cell array
}

// PhysicsConfig holds integration settings.
type PhysicsConfig struct {
	DT      float64 `yaml:"dt"`
	Gravity r3.Vec  `yaml:"gravity"`
}

// DomainConfig is the axis-aligned simulation box.
type DomainConfig struct {
	Min  r3.Vec `yaml:"min"`
	Size r3.Vec `yaml:"size"`
}

// BoundaryConfig holds wall response settings.
type BoundaryConfig struct {
	Restitution float64 `yaml:"restitution"` // 1 = pure velocity negation
}

// SeedConfig describes the initial lattice fill.
type SeedConfig struct {
	Min     r3.Vec  `yaml:"min"`
	Size    r3.Vec  `yaml:"size"`
	Spacing float64 `yaml:"spacing"`
	Jitter  float64 `yaml:"jitter"` // Fraction of spacing
	RNGSeed uint64  `yaml:"rng_seed"`

	VelocityNoise VelocityNoiseConfig `yaml:"velocity_noise"`
}

// VelocityNoiseConfig perturbs the initial velocities with Perlin noise.
type VelocityNoiseConfig struct {
	Amplitude float64 `yaml:"amplitude"` // 0 = off
	Scale     float64 `yaml:"scale"`     // Noise features per unit length
}

// ParallelConfig holds worker pool settings.
type ParallelConfig struct {
	Workers         int `yaml:"workers"`           // 0 = GOMAXPROCS
	Threshold       int `yaml:"threshold"`         // Below this a pass runs inline
	ChunksPerWorker int `yaml:"chunks_per_worker"` // Work items per worker per pass
}

// DebugConfig holds runtime checks.
type DebugConfig struct {
	CheckInvariants bool `yaml:"check_invariants"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"` // Simulated seconds per stats row
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
	SnapshotEvery       int     `yaml:"snapshot_every"` // Ticks between particle snapshots, 0 = off
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32         float32 // Physics.DT as float32
	H32          float32 // Kernel.SmoothingLength as float32
	MinH32       float32 // Kernel.MinimumSmoothingLength as float32
	Mass32       float32
	Gravity      systems.Vec3
	Domain       systems.Domain
	SeedDomain   systems.Domain
	Fluid        systems.FluidParams
	CellCapacity int // Cells needed at the minimum smoothing length
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration and recomputes derived values.
// Call it again after changing fields by hand.
func (c *Config) Validate() error {
	f := &c.Fluid
	if f.Capacity <= 0 {
		return fmt.Errorf("fluid.capacity %d must be positive: %w", f.Capacity, systems.ErrCapacity)
	}
	if f.ParticleCount < 0 || f.ParticleCount > f.Capacity {
		return fmt.Errorf("fluid.particle_count %d, capacity %d: %w", f.ParticleCount, f.Capacity, systems.ErrCapacity)
	}
	if f.ParticleMass <= 0 || f.RestDensity <= 0 {
		return fmt.Errorf("fluid.particle_mass and fluid.rest_density must be positive")
	}
	if f.Stiffness < 0 || f.Viscosity < 0 {
		return fmt.Errorf("fluid.stiffness and fluid.viscosity must not be negative")
	}

	k := &c.Kernel
	if k.MinimumSmoothingLength <= 0 {
		return fmt.Errorf("kernel.minimum_smoothing_length %g: %w", k.MinimumSmoothingLength, systems.ErrSmoothingLength)
	}
	if k.SmoothingLength < k.MinimumSmoothingLength {
		return fmt.Errorf("kernel.smoothing_length %g below minimum %g: %w",
			k.SmoothingLength, k.MinimumSmoothingLength, systems.ErrSmoothingLength)
	}
	if c.Physics.DT <= 0 {
		return fmt.Errorf("physics.dt %g must be positive", c.Physics.DT)
	}
	if c.Boundary.Restitution < 0 || c.Boundary.Restitution > 1 {
		return fmt.Errorf("boundary.restitution %g outside [0, 1]", c.Boundary.Restitution)
	}
	if c.Parallel.Workers < 0 || c.Parallel.Threshold < 0 || c.Parallel.ChunksPerWorker < 0 {
		return fmt.Errorf("parallel settings must not be negative")
	}

	c.computeDerived()

	capacity, err := systems.CellCapacity(c.Derived.Domain, c.Derived.MinH32)
	if err != nil {
		return fmt.Errorf("domain: %w", err)
	}
	c.Derived.CellCapacity = capacity
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)
	c.Derived.H32 = float32(c.Kernel.SmoothingLength)
	c.Derived.MinH32 = float32(c.Kernel.MinimumSmoothingLength)
	c.Derived.Mass32 = float32(c.Fluid.ParticleMass)
	c.Derived.Gravity = Vec3(c.Physics.Gravity)
	c.Derived.Domain = systems.Domain{Min: Vec3(c.Domain.Min), Size: Vec3(c.Domain.Size)}
	c.Derived.SeedDomain = systems.Domain{Min: Vec3(c.Seed.Min), Size: Vec3(c.Seed.Size)}
	c.Derived.Fluid = systems.FluidParams{
		RestDensity: float32(c.Fluid.RestDensity),
		Stiffness:   float32(c.Fluid.Stiffness),
		Viscosity:   float32(c.Fluid.Viscosity),
		Gravity:     c.Derived.Gravity,
		Restitution: float32(c.Boundary.Restitution),
	}
}

// Vec3 narrows a config vector to the simulation's float32 vector.
func Vec3(v r3.Vec) systems.Vec3 {
	return systems.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
