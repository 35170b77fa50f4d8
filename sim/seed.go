package sim

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/systems"
	"github.com/pthm-cable/sph/telemetry"
)

// Particle is the initial state of one particle.
type Particle struct {
	Pos systems.Vec3
	Vel systems.Vec3
}

// Seeder produces the initial particles, at most capacity of them.
// Every particle a later SetParticleCount may activate must be seeded.
type Seeder interface {
	Seed(capacity int) ([]Particle, error)
}

// LatticeSeeder fills a box with particles on a regular lattice, each
// offset by half a spacing from the box corner and optionally jittered.
type LatticeSeeder struct {
	Region   systems.Domain
	Spacing  float32
	Jitter   float32 // Fraction of Spacing, [0, 1)
	RNGSeed  uint64
	Velocity systems.Vec3

	// Optional coherent velocity perturbation added to Velocity.
	NoiseAmplitude float32
	NoiseScale     float32
}

// NewLatticeSeeder builds a seeder from the seed section of cfg.
func NewLatticeSeeder(cfg *config.Config) *LatticeSeeder {
	return &LatticeSeeder{
		Region:  cfg.Derived.SeedDomain,
		Spacing: float32(cfg.Seed.Spacing),
		Jitter:  float32(cfg.Seed.Jitter),
		RNGSeed: cfg.Seed.RNGSeed,

		NoiseAmplitude: float32(cfg.Seed.VelocityNoise.Amplitude),
		NoiseScale:     float32(cfg.Seed.VelocityNoise.Scale),
	}
}

// Dims returns the lattice size along each axis.
func (s *LatticeSeeder) Dims() [3]int {
	var d [3]int
	for a := 0; a < 3; a++ {
		d[a] = int(math.Floor(float64(s.Region.Size[a] / s.Spacing)))
	}
	return d
}

// Seed implements Seeder. Points are emitted x fastest, then y, then z.
func (s *LatticeSeeder) Seed(capacity int) ([]Particle, error) {
	if !(s.Spacing > 0) {
		return nil, fmt.Errorf("lattice spacing %g must be positive", s.Spacing)
	}
	if s.Jitter < 0 || s.Jitter >= 1 {
		return nil, fmt.Errorf("lattice jitter %g outside [0, 1)", s.Jitter)
	}
	dims := s.Dims()
	total := dims[0] * dims[1] * dims[2]
	if total == 0 {
		return nil, fmt.Errorf("seed region %v holds no lattice points at spacing %g", s.Region.Size, s.Spacing)
	}
	n := min(total, capacity)

	rng := rand.New(rand.NewPCG(s.RNGSeed, s.RNGSeed+1))
	amp := s.Jitter * s.Spacing / 2
	var noise *PerlinNoise
	if s.NoiseAmplitude != 0 {
		noise = NewPerlinNoise(s.RNGSeed)
	}
	out := make([]Particle, 0, n)
	for z := 0; z < dims[2] && len(out) < n; z++ {
		for y := 0; y < dims[1] && len(out) < n; y++ {
			for x := 0; x < dims[0] && len(out) < n; x++ {
				var p systems.Vec3
				for a, i := range [3]int{x, y, z} {
					p[a] = s.Region.Min[a] + s.Spacing*(float32(i)+0.5)
					if amp > 0 {
						p[a] += (2*rng.Float32() - 1) * amp
					}
				}
				vel := s.Velocity
				if noise != nil {
					dv := noise.Velocity(p, s.NoiseScale, s.NoiseAmplitude)
					for a := range vel {
						vel[a] += dv[a]
					}
				}
				out = append(out, Particle{Pos: p, Vel: vel})
			}
		}
	}
	return out, nil
}

// PointSeeder seeds an explicit particle list.
type PointSeeder []Particle

// Seed implements Seeder.
func (s PointSeeder) Seed(capacity int) ([]Particle, error) {
	if len(s) > capacity {
		return nil, fmt.Errorf("%d seeded particles, capacity %d: %w", len(s), capacity, systems.ErrCapacity)
	}
	return s, nil
}

// SnapshotSeeder restarts from a saved snapshot.
func SnapshotSeeder(snap *telemetry.Snapshot) PointSeeder {
	out := make(PointSeeder, len(snap.Particles))
	for i, p := range snap.Particles {
		out[i] = Particle{Pos: p.Pos, Vel: p.Vel}
	}
	return out
}
