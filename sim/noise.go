package sim

import (
	"math"
	"math/rand/v2"

	"github.com/pthm-cable/sph/systems"
)

// PerlinNoise generates coherent noise values.
type PerlinNoise struct {
	perm [512]int
}

// NewPerlinNoise creates a new Perlin noise generator.
func NewPerlinNoise(seed uint64) *PerlinNoise {
	p := &PerlinNoise{}
	rng := rand.New(rand.NewPCG(seed, ^seed))

	// Initialize permutation table
	var perm [256]int
	for i := range perm {
		perm[i] = i
	}

	// Shuffle
	rng.Shuffle(len(perm), func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	// Duplicate
	for i := 0; i < 256; i++ {
		p.perm[i] = perm[i]
		p.perm[i+256] = perm[i]
	}

	return p
}

// Noise3D returns a noise value in roughly [-1, 1] for 3D coordinates.
func (p *PerlinNoise) Noise3D(x, y, z float64) float64 {
	// Find unit cube
	X := int(math.Floor(x)) & 255
	Y := int(math.Floor(y)) & 255
	Z := int(math.Floor(z)) & 255

	// Find relative position in cube
	x -= math.Floor(x)
	y -= math.Floor(y)
	z -= math.Floor(z)

	// Compute fade curves
	u := fade(x)
	v := fade(y)
	w := fade(z)

	// Hash coordinates of cube corners
	A := p.perm[X] + Y
	AA := p.perm[A] + Z
	AB := p.perm[A+1] + Z
	B := p.perm[X+1] + Y
	BA := p.perm[B] + Z
	BB := p.perm[B+1] + Z

	// Blend results from 8 corners
	return lerp(w, lerp(v, lerp(u, grad3D(p.perm[AA], x, y, z),
		grad3D(p.perm[BA], x-1, y, z)),
		lerp(u, grad3D(p.perm[AB], x, y-1, z),
			grad3D(p.perm[BB], x-1, y-1, z))),
		lerp(v, lerp(u, grad3D(p.perm[AA+1], x, y, z-1),
			grad3D(p.perm[BA+1], x-1, y, z-1)),
			lerp(u, grad3D(p.perm[AB+1], x, y-1, z-1),
				grad3D(p.perm[BB+1], x-1, y-1, z-1))))
}

// noiseOffsets decorrelate the three velocity components.
var noiseOffsets = [3][3]float64{
	{0, 0, 0},
	{31.416, 47.853, 12.793},
	{-73.156, 5.439, 91.277},
}

// Velocity samples a smooth random velocity at p. scale is the number of
// noise features per unit length.
func (p *PerlinNoise) Velocity(pos systems.Vec3, scale, amplitude float32) systems.Vec3 {
	var v systems.Vec3
	for a, off := range noiseOffsets {
		n := p.Noise3D(
			float64(pos[0]*scale)+off[0],
			float64(pos[1]*scale)+off[1],
			float64(pos[2]*scale)+off[2],
		)
		v[a] = amplitude * float32(n)
	}
	return v
}

func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(t, a, b float64) float64 {
	return a + t*(b-a)
}

func grad3D(hash int, x, y, z float64) float64 {
	h := hash & 15
	u := x
	if h >= 8 {
		u = y
	}
	v := y
	if h >= 4 {
		if h == 12 || h == 14 {
			v = x
		} else {
			v = z
		}
	}
	if h&1 != 0 {
		u = -u
	}
	if h&2 != 0 {
		v = -v
	}
	return u + v
}
