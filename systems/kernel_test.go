package systems

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewKernelConstants_UnitSmoothingLength(t *testing.T) {
	k := NewKernelConstants(1, 1)

	assert.InDelta(t, 315/(64*math.Pi), k.Poly6, 1e-6)
	assert.InDelta(t, -945/(32*math.Pi), k.GradPoly6, 1e-5)
	assert.InDelta(t, -45/math.Pi, k.GradSpiky, 1e-5)
	assert.InDelta(t, 45/math.Pi, k.Grad2Viscosity, 1e-5)
	assert.Equal(t, float32(1), k.H2)
}

func TestNewKernelConstants_Scaling(t *testing.T) {
	h := float32(0.5)
	k := NewKernelConstants(h, 0.02)

	h6 := math.Pow(0.5, 6)
	h9 := math.Pow(0.5, 9)
	assert.InEpsilon(t, 315/(64*math.Pi*h9), k.Poly6, 1e-5)
	assert.InEpsilon(t, 45/(math.Pi*h6), k.Grad2Viscosity, 1e-5)
	assert.Equal(t, -k.GradSpiky, k.Grad2Viscosity)
	assert.InDelta(t, 0.25, k.H2, 1e-7)
}

func TestKernelConstants_CompactSupport(t *testing.T) {
	k := NewKernelConstants(1, 1)

	assert.Zero(t, k.DensityWeight(1))
	assert.Zero(t, k.DensityWeight(1.5))
	assert.Zero(t, k.SpikyGrad(1))
	assert.Zero(t, k.ViscosityLaplacian(2))
	assert.Zero(t, k.Poly6Grad(1))

	assert.Greater(t, k.DensityWeight(0.99), float32(0))
	assert.Less(t, k.SpikyGrad(0.5), float32(0))
	assert.Greater(t, k.ViscosityLaplacian(0.5), float32(0))
}

func TestKernelConstants_DensityWeightAtOrigin(t *testing.T) {
	k := NewKernelConstants(1, 2)
	// m * poly6 * h^6
	assert.InDelta(t, 2*315/(64*math.Pi), k.DensityWeight(0), 1e-5)
}
