package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const benchParticles = 32 * 1024

func benchSetup(b *testing.B, h float32) (*HashGrid, []Vec4, []Vec4) {
	b.Helper()
	d := unitDomain()
	pos := randomParticles(benchParticles, d, 42)
	g := newTestGrid(b, d, h, benchParticles)
	if err := g.Build(pos); err != nil {
		b.Fatal(err)
	}
	return g, pos, make([]Vec4, benchParticles)
}

func BenchmarkGridBuildSerial(b *testing.B) {
	g, pos, _ := benchSetup(b, 0.05)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		g.Clear()
		if err := g.Build(pos); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGridBuildConcurrent(b *testing.B) {
	g, pos, _ := benchSetup(b, 0.05)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		buildConcurrent(b, g, pos, 8)
	}
}

func BenchmarkDensityPass(b *testing.B) {
	g, pos, out := benchSetup(b, 0.05)
	field := DensityField{Kernel: NewKernelConstants(0.05, 0.001)}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		field.Evaluate(g, pos, out)
	}
}

func BenchmarkForcePass(b *testing.B) {
	g, pos, out := benchSetup(b, 0.05)
	f := testIntegrator(0.05, unitDomain())
	field := DensityField{Kernel: f.Kernel}
	field.Evaluate(g, pos, out)
	cur := Slot{PosDens: pos, Vel: make([]Vec4, benchParticles)}
	next := Slot{PosDens: out, Vel: make([]Vec4, benchParticles)}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		f.Step(g, cur, next, 0.001)
	}
}

func kineticEnergyScalar(vel []Vec4, mass float32) float32 {
	var sum float32
	for i := range vel {
		v := &vel[i]
		sum += v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	}
	return 0.5 * mass * sum
}

func benchVelocities() []Vec4 {
	vel := make([]Vec4, benchParticles)
	for i := range vel {
		vel[i] = Vec4{float32(i%7) * 0.01, float32(i%5) * -0.02, float32(i%3) * 0.03, 0}
	}
	return vel
}

func BenchmarkKineticEnergyScalar(b *testing.B) {
	vel := benchVelocities()
	b.ResetTimer()
	var e float32
	for n := 0; n < b.N; n++ {
		e = kineticEnergyScalar(vel, 0.001)
	}
	_ = e
}

func BenchmarkKineticEnergyBLAS(b *testing.B) {
	vel := benchVelocities()
	b.ResetTimer()
	var e float32
	for n := 0; n < b.N; n++ {
		e = KineticEnergy(vel, 0.001)
	}
	_ = e
}

func TestKineticEnergy_MatchesScalar(t *testing.T) {
	vel := benchVelocities()[:1000]
	assert.InEpsilon(t, kineticEnergyScalar(vel, 0.5), KineticEnergy(vel, 0.5), 1e-4)
	assert.Zero(t, KineticEnergy(nil, 1))
}

func TestDensitySum(t *testing.T) {
	recs := []Vec4{{9, 9, 9, 1}, {-1, -1, -1, 2.5}, {0, 0, 0, 0.5}}
	assert.Equal(t, float32(4), DensitySum(recs))
	assert.Zero(t, DensitySum(nil))
}
