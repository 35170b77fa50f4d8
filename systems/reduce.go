package systems

import (
	"unsafe"

	"gonum.org/v1/gonum/blas/blas32"
)

// channel views one component of a packed record slice as a strided BLAS
// vector without copying.
func channel(recs []Vec4, c int) blas32.Vector {
	flat := unsafe.Slice(&recs[0][0], 4*len(recs))
	return blas32.Vector{N: len(recs), Inc: 4, Data: flat[c:]}
}

// KineticEnergy returns 0.5 * m * sum |v|^2 over the velocity records.
func KineticEnergy(vel []Vec4, mass float32) float32 {
	if len(vel) == 0 {
		return 0
	}
	var sum float32
	for c := 0; c < 3; c++ {
		v := channel(vel, c)
		sum += blas32.Dot(v, v)
	}
	return 0.5 * mass * sum
}

// DensitySum returns the sum of the w channel of the position records.
// Densities are never negative, so the absolute sum is the plain sum.
func DensitySum(posDens []Vec4) float32 {
	if len(posDens) == 0 {
		return 0
	}
	return blas32.Asum(channel(posDens, 3))
}
