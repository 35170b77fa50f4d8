package systems

import "math"

// KernelConstants holds the smoothing kernel coefficients for one
// (smoothing length, particle mass) pair. Recompute whenever either changes.
type KernelConstants struct {
	H    float32
	H2   float32
	Mass float32

	Poly6          float32 // 315 / (64 pi h^9)
	GradPoly6      float32 // -945 / (32 pi h^9)
	GradSpiky      float32 // -45 / (pi h^6)
	Grad2Viscosity float32 // 45 / (pi h^6)
}

// NewKernelConstants precomputes the kernel coefficients.
func NewKernelConstants(h, mass float32) KernelConstants {
	hd := float64(h)
	h6 := math.Pow(hd, 6)
	h9 := math.Pow(hd, 9)
	gradSpiky := -45.0 / (math.Pi * h6)
	return KernelConstants{
		H:              h,
		H2:             h * h,
		Mass:           mass,
		Poly6:          float32(315.0 / (64.0 * math.Pi * h9)),
		GradPoly6:      float32(-945.0 / (32.0 * math.Pi * h9)),
		GradSpiky:      float32(gradSpiky),
		Grad2Viscosity: float32(-gradSpiky),
	}
}

// DensityWeight returns m * poly6 * (h^2 - r^2)^3, or 0 outside the support.
func (k *KernelConstants) DensityWeight(r2 float32) float32 {
	if r2 >= k.H2 {
		return 0
	}
	d := k.H2 - r2
	return k.Mass * k.Poly6 * d * d * d
}

// SpikyGrad returns the radial magnitude gradSpiky * (h - r)^2.
func (k *KernelConstants) SpikyGrad(r float32) float32 {
	if r >= k.H {
		return 0
	}
	d := k.H - r
	return k.GradSpiky * d * d
}

// ViscosityLaplacian returns grad2Viscosity * (h - r).
func (k *KernelConstants) ViscosityLaplacian(r float32) float32 {
	if r >= k.H {
		return 0
	}
	return k.Grad2Viscosity * (k.H - r)
}

// Poly6Grad returns the scalar gradPoly6 * (h^2 - r^2)^2; multiply by the
// separation vector for the full gradient.
func (k *KernelConstants) Poly6Grad(r2 float32) float32 {
	if r2 >= k.H2 {
		return 0
	}
	d := k.H2 - r2
	return k.GradPoly6 * d * d
}
