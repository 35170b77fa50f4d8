package systems

// DensityField evaluates per-particle density from the grid.
type DensityField struct {
	Kernel KernelConstants
}

// EvaluateRange computes the density of particles [start, end). Positions
// are read from src and (position, density) records are written to dst.
// src and dst must be different slots.
func (d *DensityField) EvaluateRange(grid *HashGrid, src, dst []Vec4, start, end int) {
	k := &d.Kernel
	for i := start; i < end; i++ {
		pi := &src[i]
		var rho float32
		// Self contribution is included on purpose: j == i adds m*poly6*h^6.
		grid.Walk(Vec3{pi[0], pi[1], pi[2]}, func(j int32) {
			rho += k.DensityWeight(distanceSq(pi, &src[j]))
		})
		dst[i] = Vec4{pi[0], pi[1], pi[2], rho}
	}
}

// Evaluate runs the whole density pass on the calling goroutine.
func (d *DensityField) Evaluate(grid *HashGrid, src, dst []Vec4) {
	d.EvaluateRange(grid, src, dst, 0, len(src))
}

// Gradient returns the colour field gradient at particle i. It points into
// the fluid and its magnitude peaks at the free surface. posDens must hold
// finished densities.
func (d *DensityField) Gradient(grid *HashGrid, posDens []Vec4, i int) Vec3 {
	k := &d.Kernel
	pi := &posDens[i]
	var n Vec3
	grid.Walk(Vec3{pi[0], pi[1], pi[2]}, func(j int32) {
		if int(j) == i {
			return
		}
		pj := &posDens[j]
		if pj[3] <= 0 {
			return
		}
		r2 := distanceSq(pi, pj)
		w := k.Mass / pj[3] * k.Poly6Grad(r2)
		if w == 0 {
			return
		}
		n[0] += w * (pi[0] - pj[0])
		n[1] += w * (pi[1] - pj[1])
		n[2] += w * (pi[2] - pj[2])
	})
	return n
}
