package systems

// FluidParams are the material and environment constants of the fluid.
type FluidParams struct {
	RestDensity float32
	Stiffness   float32
	Viscosity   float32
	Gravity     Vec3
	// Restitution scales the reflected wall-normal velocity. 1 is a pure
	// elastic reflection.
	Restitution float32
}

// Pressure is the linear equation of state k * (rho - rho0).
func (p *FluidParams) Pressure(rho float32) float32 {
	return p.Stiffness * (rho - p.RestDensity)
}

// ForceIntegrator accumulates pressure, viscosity and gravity for each
// particle and advances it with semi-implicit Euler.
type ForceIntegrator struct {
	Kernel KernelConstants
	Fluid  FluidParams
	Domain Domain
}

// StepRange advances particles [start, end).
//
// Positions and velocities are read from cur. Densities are read from the
// w channel of next.PosDens, where the density pass left them. New
// positions go to the xyz channels of next.PosDens and new velocities to
// next.Vel. Worker i only ever writes index i, and no worker reads the
// channels written here, so ranges may run concurrently.
//
// It returns the number of wall reflections applied.
func (f *ForceIntegrator) StepRange(grid *HashGrid, cur, next Slot, dt float32, start, end int) int {
	k := &f.Kernel
	fl := &f.Fluid
	hits := 0
	for i := start; i < end; i++ {
		pi := &cur.PosDens[i]
		vi := &cur.Vel[i]
		rhoI := next.PosDens[i][3]
		pressI := fl.Pressure(rhoI)

		var force Vec3
		grid.Walk(Vec3{pi[0], pi[1], pi[2]}, func(j32 int32) {
			j := int(j32)
			if j == i {
				return
			}
			pj := &cur.PosDens[j]
			r2 := distanceSq(pi, pj)
			if r2 >= k.H2 {
				return
			}
			rhoJ := next.PosDens[j][3]
			r := sqrtf(r2)

			if r > 0 {
				pressJ := fl.Pressure(rhoJ)
				s := -k.Mass * (pressI + pressJ) / (2 * rhoJ) * k.SpikyGrad(r) / r
				force[0] += s * (pi[0] - pj[0])
				force[1] += s * (pi[1] - pj[1])
				force[2] += s * (pi[2] - pj[2])
			}

			vj := &cur.Vel[j]
			v := fl.Viscosity * k.Mass / rhoJ * k.ViscosityLaplacian(r)
			force[0] += v * (vj[0] - vi[0])
			force[1] += v * (vj[1] - vi[1])
			force[2] += v * (vj[2] - vi[2])
		})

		var pos, vel Vec3
		for a := 0; a < 3; a++ {
			acc := (force[a] + rhoI*fl.Gravity[a]) / rhoI
			vel[a] = vi[a] + dt*acc
			pos[a] = pi[a] + dt*vel[a]
		}
		hits += f.Reflect(&pos, &vel)

		out := &next.PosDens[i]
		out[0], out[1], out[2] = pos[0], pos[1], pos[2]
		next.Vel[i] = Pack(vel, 0)
	}
	return hits
}

// Step runs the whole force pass on the calling goroutine.
func (f *ForceIntegrator) Step(grid *HashGrid, cur, next Slot, dt float32) int {
	return f.StepRange(grid, cur, next, dt, 0, len(cur.PosDens))
}

// Reflect clamps pos into the domain and reverses the velocity component
// on every axis that crossed a wall. Tangential components are untouched.
func (f *ForceIntegrator) Reflect(pos, vel *Vec3) int {
	hits := 0
	lo := f.Domain.Min
	hi := f.Domain.Max()
	for a := 0; a < 3; a++ {
		switch {
		case pos[a] < lo[a]:
			pos[a] = lo[a]
			vel[a] = -f.Fluid.Restitution * vel[a]
			hits++
		case pos[a] > hi[a]:
			pos[a] = hi[a]
			vel[a] = -f.Fluid.Restitution * vel[a]
			hits++
		}
	}
	return hits
}
