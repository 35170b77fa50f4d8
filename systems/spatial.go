// Package systems implements the SPH passes: grid parameters, the
// lock-free spatial hash grid, density evaluation, force integration and
// the double-buffered particle state they operate on.
package systems

import (
	"fmt"
	"sync/atomic"
)

// Nil marks an empty cell head or the end of a cell list.
const Nil int32 = -1

// HashGrid is a uniform grid stored as one intrusive singly linked list
// per cell. heads[c] is the first particle bucketed in cell c and next[i]
// chains particle i to the next one in the same cell.
//
// Build may run from many goroutines at once: each particle swaps itself
// into its cell head atomically and records the previous head as its own
// next link. That swap is the only synchronised write in the simulation.
type HashGrid struct {
	heads  []atomic.Int32
	next   []int32
	params GridParams
	count  int

	checkBounds bool
}

// NewHashGrid allocates a grid able to hold cellCapacity cells and
// particleCapacity list nodes. Capacities never change afterwards.
func NewHashGrid(cellCapacity, particleCapacity int) *HashGrid {
	g := &HashGrid{
		heads:       make([]atomic.Int32, cellCapacity),
		next:        make([]int32, particleCapacity),
		checkBounds: true,
	}
	for i := range g.heads {
		g.heads[i].Store(Nil)
	}
	for i := range g.next {
		g.next[i] = Nil
	}
	return g
}

// CellCapacity returns the number of allocated cell heads.
func (g *HashGrid) CellCapacity() int { return len(g.heads) }

// ParticleCapacity returns the number of allocated list nodes.
func (g *HashGrid) ParticleCapacity() int { return len(g.next) }

// Params returns the grid parameters in use.
func (g *HashGrid) Params() GridParams { return g.params }

// SetParams installs new grid parameters after checking them against the
// allocated cell capacity. Must not be called while a pass is running.
func (g *HashGrid) SetParams(p GridParams) error {
	if err := p.Validate(len(g.heads)); err != nil {
		return err
	}
	g.params = p
	return nil
}

// SetCount sets how many particles the next Clear/Build covers.
func (g *HashGrid) SetCount(n int) error {
	if n < 0 || n > len(g.next) {
		return fmt.Errorf("%d particles, %d list nodes: %w", n, len(g.next), ErrCapacity)
	}
	g.count = n
	return nil
}

// Count returns the number of particles covered by the grid.
func (g *HashGrid) Count() int { return g.count }

// SetCheckBounds toggles the domain-band guard in BuildRange. Positions
// that map outside the allocated cells are rejected either way.
func (g *HashGrid) SetCheckBounds(on bool) { g.checkBounds = on }

// ClearSize is the index space of a clear pass: max(cells, particles).
func (g *HashGrid) ClearSize() int {
	return max(g.params.CellCount, g.count)
}

// ClearRange resets heads and next links for indices in [start, end).
// Index i clears cell i (if it is a cell in use) and node i (if it is a
// live particle), so one pass over ClearSize covers both arrays.
func (g *HashGrid) ClearRange(start, end int) {
	cells := g.params.CellCount
	for i := start; i < end; i++ {
		if i < cells {
			g.heads[i].Store(Nil)
		}
		if i < g.count {
			g.next[i] = Nil
		}
	}
}

// Clear resets the whole grid on the calling goroutine.
func (g *HashGrid) Clear() {
	g.ClearRange(0, g.ClearSize())
}

// BuildRange buckets particles [start, end) by their position. Safe to
// call concurrently for disjoint ranges after Clear has completed.
func (g *HashGrid) BuildRange(posDens []Vec4, start, end int) error {
	p := &g.params
	for i := start; i < end; i++ {
		rec := &posDens[i]
		pos := Vec3{rec[0], rec[1], rec[2]}
		if g.checkBounds && !p.InBand(pos) {
			return fmt.Errorf("particle %d at %v is more than one cell outside [%v, %v]: %w",
				i, pos, p.Min, p.Max, ErrInvariant)
		}
		idx := p.CellIndex3D(pos)
		if !p.InBounds(idx) {
			return fmt.Errorf("particle %d at %v maps to cell %v of %v: %w",
				i, pos, idx, p.Dims, ErrInvariant)
		}
		cell := p.Linearize(idx)
		prev := g.heads[cell].Swap(int32(i))
		g.next[i] = prev
	}
	return nil
}

// Build buckets every particle on the calling goroutine.
func (g *HashGrid) Build(posDens []Vec4) error {
	if len(posDens) < g.count {
		return fmt.Errorf("%d position records for %d particles: %w", len(posDens), g.count, ErrBufferUnavailable)
	}
	return g.BuildRange(posDens, 0, g.count)
}

// Head returns the first particle in cell, or Nil.
func (g *HashGrid) Head(cell int) int32 {
	return g.heads[cell].Load()
}

// Next returns the particle after i in its cell list, or Nil.
func (g *HashGrid) Next(i int32) int32 {
	return g.next[i]
}

// ForEachInCell calls fn for every particle bucketed in cell.
func (g *HashGrid) ForEachInCell(cell int, fn func(j int32)) {
	for j := g.heads[cell].Load(); j != Nil; j = g.next[j] {
		fn(j)
	}
}

// Walk calls fn for every particle in the 3x3x3 block of cells around
// the cell containing p. Read-only; safe from many goroutines once Build
// has completed.
func (g *HashGrid) Walk(p Vec3, fn func(j int32)) {
	params := &g.params
	c := params.CellIndex3D(p)
	x0, x1 := params.neighbourRange(c[0], 0)
	y0, y1 := params.neighbourRange(c[1], 1)
	z0, z1 := params.neighbourRange(c[2], 2)
	for z := z0; z <= z1; z++ {
		for y := y0; y <= y1; y++ {
			row := y*params.Coeffs[1] + z*params.Coeffs[2]
			for x := x0; x <= x1; x++ {
				for j := g.heads[row+x].Load(); j != Nil; j = g.next[j] {
					fn(j)
				}
			}
		}
	}
}

// CellMembers returns the particles bucketed in cell, in list order.
func (g *HashGrid) CellMembers(cell int) []int32 {
	var out []int32
	g.ForEachInCell(cell, func(j int32) {
		out = append(out, j)
	})
	return out
}

// Occupancy reports how many cells hold at least one particle and the
// longest cell list.
func (g *HashGrid) Occupancy() (occupied, longest int) {
	for c := 0; c < g.params.CellCount; c++ {
		n := 0
		for j := g.heads[c].Load(); j != Nil; j = g.next[j] {
			n++
		}
		if n > 0 {
			occupied++
		}
		if n > longest {
			longest = n
		}
	}
	return occupied, longest
}
