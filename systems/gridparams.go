package systems

import (
	"fmt"
	"math"
)

// Domain is the axis-aligned simulation box [Min, Min+Size].
type Domain struct {
	Min  Vec3
	Size Vec3
}

// Max returns the upper corner of the box.
func (d Domain) Max() Vec3 {
	return Vec3{d.Min[0] + d.Size[0], d.Min[1] + d.Size[1], d.Min[2] + d.Size[2]}
}

// GridParams describes the uniform grid laid over the domain.
// The grid carries one border cell on each side so that a 3x3x3
// neighbourhood around any interior cell stays in range.
type GridParams struct {
	Min       Vec3
	Max       Vec3 // upper domain corner
	CellSize  float32
	Dims      [3]int
	CellCount int
	Coeffs    [3]int
}

// NewGridParams derives grid dimensions for smoothing length h.
func NewGridParams(d Domain, h float32) (GridParams, error) {
	if !(h > 0) {
		return GridParams{}, fmt.Errorf("smoothing length %g: %w", h, ErrSmoothingLength)
	}
	var dims [3]int
	for a := 0; a < 3; a++ {
		if !(d.Size[a] > 0) {
			return GridParams{}, fmt.Errorf("domain size %v must be positive on every axis", d.Size)
		}
		dims[a] = int(math.Ceil(float64(d.Size[a]/h))) + 2
	}
	return GridParams{
		Min:       d.Min,
		Max:       d.Max(),
		CellSize:  h,
		Dims:      dims,
		CellCount: dims[0] * dims[1] * dims[2],
		Coeffs:    [3]int{1, dims[0], dims[0] * dims[1]},
	}, nil
}

// CellCapacity returns the cell count for the smallest allowed smoothing
// length. Larger smoothing lengths only ever need fewer cells.
func CellCapacity(d Domain, minH float32) (int, error) {
	g, err := NewGridParams(d, minH)
	if err != nil {
		return 0, err
	}
	return g.CellCount, nil
}

// CellIndex3D maps a position to its (border-offset) cell coordinates.
// No clamping is done; see InBounds.
func (g GridParams) CellIndex3D(p Vec3) [3]int {
	return [3]int{
		floorInt((p[0]-g.Min[0])/g.CellSize) + 1,
		floorInt((p[1]-g.Min[1])/g.CellSize) + 1,
		floorInt((p[2]-g.Min[2])/g.CellSize) + 1,
	}
}

// InBounds reports whether idx lies in [0, Dims) on every axis.
func (g GridParams) InBounds(idx [3]int) bool {
	return idx[0] >= 0 && idx[0] < g.Dims[0] &&
		idx[1] >= 0 && idx[1] < g.Dims[1] &&
		idx[2] >= 0 && idx[2] < g.Dims[2]
}

// InBand reports whether p lies in [Min-CellSize, Max+CellSize] on every
// axis. NaN coordinates are outside.
func (g GridParams) InBand(p Vec3) bool {
	for a := 0; a < 3; a++ {
		if !(p[a] >= g.Min[a]-g.CellSize && p[a] <= g.Max[a]+g.CellSize) {
			return false
		}
	}
	return true
}

// Linearize returns dot(idx, Coeffs).
func (g GridParams) Linearize(idx [3]int) int {
	return idx[0]*g.Coeffs[0] + idx[1]*g.Coeffs[1] + idx[2]*g.Coeffs[2]
}

// CellIndex1D maps a position straight to its flat cell id.
func (g GridParams) CellIndex1D(p Vec3) int {
	return g.Linearize(g.CellIndex3D(p))
}

// Validate checks the grid against the pre-allocated cell capacity.
func (g GridParams) Validate(cellCapacity int) error {
	if g.CellCount > cellCapacity {
		return fmt.Errorf("%d cells for cell size %g, capacity %d: %w",
			g.CellCount, g.CellSize, cellCapacity, ErrCellCapacity)
	}
	return nil
}

// neighbourRange returns the inclusive cell range around c on one axis,
// clipped to the grid.
func (g GridParams) neighbourRange(c, axis int) (lo, hi int) {
	return clampInt(c-1, 0, g.Dims[axis]-1), clampInt(c+1, 0, g.Dims[axis]-1)
}
