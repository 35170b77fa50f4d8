package systems

import "math"

// Vec3 is a plain 3-component vector used at the API boundary.
type Vec3 [3]float32

// Vec4 is one packed particle record.
// For the position buffer xyz is the position and w the density;
// for the velocity buffer xyz is the velocity and w is padding.
type Vec4 [4]float32

// XYZ returns the first three components.
func (v Vec4) XYZ() Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

// Pack builds a record from a vector and a fourth component.
func Pack(v Vec3, w float32) Vec4 {
	return Vec4{v[0], v[1], v[2], w}
}

// Distance functions

// distanceSq returns the squared distance between the xyz parts of two records.
func distanceSq(a, b *Vec4) float32 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return dx*dx + dy*dy + dz*dz
}

// sqrtf avoids spelling out the float64 round trip at every call site.
func sqrtf(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// floorInt floors toward negative infinity, unlike a plain int conversion.
func floorInt(x float32) int {
	return int(math.Floor(float64(x)))
}

// clampInt clamps an int value between min and max.
func clampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
