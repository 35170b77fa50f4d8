package systems

import "errors"

// Configuration errors. These are reported at initialization or when a
// parameter changes, never from inside a pass.
var (
	ErrCapacity        = errors.New("particle count exceeds allocated capacity")
	ErrSmoothingLength = errors.New("smoothing length below configured minimum")
	ErrCellCapacity    = errors.New("grid cell count exceeds allocated cell capacity")
)

// ErrInvariant reports a particle outside the indexed grid at build time.
// It means the boundary policy failed and the run must stop.
var ErrInvariant = errors.New("particle outside grid bounds")

// ErrBufferUnavailable reports that a pass could not obtain its output buffer.
var ErrBufferUnavailable = errors.New("particle buffer unavailable")
