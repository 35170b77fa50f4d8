package systems

import "fmt"

// Slot is one physical copy of the particle state.
type Slot struct {
	PosDens []Vec4
	Vel     []Vec4
}

// DoubleBuffer owns two slots and the index of the current one.
//
// Passes read the current slot and write the other. Flip is called once
// per step after every pass of the step has finished, so a pass never
// reads and writes the same array.
type DoubleBuffer struct {
	slots    [2]Slot
	current  int
	count    int
	released bool
}

// NewDoubleBuffer allocates both slots at capacity.
func NewDoubleBuffer(capacity int) *DoubleBuffer {
	b := &DoubleBuffer{}
	for s := range b.slots {
		b.slots[s] = Slot{
			PosDens: make([]Vec4, capacity),
			Vel:     make([]Vec4, capacity),
		}
	}
	return b
}

// Capacity returns the fixed number of records per slot.
func (b *DoubleBuffer) Capacity() int { return len(b.slots[0].PosDens) }

// Count returns the number of live particles.
func (b *DoubleBuffer) Count() int { return b.count }

// SetCount changes the number of live particles.
func (b *DoubleBuffer) SetCount(n int) error {
	if n < 0 || n > b.Capacity() {
		return fmt.Errorf("%d particles, capacity %d: %w", n, b.Capacity(), ErrCapacity)
	}
	b.count = n
	return nil
}


// Current returns the slot passes read from, trimmed to the live count.
func (b *DoubleBuffer) Current() (Slot, error) {
	return b.slot(b.current)
}

// Other returns the slot passes write to, trimmed to the live count.
func (b *DoubleBuffer) Other() (Slot, error) {
	return b.slot(1 - b.current)
}

func (b *DoubleBuffer) slot(i int) (Slot, error) {
	if b.released {
		return Slot{}, fmt.Errorf("slot %d: %w", i, ErrBufferUnavailable)
	}
	s := b.slots[i]
	if len(s.PosDens) < b.count || len(s.Vel) < b.count {
		return Slot{}, fmt.Errorf("slot %d holds %d records, need %d: %w",
			i, len(s.PosDens), b.count, ErrBufferUnavailable)
	}
	return Slot{PosDens: s.PosDens[:b.count], Vel: s.Vel[:b.count]}, nil
}

// Flip makes the other slot current.
func (b *DoubleBuffer) Flip() {
	b.current = 1 - b.current
}

// Seed writes initial state into both slots so that whichever slot is
// current holds valid data. Only for use before the first step.
func (b *DoubleBuffer) Seed(i int, pos, vel Vec3) {
	for s := range b.slots {
		b.slots[s].PosDens[i] = Pack(pos, 0)
		b.slots[s].Vel[i] = Pack(vel, 0)
	}
}

// CurrentPositions copies the current positions.
func (b *DoubleBuffer) CurrentPositions() []Vec3 {
	if b.released {
		return nil
	}
	s := b.slots[b.current]
	out := make([]Vec3, b.count)
	for i := range out {
		out[i] = s.PosDens[i].XYZ()
	}
	return out
}

// CurrentVelocities copies the current velocities.
func (b *DoubleBuffer) CurrentVelocities() []Vec3 {
	if b.released {
		return nil
	}
	s := b.slots[b.current]
	out := make([]Vec3, b.count)
	for i := range out {
		out[i] = s.Vel[i].XYZ()
	}
	return out
}

// CurrentDensities copies the current densities.
func (b *DoubleBuffer) CurrentDensities() []float32 {
	if b.released {
		return nil
	}
	s := b.slots[b.current]
	out := make([]float32, b.count)
	for i := range out {
		out[i] = s.PosDens[i][3]
	}
	return out
}

// Release drops both slots. Every later Current/Other call fails with
// ErrBufferUnavailable.
func (b *DoubleBuffer) Release() {
	b.released = true
	b.slots = [2]Slot{}
}
