// Package param provides lock-free snapshot cells for sharing parameter
// state between a control thread and the audio callback.
//
// A Cell holds a complete parameter aggregate behind an atomic pointer:
// writers publish a full copy, readers load a full copy, and neither side
// takes a lock. Readers never observe a partially updated snapshot. Float
// and Bool cover single scalars such as meters and bypass flags.
package param

import (
	"math"
	"sync/atomic"
)

// Cell is an atomic snapshot holder for a parameter aggregate.
//
// Store publishes a complete copy of the value; Load returns a complete
// copy. Ref exposes the current snapshot pointer so block-rate consumers can
// detect publication cheaply (the pointer changes on every Store) and skip
// recomputing derived state while the snapshot stays the same. The
// pointed-to value must be treated as read-only.
type Cell[T any] struct {
	ptr atomic.Pointer[T]
}

// NewCell returns a cell seeded with initial.
func NewCell[T any](initial T) *Cell[T] {
	c := &Cell[T]{}
	c.Store(initial)
	return c
}

// Load returns a copy of the current snapshot.
func (c *Cell[T]) Load() T {
	p := c.ptr.Load()
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Store publishes value as the new snapshot.
func (c *Cell[T]) Store(value T) {
	c.ptr.Store(&value)
}

// Ref returns the current snapshot pointer, or nil if nothing has been
// stored. Callers must not modify the pointed-to value.
func (c *Cell[T]) Ref() *T {
	return c.ptr.Load()
}

// Float is an atomic float64 for meters and other advisory scalars.
type Float struct {
	bits atomic.Uint64
}

// Load returns the current value.
func (f *Float) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Store sets the current value.
func (f *Float) Store(value float64) {
	f.bits.Store(math.Float64bits(value))
}

// Bool is an atomic boolean for bypass and enable flags.
type Bool struct {
	flag atomic.Bool
}

// Load returns the current value.
func (b *Bool) Load() bool {
	return b.flag.Load()
}

// Store sets the current value.
func (b *Bool) Store(value bool) {
	b.flag.Store(value)
}
