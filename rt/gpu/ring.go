package gpu

import (
	"github.com/gekko3d/sand/rt/core"
)

// DefaultInFlightFrames is the ring depth used when none is configured.
const DefaultInFlightFrames = 3

// Ring hands out the per-frame slot index. It is advanced exactly once per
// frame by the orchestrator. There is no fence: the depth must outlast the
// GPU's latency, otherwise CPU writes into a slot race the GPU reading it.
type Ring struct {
	depth   int
	current int
}

func NewRing(depth int) (*Ring, error) {
	if depth <= 0 {
		return nil, core.InvariantViolation("ring depth must be positive, got %d", depth)
	}
	return &Ring{depth: depth}, nil
}

// Advance moves to the next slot and returns it.
func (r *Ring) Advance() int {
	r.current = (r.current + 1) % r.depth
	return r.current
}

// Current returns the slot returned by the last Advance (0 before the first).
func (r *Ring) Current() int {
	return r.current
}

func (r *Ring) Depth() int {
	return r.depth
}

// Slots holds one resource per ring slot.
type Slots[T any] struct {
	items []T
}

// NewSlots allocates depth resources. On error the resources allocated so far
// are passed to release, if non-nil.
func NewSlots[T any](depth int, alloc func(slot int) (T, error), release func(T)) (Slots[T], error) {
	if depth <= 0 {
		return Slots[T]{}, core.InvariantViolation("slot depth must be positive, got %d", depth)
	}
	items := make([]T, 0, depth)
	for i := 0; i < depth; i++ {
		item, err := alloc(i)
		if err != nil {
			if release != nil {
				for _, it := range items {
					release(it)
				}
			}
			return Slots[T]{}, err
		}
		items = append(items, item)
	}
	return Slots[T]{items: items}, nil
}

func (s Slots[T]) At(slot int) T {
	return s.items[slot]
}

func (s Slots[T]) Len() int {
	return len(s.items)
}

func (s Slots[T]) Each(fn func(slot int, item T)) {
	for i, it := range s.items {
		fn(i, it)
	}
}
