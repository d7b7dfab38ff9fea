package gpu

import (
	"errors"
	"fmt"

	"github.com/gekko3d/sand/rt/core"
)

// ErrOutOfBounds is returned for element indices outside a view's count.
var ErrOutOfBounds = fmt.Errorf("%w: index out of bounds", core.ErrInvariantViolation)

// View is a typed, bounds-checked window over a buffer: count elements of
// layout.Stride bytes each. Writes land in a CPU shadow copy and reach the
// device on Flush, which uploads only the dirty element range.
type View[T any] struct {
	buf    Buffer
	layout core.Layout[T]
	count  int
	shadow []byte

	dirtyLo, dirtyHi int // element range [lo, hi), empty when lo >= hi
}

func NewView[T any](buf Buffer, layout core.Layout[T], count int) (*View[T], error) {
	if buf == nil {
		return nil, errors.New("gpu: nil buffer")
	}
	if count <= 0 || layout.Stride <= 0 {
		return nil, core.InvariantViolation("view %q needs positive count and stride, got %d x %d", buf.Label(), count, layout.Stride)
	}
	need := uint64(count) * uint64(layout.Stride)
	if buf.Size() < need {
		return nil, core.InvariantViolation("buffer %q holds %d bytes, view needs %d", buf.Label(), buf.Size(), need)
	}
	return &View[T]{
		buf:    buf,
		layout: layout,
		count:  count,
		shadow: make([]byte, need),
	}, nil
}

// AllocView creates a buffer sized for count elements and wraps it.
func AllocView[T any](dev Device, label string, usage BufferUsage, layout core.Layout[T], count int) (*View[T], error) {
	if count <= 0 {
		return nil, core.InvariantViolation("view %q needs positive count, got %d", label, count)
	}
	buf, err := dev.NewBuffer(BufferDesc{
		Label: label,
		Size:  uint64(count) * uint64(layout.Stride),
		Usage: usage,
	})
	if err != nil {
		return nil, core.SetupFailure("allocate %q: %v", label, err)
	}
	v, err := NewView(buf, layout, count)
	if err != nil {
		buf.Release()
		return nil, err
	}
	return v, nil
}

func (v *View[T]) Buffer() Buffer { return v.buf }
func (v *View[T]) Len() int       { return v.count }
func (v *View[T]) Stride() int    { return v.layout.Stride }

func (v *View[T]) check(i int) error {
	if i < 0 || i >= v.count {
		return fmt.Errorf("%w: %q index %d, count %d", ErrOutOfBounds, v.buf.Label(), i, v.count)
	}
	return nil
}

func (v *View[T]) Set(i int, val T) error {
	if err := v.check(i); err != nil {
		return err
	}
	off := i * v.layout.Stride
	v.layout.Put(v.shadow[off:off+v.layout.Stride], val)
	v.markDirty(i, i+1)
	return nil
}

// At reads the CPU-side copy of element i.
func (v *View[T]) At(i int) (T, error) {
	if err := v.check(i); err != nil {
		var zero T
		return zero, err
	}
	off := i * v.layout.Stride
	return v.layout.Get(v.shadow[off : off+v.layout.Stride]), nil
}

// Fill sets every element to fn(i).
func (v *View[T]) Fill(fn func(i int) T) {
	for i := 0; i < v.count; i++ {
		off := i * v.layout.Stride
		v.layout.Put(v.shadow[off:off+v.layout.Stride], fn(i))
	}
	v.markDirty(0, v.count)
}

func (v *View[T]) markDirty(lo, hi int) {
	if v.dirtyLo >= v.dirtyHi {
		v.dirtyLo, v.dirtyHi = lo, hi
		return
	}
	v.dirtyLo = min(v.dirtyLo, lo)
	v.dirtyHi = max(v.dirtyHi, hi)
}

func (v *View[T]) Dirty() bool {
	return v.dirtyLo < v.dirtyHi
}

// Flush uploads the dirty range to the device.
func (v *View[T]) Flush() error {
	if !v.Dirty() {
		return nil
	}
	lo := v.dirtyLo * v.layout.Stride
	hi := v.dirtyHi * v.layout.Stride
	if err := v.buf.Write(uint64(lo), v.shadow[lo:hi]); err != nil {
		return fmt.Errorf("flush %q: %w", v.buf.Label(), err)
	}
	v.dirtyLo, v.dirtyHi = 0, 0
	return nil
}

func (v *View[T]) Release() {
	v.buf.Release()
}
