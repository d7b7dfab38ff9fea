package gpu

import (
	"errors"
	"testing"

	"github.com/gekko3d/sand/rt/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingAdvanceWraps(t *testing.T) {
	for depth := 1; depth <= 4; depth++ {
		r, err := NewRing(depth)
		require.NoError(t, err)
		assert.Equal(t, 0, r.Current())

		got := make([]int, 0, depth)
		for i := 0; i < depth; i++ {
			got = append(got, r.Advance())
		}
		want := make([]int, 0, depth)
		for i := 1; i < depth; i++ {
			want = append(want, i)
		}
		want = append(want, 0)
		assert.Equal(t, want, got, "depth %d", depth)
	}
}

func TestRingCurrentIsIdempotent(t *testing.T) {
	r, err := NewRing(3)
	require.NoError(t, err)
	r.Advance()
	assert.Equal(t, 1, r.Current())
	assert.Equal(t, 1, r.Current())
	assert.Equal(t, 3, r.Depth())
}

func TestRingRejectsNonPositiveDepth(t *testing.T) {
	for _, depth := range []int{0, -1} {
		_, err := NewRing(depth)
		assert.ErrorIs(t, err, core.ErrInvariantViolation)
	}
}

type fakeResource struct {
	slot     int
	released bool
}

func TestSlotsAllocateOnePerSlot(t *testing.T) {
	s, err := NewSlots(3, func(slot int) (*fakeResource, error) {
		return &fakeResource{slot: slot}, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, s.At(i).slot)
	}

	seen := 0
	s.Each(func(slot int, r *fakeResource) {
		assert.Equal(t, slot, r.slot)
		seen++
	})
	assert.Equal(t, 3, seen)
}

func TestSlotsReleaseOnFailure(t *testing.T) {
	var made []*fakeResource
	boom := errors.New("boom")
	_, err := NewSlots(3, func(slot int) (*fakeResource, error) {
		if slot == 2 {
			return nil, boom
		}
		r := &fakeResource{slot: slot}
		made = append(made, r)
		return r, nil
	}, func(r *fakeResource) { r.released = true })

	assert.ErrorIs(t, err, boom)
	require.Len(t, made, 2)
	for _, r := range made {
		assert.True(t, r.released)
	}

	_, err = NewSlots(0, func(int) (int, error) { return 0, nil }, nil)
	assert.ErrorIs(t, err, core.ErrInvariantViolation)
}
