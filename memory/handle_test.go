package memory

import (
	"testing"

	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleResizeKeepsPrefix(t *testing.T) {
	cases := []struct{ from, to uint32 }{
		{16, 64},
		{64, 16},
		{40, 40},
	}
	for _, tc := range cases {
		a := newTestArena(t)
		h, err := a.NewHandle(tc.from)
		require.NoError(t, err)
		p, err := a.Deref(h)
		require.NoError(t, err)
		for i := uint32(0); i < tc.from; i++ {
			a.Write8(p+i, byte(i+1))
		}

		require.NoError(t, a.SetHandleSize(h, tc.to))
		q, err := a.Deref(h)
		require.NoError(t, err)
		assert.NotEqual(t, p, q)
		size, err := a.Size(q)
		require.NoError(t, err)
		assert.Equal(t, tc.to, size)
		n := min(tc.from, tc.to)
		for i := uint32(0); i < n; i++ {
			assert.Equal(t, byte(i+1), a.Read8(q+i))
		}
		require.NoError(t, a.CoherenceCheck())
	}
}

func TestNewHandleReleasesPayloadOnFailure(t *testing.T) {
	a := newTestArena(t)
	free, largest := a.FreeBytes(), a.LargestFree()

	// the payload takes the whole heap, leaving no room for the master pointer
	h, err := a.NewHandle(largest)
	require.ErrorIs(t, err, moserrors.ErrOutOfMemory)
	assert.Zero(t, h)
	assert.Equal(t, free, a.FreeBytes())
	assert.Equal(t, largest, a.LargestFree())
	require.NoError(t, a.CoherenceCheck())
}

func TestEmptyHandle(t *testing.T) {
	a := newTestArena(t)
	h, err := a.NewHandle(0)
	require.NoError(t, err)
	p, err := a.Deref(h)
	require.NoError(t, err)
	assert.Zero(t, p)

	require.NoError(t, a.SetHandleSize(h, 12))
	p, err = a.Deref(h)
	require.NoError(t, err)
	assert.NotZero(t, p)
	require.NoError(t, a.DisposeHandle(h))
	require.Len(t, blockList(a), 2)
}

func TestDisposeHandleFreesBoth(t *testing.T) {
	a := newTestArena(t)
	free := a.FreeBytes()
	h, err := a.NewHandle(100)
	require.NoError(t, err)
	require.NoError(t, a.DisposeHandle(h))
	assert.Equal(t, free, a.FreeBytes())
	// the header was merged away, so this is reported as corruption
	assert.ErrorIs(t, a.DisposeHandle(h), moserrors.ErrCorruptBlock)
	assert.NoError(t, a.DisposeHandle(0))
}

func TestRecoverHandle(t *testing.T) {
	a := newTestArena(t)
	h1, _ := a.NewHandle(8)
	h2, _ := a.NewHandle(8)
	p2, _ := a.Deref(h2)
	p1, _ := a.Deref(h1)

	assert.Equal(t, h2, a.RecoverHandle(p2))
	assert.Equal(t, h1, a.RecoverHandle(p1))
	plain, _ := a.Alloc(8)
	assert.Zero(t, a.RecoverHandle(plain))
}

func TestDerefRejectsPlainPointer(t *testing.T) {
	a := newTestArena(t)
	p, _ := a.Alloc(4)
	_, err := a.Deref(p)
	assert.ErrorIs(t, err, moserrors.ErrNotAllocated)
	_, err = a.Deref(0)
	assert.ErrorIs(t, err, moserrors.ErrNilHandle)
}

func TestHandleState(t *testing.T) {
	a := newTestArena(t)
	h, _ := a.NewHandle(8)
	require.NoError(t, a.SetHandleState(h, StateLocked|StateResource))
	state, err := a.HandleState(h)
	require.NoError(t, err)
	assert.Equal(t, StateLocked|StateResource, state)
	require.NoError(t, a.CoherenceCheck())
}
