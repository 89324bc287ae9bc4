package memory

import (
	"testing"

	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

const testArenaSize = 1 << 20

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	a, err := New(testArenaSize)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func blockList(a *Arena) []Block {
	var out []Block
	for b := range a.Blocks() {
		out = append(out, b)
	}
	return out
}

func TestInitLayout(t *testing.T) {
	a := newTestArena(t)
	blocks := blockList(a)
	require.Len(t, blocks, 2)
	assert.Equal(t, KindFree, blocks[0].Kind)
	assert.Equal(t, HeapStart, blocks[0].Addr)
	assert.Equal(t, KindSentinel, blocks[1].Kind)
	assert.Equal(t, uint32(testArenaSize-HeaderSize), blocks[1].Addr)
	assert.Equal(t, uint32(0), blocks[1].Size)
	require.NoError(t, a.CoherenceCheck())
}

func TestNewRejectsBadSize(t *testing.T) {
	_, err := New(12345)
	assert.ErrorIs(t, err, moserrors.ErrBadArenaSize)
	_, err = New(0)
	assert.ErrorIs(t, err, moserrors.ErrBadArenaSize)
}

func TestAllocSplitsAndAligns(t *testing.T) {
	a := newTestArena(t)
	p1, err := a.Alloc(100)
	require.NoError(t, err)
	p2, err := a.Alloc(5)
	require.NoError(t, err)

	assert.Equal(t, HeapStart+HeaderSize, p1)
	assert.Equal(t, p1+100+HeaderSize, p2)
	size, err := a.Size(p2)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), size)
	require.NoError(t, a.CoherenceCheck())
}

func TestAllocZeroesPayload(t *testing.T) {
	a := newTestArena(t)
	p, err := a.Alloc(64)
	require.NoError(t, err)
	for i := uint32(0); i < 64; i += 4 {
		a.Write32(p+i, 0xDEADBEEF)
	}
	require.NoError(t, a.Free(p))
	q, err := a.Alloc(64)
	require.NoError(t, err)
	assert.Equal(t, p, q)
	assert.Equal(t, make([]byte, 64), a.Bytes(q, 64))
}

func TestFreeCoalesces(t *testing.T) {
	a := newTestArena(t)
	p1, _ := a.Alloc(32)
	p2, _ := a.Alloc(32)
	p3, _ := a.Alloc(32)
	_, _ = a.Alloc(32)

	require.NoError(t, a.Free(p1))
	require.NoError(t, a.Free(p3))
	require.NoError(t, a.CoherenceCheck())
	require.NoError(t, a.Free(p2))
	require.NoError(t, a.CoherenceCheck())

	blocks := blockList(a)
	require.Len(t, blocks, 4)
	assert.Equal(t, KindFree, blocks[0].Kind)
	assert.Equal(t, uint32(3*32+2*HeaderSize), blocks[0].Size)

	// exact fit reuses the merged block
	q, err := a.Alloc(3*32 + 2*HeaderSize)
	require.NoError(t, err)
	assert.Equal(t, p1, q)
}

func TestDoubleFreeDetected(t *testing.T) {
	a := newTestArena(t)
	p, _ := a.Alloc(16)
	keep, _ := a.Alloc(16)
	a.Write32(keep, 0x12345678)

	require.NoError(t, a.Free(p))
	before := append([]byte(nil), a.Raw()[HeapStart:HeapStart+256]...)
	err := a.Free(p)
	require.ErrorIs(t, err, moserrors.ErrDoubleFree)
	assert.Equal(t, before, a.Raw()[HeapStart:HeapStart+256])
	assert.Equal(t, uint32(0x12345678), a.Read32(keep))
	require.NoError(t, a.CoherenceCheck())
}

func TestFreeRejectsGarbage(t *testing.T) {
	a := newTestArena(t)
	p, _ := a.Alloc(64)
	assert.ErrorIs(t, a.Free(p+16), moserrors.ErrCorruptBlock)
	assert.ErrorIs(t, a.Free(0x100), moserrors.ErrNotAllocated)
	assert.ErrorIs(t, a.Free(a.Sentinel()+HeaderSize), moserrors.ErrNotAllocated)
	require.NoError(t, a.CoherenceCheck())
}

func TestOutOfMemory(t *testing.T) {
	a := newTestArena(t)
	_, err := a.Alloc(testArenaSize)
	require.ErrorIs(t, err, moserrors.ErrOutOfMemory)
	require.NoError(t, a.CoherenceCheck())

	largest := a.LargestFree()
	p, err := a.Alloc(largest)
	require.NoError(t, err)
	assert.NotZero(t, p)
	assert.Equal(t, uint32(0), a.FreeBytes())
}

func TestCoherenceCheckFindsCorruption(t *testing.T) {
	a := newTestArena(t)
	p, _ := a.Alloc(32)
	_, _ = a.Alloc(32)
	a.WriteUnsafe32(p-HeaderSize+hdrSize, 40)
	assert.ErrorIs(t, a.CoherenceCheck(), moserrors.ErrIncoherentHeap)
}

func TestStrictModeReportsBrokenHeap(t *testing.T) {
	a := newTestArena(t)
	a.SetStrict(true)
	p, err := a.Alloc(32)
	require.NoError(t, err)
	q, err := a.Alloc(32)
	require.NoError(t, err)
	a.WriteUnsafe32(q-HeaderSize+hdrPrev, 0x4444)
	assert.ErrorIs(t, a.Free(p), moserrors.ErrIncoherentHeap)
}

// Random alloc/free sequences keep the block list ordered, coalesced and
// spanning the whole managed region.
func TestAllocFreeRoundTrip(t *testing.T) {
	a := newTestArena(t)
	r := rand.New(rand.NewSource(0x6d6f73))
	var live []GuestPtr

	for i := 0; i < 2000; i++ {
		if len(live) > 0 && r.Intn(3) == 0 {
			k := r.Intn(len(live))
			require.NoError(t, a.Free(live[k]))
			live = append(live[:k], live[k+1:]...)
		} else {
			size := uint32(1 + r.Intn(testArenaSize/4))
			if r.Intn(4) != 0 {
				size = uint32(1 + r.Intn(512))
			}
			p, err := a.Alloc(size)
			if err != nil {
				require.ErrorIs(t, err, moserrors.ErrOutOfMemory)
			} else {
				live = append(live, p)
			}
		}
		require.NoError(t, a.CoherenceCheck(), "step %d", i)
	}

	var total uint32
	prev := GuestPtr(0)
	for b := range a.Blocks() {
		assert.Greater(t, b.Addr, prev)
		prev = b.Addr
		if b.Kind != KindSentinel {
			total += HeaderSize + b.Size
		}
	}
	assert.Equal(t, a.Sentinel()-HeapStart, total)

	for _, p := range live {
		require.NoError(t, a.Free(p))
	}
	require.Len(t, blockList(a), 2)
}
