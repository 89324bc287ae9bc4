package memory

import (
	"testing"

	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSystemPage struct {
	cells  map[GuestPtr]uint32
	writes []GuestPtr
}

func (f *fakeSystemPage) ReadCell(addr GuestPtr, width int) uint32 {
	return f.cells[addr]
}

func (f *fakeSystemPage) WriteCell(addr GuestPtr, width int, value uint32) {
	f.cells[addr] = value
	f.writes = append(f.writes, addr)
}

func TestBigEndianAccess(t *testing.T) {
	a := newTestArena(t)
	p, err := a.Alloc(16)
	require.NoError(t, err)

	a.Write32(p, 0x4E754E71)
	assert.Equal(t, []byte{0x4E, 0x75, 0x4E, 0x71}, a.Bytes(p, 4))
	assert.Equal(t, uint16(0x4E71), a.Read16(p+2))
	a.Write64(p+8, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), a.Read64(p+8))
	assert.Equal(t, uint8(0x05), a.Read8(p+12))
}

func TestBoundsCheck(t *testing.T) {
	a := newTestArena(t)
	a.SetCheckBounds(true)
	p, _ := a.Alloc(8)

	a.Write32(p+4, 7)
	assert.NoError(t, a.LastFault())
	assert.Equal(t, uint32(7), a.Read32(p+4))

	a.Read32(p + 6)
	assert.ErrorIs(t, a.LastFault(), moserrors.ErrOutOfRange)
}

func TestOutsideArenaIsReported(t *testing.T) {
	a := newTestArena(t)
	assert.Zero(t, a.Read32(a.Len()-2))
	assert.ErrorIs(t, a.LastFault(), moserrors.ErrOutOfRange)
}

func TestMemcpyChecksBothRanges(t *testing.T) {
	a := newTestArena(t)
	a.SetCheckBounds(true)
	src, _ := a.Alloc(8)
	dst, _ := a.Alloc(4)
	a.WriteBytes(src, []byte("abcdefgh"))

	a.Memcpy(dst, src, 4)
	assert.NoError(t, a.LastFault())
	assert.Equal(t, []byte("abcd"), a.Bytes(dst, 4))

	a.Memcpy(dst, src, 8)
	assert.ErrorIs(t, a.LastFault(), moserrors.ErrOutOfRange)
}

func TestMemcpyOverlap(t *testing.T) {
	a := newTestArena(t)
	p, _ := a.Alloc(8)
	a.WriteBytes(p, []byte("abcdef"))
	a.Memcpy(p+2, p, 4)
	assert.Equal(t, []byte("ababcd"), a.Bytes(p, 6))
}

func TestSystemPageRouting(t *testing.T) {
	a := newTestArena(t)
	sys := &fakeSystemPage{cells: map[GuestPtr]uint32{0x20C: 1234}}
	a.AttachSystemPage(sys)
	a.SetCheckBounds(true)

	assert.Equal(t, uint32(1234), a.Read32(0x20C))
	a.Write16(0xA60, 0xFF40)
	assert.Equal(t, []GuestPtr{0xA60}, sys.writes)
	assert.NoError(t, a.LastFault())
	assert.Zero(t, a.ReadUnsafe32(0x20C))
}

func TestStrings(t *testing.T) {
	a := newTestArena(t)
	p, err := a.NewPtrString("Link")
	require.NoError(t, err)
	assert.Equal(t, []byte("Link"), a.CString(p))
	size, _ := a.Size(p)
	assert.Equal(t, uint32(8), size)

	q, _ := a.Alloc(8)
	a.WriteBytes(q, []byte{4, 'C', 'O', 'D', 'E'})
	assert.Equal(t, []byte("CODE"), a.PString(q))
	assert.Nil(t, a.PString(0))
}

func TestPatchNotifiesObservers(t *testing.T) {
	a := newTestArena(t)
	p, _ := a.Alloc(8)
	var seen []GuestPtr
	a.OnPatch(func(addr GuestPtr, size uint32) {
		seen = append(seen, addr)
	})
	a.Patch16(p, 0xAFFE)
	a.Patch32(p+4, 0x4EF90000)
	a.Write16(p+2, 0x4E71)
	assert.Equal(t, []GuestPtr{p, p + 4}, seen)
	assert.Equal(t, uint16(0xAFFE), a.Read16(p))
}
