// Package memory implements the guest address space: a single mmap'd byte
// arena addressed by 32-bit guest pointers, big-endian accessors with an
// optional bounds check, and the in-band block allocator that emulates the
// classic pointer and handle heap.
package memory

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/moserrors"
	"golang.org/x/sys/unix"
)

// GuestPtr is an offset into the arena. It is never a host pointer.
type GuestPtr = uint32

const (
	PageSize = 0x1000

	// SystemPageEnd bounds the low-memory globals. Accesses below it are
	// routed to the attached SystemPage.
	SystemPageEnd GuestPtr = 0x1E00

	// HeapStart is the first block header of the managed region.
	HeapStart GuestPtr = 0x2000

	DefaultSize = 16 << 20
)

// SystemPage serves guest accesses to the low-memory cells.
type SystemPage interface {
	ReadCell(addr GuestPtr, width int) uint32
	WriteCell(addr GuestPtr, width int, value uint32)
}

// PatchObserver is told about writes that change guest code.
type PatchObserver func(addr GuestPtr, size uint32)

// Arena is the guest memory of one emulator session.
type Arena struct {
	mem      []byte
	size     uint32
	sentinel GuestPtr

	checkBounds bool
	strict      bool

	system    SystemPage
	observers []PatchObserver

	lastFault error
}

// New maps an anonymous arena of size bytes and initializes the heap.
func New(size uint32) (*Arena, error) {
	if size == 0 || size%PageSize != 0 || size <= uint32(HeapStart)+4*HeaderSize {
		return nil, fmt.Errorf("arena size 0x%X: %w", size, moserrors.ErrBadArenaSize)
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap guest arena: %w", err)
	}
	a := &Arena{mem: mem, size: size}
	a.Init()
	log.Debug(log.MemoryModule, "guest arena mapped", "size", fmt.Sprintf("0x%08X", size), "heap", fmt.Sprintf("0x%08X", HeapStart))
	return a, nil
}

// Close unmaps the arena. The arena must not be used afterwards.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// Len is the arena size in bytes.
func (a *Arena) Len() uint32 { return a.size }

// Raw exposes the backing bytes so a CPU core can map the same memory.
func (a *Arena) Raw() []byte { return a.mem }

func (a *Arena) SetCheckBounds(on bool) { a.checkBounds = on }
func (a *Arena) SetStrict(on bool)      { a.strict = on }
func (a *Arena) AttachSystemPage(p SystemPage) {
	a.system = p
}

// OnPatch registers an observer for Patch16 and Patch32.
func (a *Arena) OnPatch(fn PatchObserver) {
	a.observers = append(a.observers, fn)
}

// LastFault returns the most recent out-of-range access, if any.
func (a *Arena) LastFault() error { return a.lastFault }

func (a *Arena) inArena(addr GuestPtr, n uint32) bool {
	return uint64(addr)+uint64(n) <= uint64(a.size)
}

func (a *Arena) fault(op string, addr GuestPtr, n uint32) {
	a.lastFault = fmt.Errorf("%s %d bytes at 0x%08X: %w", op, n, addr, moserrors.ErrOutOfRange)
	log.Error(log.MemoryModule, "guest access outside allocated memory", "op", op, "addr", fmt.Sprintf("0x%08X", addr), "size", n)
}

// access validates a checked access. It returns false only when the range
// leaves the arena; uncovered ranges are reported and still performed.
func (a *Arena) access(op string, addr GuestPtr, n uint32) bool {
	if !a.inArena(addr, n) {
		a.fault(op, addr, n)
		return false
	}
	if a.checkBounds && !a.covered(addr, n) {
		a.fault(op, addr, n)
	}
	return true
}

func (a *Arena) system8(addr GuestPtr) bool {
	return a.system != nil && addr < SystemPageEnd
}

// --- unchecked accessors ---

func (a *Arena) ReadUnsafe8(addr GuestPtr) uint8 {
	return a.mem[addr]
}

func (a *Arena) ReadUnsafe16(addr GuestPtr) uint16 {
	m := a.mem[addr : addr+2]
	return uint16(m[0])<<8 | uint16(m[1])
}

func (a *Arena) ReadUnsafe32(addr GuestPtr) uint32 {
	m := a.mem[addr : addr+4]
	return uint32(m[0])<<24 | uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3])
}

func (a *Arena) ReadUnsafe64(addr GuestPtr) uint64 {
	return uint64(a.ReadUnsafe32(addr))<<32 | uint64(a.ReadUnsafe32(addr+4))
}

func (a *Arena) WriteUnsafe8(addr GuestPtr, v uint8) {
	a.mem[addr] = v
}

func (a *Arena) WriteUnsafe16(addr GuestPtr, v uint16) {
	m := a.mem[addr : addr+2]
	m[0], m[1] = byte(v>>8), byte(v)
}

func (a *Arena) WriteUnsafe32(addr GuestPtr, v uint32) {
	m := a.mem[addr : addr+4]
	m[0], m[1], m[2], m[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}

func (a *Arena) WriteUnsafe64(addr GuestPtr, v uint64) {
	a.WriteUnsafe32(addr, uint32(v>>32))
	a.WriteUnsafe32(addr+4, uint32(v))
}

// --- checked accessors ---

func (a *Arena) Read8(addr GuestPtr) uint8 {
	if a.system8(addr) {
		return uint8(a.system.ReadCell(addr, 1))
	}
	if !a.access("read", addr, 1) {
		return 0
	}
	return a.ReadUnsafe8(addr)
}

func (a *Arena) Read16(addr GuestPtr) uint16 {
	if a.system8(addr) {
		return uint16(a.system.ReadCell(addr, 2))
	}
	if !a.access("read", addr, 2) {
		return 0
	}
	return a.ReadUnsafe16(addr)
}

func (a *Arena) Read32(addr GuestPtr) uint32 {
	if a.system8(addr) {
		return a.system.ReadCell(addr, 4)
	}
	if !a.access("read", addr, 4) {
		return 0
	}
	return a.ReadUnsafe32(addr)
}

func (a *Arena) Read64(addr GuestPtr) uint64 {
	if a.system8(addr) {
		return uint64(a.Read32(addr))<<32 | uint64(a.Read32(addr+4))
	}
	if !a.access("read", addr, 8) {
		return 0
	}
	return a.ReadUnsafe64(addr)
}

func (a *Arena) Write8(addr GuestPtr, v uint8) {
	if a.system8(addr) {
		a.system.WriteCell(addr, 1, uint32(v))
		return
	}
	if a.access("write", addr, 1) {
		a.WriteUnsafe8(addr, v)
	}
}

func (a *Arena) Write16(addr GuestPtr, v uint16) {
	if a.system8(addr) {
		a.system.WriteCell(addr, 2, uint32(v))
		return
	}
	if a.access("write", addr, 2) {
		a.WriteUnsafe16(addr, v)
	}
}

func (a *Arena) Write32(addr GuestPtr, v uint32) {
	if a.system8(addr) {
		a.system.WriteCell(addr, 4, v)
		return
	}
	if a.access("write", addr, 4) {
		a.WriteUnsafe32(addr, v)
	}
}

func (a *Arena) Write64(addr GuestPtr, v uint64) {
	if a.system8(addr) {
		a.Write32(addr, uint32(v>>32))
		a.Write32(addr+4, uint32(v))
		return
	}
	if a.access("write", addr, 8) {
		a.WriteUnsafe64(addr, v)
	}
}

// Memcpy copies n bytes from src to dst. Overlapping ranges behave like
// BlockMove. Source and destination are checked independently.
func (a *Arena) Memcpy(dst, src GuestPtr, n uint32) {
	if n == 0 {
		return
	}
	okSrc := a.access("copy from", src, n)
	okDst := a.access("copy to", dst, n)
	if !okSrc || !okDst {
		return
	}
	copy(a.mem[dst:dst+n], a.mem[src:src+n])
}

// Bytes returns a copy of n guest bytes.
func (a *Arena) Bytes(addr GuestPtr, n uint32) []byte {
	out := make([]byte, n)
	if n == 0 || !a.access("read", addr, n) {
		return out
	}
	copy(out, a.mem[addr:addr+n])
	return out
}

// WriteBytes copies data into the guest at addr.
func (a *Arena) WriteBytes(addr GuestPtr, data []byte) {
	n := uint32(len(data))
	if n == 0 || !a.access("write", addr, n) {
		return
	}
	copy(a.mem[addr:addr+n], data)
}

// CString reads a NUL terminated string.
func (a *Arena) CString(addr GuestPtr) []byte {
	var out []byte
	for p := addr; p < a.size; p++ {
		c := a.mem[p]
		if c == 0 {
			return out
		}
		out = append(out, c)
	}
	a.fault("read", addr, uint32(len(out)))
	return out
}

// PString reads a length-prefixed Pascal string.
func (a *Arena) PString(addr GuestPtr) []byte {
	if addr == 0 {
		return nil
	}
	n := uint32(a.Read8(addr))
	return a.Bytes(addr+1, n)
}

// WriteCString stores s followed by a NUL byte.
func (a *Arena) WriteCString(addr GuestPtr, s []byte) {
	a.WriteBytes(addr, s)
	a.Write8(addr+uint32(len(s)), 0)
}

// Patch16 rewrites a guest code word and notifies the patch observers.
func (a *Arena) Patch16(addr GuestPtr, v uint16) {
	a.Write16(addr, v)
	a.Invalidate(addr, 2)
}

// Patch32 rewrites a guest code long word and notifies the patch observers.
func (a *Arena) Patch32(addr GuestPtr, v uint32) {
	a.Write32(addr, v)
	a.Invalidate(addr, 4)
}

// Invalidate tells the patch observers that guest code in addr..addr+n
// changed without going through Patch16 or Patch32.
func (a *Arena) Invalidate(addr GuestPtr, n uint32) {
	for _, fn := range a.observers {
		fn(addr, n)
	}
}
