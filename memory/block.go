package memory

import (
	"fmt"
	"iter"

	"github.com/colorfulnotion/mosrun/moserrors"
)

// Block header layout, stored big-endian in front of every payload.
const (
	hdrPrev  = 0
	hdrNext  = 4
	hdrSize  = 8
	hdrFlags = 12

	HeaderSize = 16
)

// Kind tags a block. The high nibble of the low flag byte holds the magic
// value 0xA so a stray pointer is unlikely to pass as a header.
type Kind uint8

const (
	KindFree        Kind = 0xA1
	KindUsed        Kind = 0xA2
	KindHandleTable Kind = 0xA3
	KindSentinel    Kind = 0xA4

	magicMask  = 0xF0
	magicValue = 0xA0
)

// Handle state bits as returned by HGetState.
const (
	StateLocked    uint8 = 0x80
	StatePurgeable uint8 = 0x40
	StateResource  uint8 = 0x20
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindUsed:
		return "used"
	case KindHandleTable:
		return "handle"
	case KindSentinel:
		return "sentinel"
	}
	return fmt.Sprintf("bad(0x%02X)", uint8(k))
}

func (k Kind) valid() bool {
	return uint8(k)&magicMask == magicValue && k >= KindFree && k <= KindSentinel
}

// Block is a snapshot of one block header.
type Block struct {
	Addr  GuestPtr // header address
	Prev  GuestPtr
	Next  GuestPtr
	Size  uint32
	Kind  Kind
	State uint8
}

// Payload is the address handed out to the guest.
func (b Block) Payload() GuestPtr { return b.Addr + HeaderSize }

func (a *Arena) header(addr GuestPtr) Block {
	flags := a.ReadUnsafe32(addr + hdrFlags)
	return Block{
		Addr:  addr,
		Prev:  a.ReadUnsafe32(addr + hdrPrev),
		Next:  a.ReadUnsafe32(addr + hdrNext),
		Size:  a.ReadUnsafe32(addr + hdrSize),
		Kind:  Kind(flags),
		State: uint8(flags >> 8),
	}
}

func (a *Arena) setPrev(addr, v GuestPtr) { a.WriteUnsafe32(addr+hdrPrev, v) }
func (a *Arena) setNext(addr, v GuestPtr) { a.WriteUnsafe32(addr+hdrNext, v) }
func (a *Arena) setSize(addr GuestPtr, v uint32) {
	a.WriteUnsafe32(addr+hdrSize, v)
}

func (a *Arena) setKind(addr GuestPtr, k Kind) {
	a.WriteUnsafe32(addr+hdrFlags, uint32(k))
}

func (a *Arena) setState(addr GuestPtr, state uint8) {
	flags := a.ReadUnsafe32(addr + hdrFlags)
	a.WriteUnsafe32(addr+hdrFlags, flags&^0xFF00|uint32(state)<<8)
}

func (a *Arena) writeHeader(b Block) {
	a.setPrev(b.Addr, b.Prev)
	a.setNext(b.Addr, b.Next)
	a.setSize(b.Addr, b.Size)
	a.WriteUnsafe32(b.Addr+hdrFlags, uint32(b.Kind)|uint32(b.State)<<8)
}

func (a *Arena) clearHeader(addr GuestPtr) {
	clear(a.mem[addr : addr+HeaderSize])
}

// blockOf validates that ptr is the payload of an allocated block.
func (a *Arena) blockOf(ptr GuestPtr) (Block, error) {
	if ptr < HeapStart+HeaderSize || ptr >= a.sentinel || ptr%4 != 0 {
		return Block{}, fmt.Errorf("0x%08X: %w", ptr, moserrors.ErrNotAllocated)
	}
	b := a.header(ptr - HeaderSize)
	switch {
	case !b.Kind.valid():
		return b, fmt.Errorf("block 0x%08X flags 0x%02X: %w", b.Addr, uint8(b.Kind), moserrors.ErrCorruptBlock)
	case b.Kind == KindFree:
		return b, fmt.Errorf("block 0x%08X: %w", b.Addr, moserrors.ErrDoubleFree)
	case b.Kind == KindSentinel:
		return b, fmt.Errorf("block 0x%08X: %w", b.Addr, moserrors.ErrSentinelTouched)
	}
	if a.strict && !a.linked(b.Addr) {
		return b, fmt.Errorf("block 0x%08X not in block list: %w", b.Addr, moserrors.ErrCorruptBlock)
	}
	return b, nil
}

func (a *Arena) linked(addr GuestPtr) bool {
	for b := range a.Blocks() {
		if b.Addr == addr {
			return true
		}
	}
	return false
}

// Blocks walks the block list in address order, sentinel included.
func (a *Arena) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		limit := a.size/HeaderSize + 1
		addr := HeapStart
		for n := uint32(0); n < limit && addr != 0 && a.inArena(addr, HeaderSize); n++ {
			b := a.header(addr)
			if !yield(b) || b.Kind == KindSentinel {
				return
			}
			addr = b.Next
		}
	}
}

// covered reports whether addr..addr+n lies inside one allocated payload.
func (a *Arena) covered(addr GuestPtr, n uint32) bool {
	end := uint64(addr) + uint64(n)
	for b := range a.Blocks() {
		if b.Kind != KindUsed && b.Kind != KindHandleTable {
			continue
		}
		start := b.Payload()
		if addr >= start && end <= uint64(start)+uint64(b.Size) {
			return true
		}
	}
	return false
}

// FreeBytes sums the payload capacity of all free blocks.
func (a *Arena) FreeBytes() uint32 {
	var total uint32
	for b := range a.Blocks() {
		if b.Kind == KindFree {
			total += b.Size
		}
	}
	return total
}

// LargestFree is the biggest request Alloc can currently satisfy.
func (a *Arena) LargestFree() uint32 {
	var largest uint32
	for b := range a.Blocks() {
		if b.Kind == KindFree && b.Size > largest {
			largest = b.Size
		}
	}
	return largest
}
