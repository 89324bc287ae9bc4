package memory

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// Init zeroes the managed region and installs one free block bounded by a
// zero sized sentinel at the top of the arena.
func (a *Arena) Init() {
	clear(a.mem[HeapStart:])
	a.sentinel = a.size - HeaderSize
	a.writeHeader(Block{
		Addr: HeapStart,
		Next: a.sentinel,
		Size: a.sentinel - HeapStart - HeaderSize,
		Kind: KindFree,
	})
	a.writeHeader(Block{
		Addr: a.sentinel,
		Prev: HeapStart,
		Kind: KindSentinel,
	})
	a.lastFault = nil
}

// Sentinel returns the header address of the top block.
func (a *Arena) Sentinel() GuestPtr { return a.sentinel }

// Alloc returns a zeroed payload of at least size bytes (NewPtr).
func (a *Arena) Alloc(size uint32) (GuestPtr, error) {
	return a.alloc(size, KindUsed)
}

// NewPtrString allocates a NUL terminated copy of s.
func (a *Arena) NewPtrString(s string) (GuestPtr, error) {
	p, err := a.Alloc(uint32(len(s)) + 1)
	if err != nil {
		return 0, err
	}
	a.WriteCString(p, []byte(s))
	return p, nil
}

func (a *Arena) alloc(size uint32, kind Kind) (GuestPtr, error) {
	// zero sized blocks would share their payload address with the next header
	size = common.Align4(max(size, 1))

	for addr := HeapStart; addr != a.sentinel; {
		b := a.header(addr)
		if !b.Kind.valid() {
			log.Error(log.MemoryModule, "corrupt block header during alloc", "block", fmt.Sprintf("0x%08X", addr))
			return 0, fmt.Errorf("alloc %d: block 0x%08X: %w", size, addr, moserrors.ErrCorruptBlock)
		}
		if b.Kind == KindFree {
			switch {
			case b.Size == size:
				a.setKind(addr, kind)
				return a.finishAlloc(b.Payload(), size)
			case b.Size >= size+HeaderSize:
				a.split(b, size)
				a.setKind(addr, kind)
				return a.finishAlloc(b.Payload(), size)
			}
		}
		addr = b.Next
	}

	log.Error(log.MemoryModule, "out of guest memory", "request", size, "free", a.FreeBytes(), "largest", a.LargestFree())
	return 0, fmt.Errorf("alloc %d: %w", size, moserrors.ErrOutOfMemory)
}

// split shrinks free block b to size bytes and turns the rest into a new
// free block right behind it.
func (a *Arena) split(b Block, size uint32) {
	rest := b.Addr + HeaderSize + size
	a.writeHeader(Block{
		Addr: rest,
		Prev: b.Addr,
		Next: b.Next,
		Size: b.Size - size - HeaderSize,
		Kind: KindFree,
	})
	a.setPrev(b.Next, rest)
	a.setNext(b.Addr, rest)
	a.setSize(b.Addr, size)
}

func (a *Arena) finishAlloc(p GuestPtr, size uint32) (GuestPtr, error) {
	clear(a.mem[p : p+size])
	log.Trace(log.MemoryModule, "alloc", "ptr", fmt.Sprintf("0x%08X", p), "size", size)
	return p, a.verify("alloc")
}

// Free releases an allocated payload (DisposePtr) and merges it with free
// neighbours, next first. Invalid pointers are rejected before anything is
// written.
func (a *Arena) Free(ptr GuestPtr) error {
	b, err := a.blockOf(ptr)
	if err != nil {
		log.Error(log.MemoryModule, "free rejected", "ptr", fmt.Sprintf("0x%08X", ptr), "err", err)
		return fmt.Errorf("free: %w", err)
	}
	a.setKind(b.Addr, KindFree)
	b.Kind = KindFree

	if next := a.header(b.Next); next.Kind == KindFree {
		b = a.merge(b, next)
	}
	if b.Prev != 0 {
		if prev := a.header(b.Prev); prev.Kind == KindFree {
			a.merge(prev, b)
		}
	}
	log.Trace(log.MemoryModule, "free", "ptr", fmt.Sprintf("0x%08X", ptr))
	return a.verify("free")
}

// merge folds the free block hi into its lower neighbour lo.
func (a *Arena) merge(lo, hi Block) Block {
	lo.Size += HeaderSize + hi.Size
	lo.Next = hi.Next
	a.setSize(lo.Addr, lo.Size)
	a.setNext(lo.Addr, lo.Next)
	a.setPrev(hi.Next, lo.Addr)
	a.clearHeader(hi.Addr)
	return lo
}

// Size returns the recorded payload size of an allocated block.
func (a *Arena) Size(ptr GuestPtr) (uint32, error) {
	b, err := a.blockOf(ptr)
	if err != nil {
		return 0, err
	}
	return b.Size, nil
}

// verify runs the coherence check after a mutation in strict mode.
func (a *Arena) verify(op string) error {
	if !a.strict {
		return nil
	}
	if err := a.CoherenceCheck(); err != nil {
		log.Error(log.MemoryModule, "heap check failed", "after", op, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
