package memory

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/moserrors"
)

// CoherenceCheck walks the whole block list and returns the first broken
// invariant: bad magic, broken back links, a size that does not reach the
// next header, two adjacent free blocks, a dangling handle or a missing
// sentinel.
func (a *Arena) CoherenceCheck() error {
	fail := func(addr GuestPtr, format string, args ...any) error {
		return fmt.Errorf("block 0x%08X: %s: %w", addr, fmt.Sprintf(format, args...), moserrors.ErrIncoherentHeap)
	}

	var (
		prev     GuestPtr
		prevFree bool
		spanned  uint32
	)
	limit := a.size/HeaderSize + 1
	addr := HeapStart
	for n := uint32(0); ; n++ {
		if n > limit {
			return fail(addr, "block list does not terminate")
		}
		if addr < HeapStart || !a.inArena(addr, HeaderSize) {
			return fail(addr, "header outside the managed region")
		}
		b := a.header(addr)
		if !b.Kind.valid() {
			return fail(addr, "bad flags 0x%08X", a.ReadUnsafe32(addr+hdrFlags))
		}
		if b.Prev != prev {
			return fail(addr, "prev 0x%08X, expected 0x%08X", b.Prev, prev)
		}
		if b.Kind == KindSentinel {
			if addr != a.sentinel || b.Size != 0 || b.Next != 0 {
				return fail(addr, "misplaced sentinel")
			}
			break
		}
		if b.Next != addr+HeaderSize+b.Size {
			return fail(addr, "size %d does not reach next 0x%08X", b.Size, b.Next)
		}
		if b.Kind == KindFree && prevFree {
			return fail(addr, "adjacent free blocks")
		}
		if b.Kind == KindHandleTable {
			if b.Size != 4 {
				return fail(addr, "handle block of size %d", b.Size)
			}
			if p := a.ReadUnsafe32(b.Payload()); p != 0 {
				if _, err := a.blockOf(p); err != nil {
					return fail(addr, "master pointer 0x%08X: %v", p, err)
				}
			}
		}
		spanned += HeaderSize + b.Size
		prevFree = b.Kind == KindFree
		prev = addr
		addr = b.Next
	}
	if spanned != a.sentinel-HeapStart {
		return fail(a.sentinel, "blocks span %d bytes, region is %d", spanned, a.sentinel-HeapStart)
	}
	return nil
}
