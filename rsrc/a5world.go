package rsrc

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// A5World describes the globals and jump table allocation.
type A5World struct {
	Base          memory.GuestPtr // start of the allocation
	A5            memory.GuestPtr
	AboveA5       uint32
	BelowA5       uint32
	JumpTableSize uint32
	JTOffset      uint32
}

// JumpTable is the address of the first jump table entry.
func (w A5World) JumpTable() memory.GuestPtr { return w.A5 + w.JTOffset }

// EntryPoint is where execution starts: the first jump table entry, past
// its offset word.
func (w A5World) EntryPoint() memory.GuestPtr { return w.JumpTable() + 2 }

// BuildA5World lays out globals and jump table from the CODE 0 header:
// above A5, below A5, jump table length, jump table offset.
func (l *Loader) BuildA5World(code0 memory.GuestPtr) (A5World, error) {
	p, err := l.mem.Deref(code0)
	if err != nil {
		return A5World{}, fmt.Errorf("CODE 0: %w", err)
	}
	size, err := l.mem.Size(p)
	if err != nil || size < 16 {
		return A5World{}, fmt.Errorf("CODE 0 of %d bytes: %w", size, moserrors.ErrBadA5Header)
	}
	w := A5World{
		AboveA5:       l.mem.Read32(p),
		BelowA5:       l.mem.Read32(p + 4),
		JumpTableSize: l.mem.Read32(p + 8),
		JTOffset:      l.mem.Read32(p + 12),
	}
	if 16+uint64(w.JumpTableSize) > uint64(size) ||
		uint64(w.JTOffset)+uint64(w.JumpTableSize) > uint64(w.AboveA5) ||
		uint64(w.AboveA5)+uint64(w.BelowA5) > uint64(l.mem.Len()) {
		return A5World{}, fmt.Errorf("jump table 0x%X+0x%X, above A5 0x%X: %w", w.JTOffset, w.JumpTableSize, w.AboveA5, moserrors.ErrBadA5Header)
	}
	if w.Base, err = l.mem.Alloc(w.AboveA5 + w.BelowA5); err != nil {
		return A5World{}, fmt.Errorf("A5 world: %w", err)
	}
	w.A5 = w.Base + w.BelowA5
	l.mem.Memcpy(w.JumpTable(), p+16, w.JumpTableSize)
	l.jumpTable = Segment{ID: JumpTableSegment, Start: w.JumpTable(), End: w.JumpTable() + w.JumpTableSize}

	if l.globals != nil {
		l.globals.CurrentA5 = w.A5
		l.globals.CurJTOffset = uint16(w.JTOffset)
	}
	log.Debug(log.ResourceModule, "A5 world", "a5", fmt.Sprintf("0x%08X", w.A5), "above", w.AboveA5, "below", w.BelowA5, "jt", w.JumpTableSize, "offset", w.JTOffset)
	return w, nil
}
