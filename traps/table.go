// Package traps owns the A-line trap table: guest pointers to glue records
// indexed by Slot (OS traps at 0x000-0x0FF, toolbox traps at 0x800-0xBFF),
// and the host side registry of native routines the glue refers to by
// index.
package traps

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// Reserved opcodes interpreted by the instruction hook.
const (
	OpExit       uint16 = 0xAFFC
	OpDispatch   uint16 = 0xAFFD
	OpBreakpoint uint16 = 0xAFFE
	OpGoNative   uint16 = 0xAFFF

	OpRTS uint16 = 0x4E75
)

const (
	Slots    = 0x1000
	GlueSize = 12

	glueIndex = 4
	glueRTS   = 8
)

// Native is a host routine reachable through glue. It receives the trap
// word that led to it and works on guest registers and memory only.
type Native func(trap uint16) error

type native struct {
	name string
	fn   Native
}

// IsALine reports whether op is in the 0xAxxx trap range.
func IsALine(op uint16) bool {
	return op&0xF000 == 0xA000
}

// IsReserved reports whether op is one of the four hook opcodes.
func IsReserved(op uint16) bool {
	return op >= OpExit
}

// Table is the trap table of one session.
type Table struct {
	mem *memory.Arena

	base          memory.GuestPtr
	slots         [Slots]memory.GuestPtr
	unimplemented memory.GuestPtr

	natives []native
}

// New builds a table whose every slot points to the glue for unimplemented.
func New(mem *memory.Arena, unimplemented Native) (*Table, error) {
	t := &Table{mem: mem}
	glue, err := t.createGlue(0, "Unimplemented", unimplemented)
	if err != nil {
		return nil, err
	}
	t.unimplemented = glue
	if t.base, err = mem.Alloc(Slots * 4); err != nil {
		return nil, fmt.Errorf("trap table: %w", err)
	}
	for i := range t.slots {
		t.slots[i] = glue
		mem.Write32(t.base+uint32(i)*4, glue)
	}
	return t, nil
}

// InstallGlue registers fn and, for a non-zero trap, routes its slot to the
// new glue. The glue address is returned either way.
func (t *Table) InstallGlue(trap uint16, name string, fn Native) (memory.GuestPtr, error) {
	return t.createGlue(trap, name, fn)
}

func (t *Table) createGlue(trap uint16, name string, fn Native) (memory.GuestPtr, error) {
	p, err := t.mem.Alloc(GlueSize)
	if err != nil {
		return 0, fmt.Errorf("glue for %s: %w", name, err)
	}
	index := uint32(len(t.natives))
	t.natives = append(t.natives, native{name: name, fn: fn})

	t.mem.Write16(p, OpGoNative)
	t.mem.Write32(p+glueIndex, index)
	t.mem.Write16(p+glueRTS, OpRTS)

	if trap != 0 {
		t.store(trap, p)
		log.Debug(log.TrapModule, "trap installed", "trap", fmt.Sprintf("0x%04X", trap), "name", name, "glue", fmt.Sprintf("0x%08X", p))
	}
	return p, nil
}

// Slot maps a trap word to its table index. An OS trap is indexed by its
// low byte; its 0x0200 and 0x0400 bits are call modifiers. A toolbox trap
// keeps ten bits plus 0x0800; its 0x0400 bit is the auto-pop modifier.
// Slot is idempotent, so indexes can be passed where trap words are
// expected.
func Slot(trap uint16) uint16 {
	if trap&0x0800 == 0 {
		return trap & 0x00FF
	}
	return trap&0x03FF | 0x0800
}

func (t *Table) store(trap uint16, p memory.GuestPtr) {
	slot := Slot(trap)
	t.slots[slot] = p
	t.mem.Write32(t.base+uint32(slot)*4, p)
}

// Alias points the slot of trap alias at whatever trap currently resolves
// to.
func (t *Table) Alias(alias, trap uint16) {
	t.store(alias, t.Address(trap))
}

// Address returns the glue a trap dispatches to.
func (t *Table) Address(trap uint16) memory.GuestPtr {
	return t.slots[Slot(trap)]
}

// SetAddress overrides the slot of trap at guest request. Dispatch and
// Address see the new value immediately.
func (t *Table) SetAddress(trap uint16, p memory.GuestPtr) {
	log.Debug(log.TrapModule, "trap address set", "slot", fmt.Sprintf("0x%03X", Slot(trap)), "name", Name(0xA000|Slot(trap)), "addr", fmt.Sprintf("0x%08X", p))
	t.store(trap, p)
}

// Implemented reports whether a slot leads somewhere other than the
// unimplemented glue.
func (t *Table) Implemented(trap uint16) bool {
	return t.Address(trap) != t.unimplemented
}

// Unimplemented is the shared fallback glue.
func (t *Table) Unimplemented() memory.GuestPtr { return t.unimplemented }

// Base is the guest copy of the table.
func (t *Table) Base() memory.GuestPtr { return t.base }

// GlueTarget returns the address execution continues at after the native
// of the glue at p returned.
func GlueTarget(p memory.GuestPtr) memory.GuestPtr { return p + glueRTS }

// Native resolves the glue at p to its registered routine.
func (t *Table) Native(p memory.GuestPtr) (Native, string, error) {
	index := t.mem.Read32(p + glueIndex)
	if index >= uint32(len(t.natives)) {
		return nil, "", fmt.Errorf("glue 0x%08X index %d: %w", p, index, moserrors.ErrUnknownNative)
	}
	n := t.natives[index]
	return n.fn, n.name, nil
}

// NativeCount is the size of the registry.
func (t *Table) NativeCount() int { return len(t.natives) }
