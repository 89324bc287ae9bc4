// Package breakpoints patches guest code with the breakpoint opcode and
// tracks the one-shot replay of the original instruction after a hit.
package breakpoints

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/traps"
)

type State int

const (
	Registered State = iota
	Installed
	Hit
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Installed:
		return "installed"
	case Hit:
		return "hit"
	}
	return "unknown"
}

// Breakpoint is one patched instruction. Segment and Offset are what the
// user gave; Address and Original are filled in when the segment loads.
type Breakpoint struct {
	Segment  uint16
	Offset   uint32
	Label    string
	Address  memory.GuestPtr
	Original uint16
	State    State
	Hits     int

	next *Breakpoint
}

func (bp *Breakpoint) String() string {
	s := fmt.Sprintf("%02d.%05X", bp.Segment, bp.Offset)
	if bp.Label != "" {
		s += " " + bp.Label
	}
	return s
}

// Manager is the breakpoint registry of a session. Two breakpoints resolving
// to the same address keep re-trapping each other; that case is not guarded.
type Manager struct {
	mem     *memory.Arena
	first   *Breakpoint
	pending *Breakpoint
	loaded  map[uint16]memory.GuestPtr
}

func New(mem *memory.Arena) *Manager {
	return &Manager{mem: mem, loaded: make(map[uint16]memory.GuestPtr)}
}

// Add registers a breakpoint. If its segment is already loaded it is
// installed right away.
func (m *Manager) Add(segment uint16, offset uint32, label string) *Breakpoint {
	bp := &Breakpoint{Segment: segment, Offset: offset, Label: label, next: m.first}
	m.first = bp
	log.Debug(log.BreakpointModule, "breakpoint added", "at", bp.String())
	if base, ok := m.loaded[segment]; ok {
		m.install(bp, base)
	}
	return bp
}

// ParseSpec reads "segment:offset[:label]"; the offset is hexadecimal as in
// code dumps, the segment decimal.
func ParseSpec(spec string) (segment uint16, offset uint32, label string, err error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 {
		return 0, 0, "", fmt.Errorf("%q: %w", spec, moserrors.ErrBadBreakpointSpec)
	}
	seg, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return 0, 0, "", fmt.Errorf("%q segment: %w", spec, moserrors.ErrBadBreakpointSpec)
	}
	off, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(parts[1]), "0x"), 16, 32)
	if err != nil {
		return 0, 0, "", fmt.Errorf("%q offset: %w", spec, moserrors.ErrBadBreakpointSpec)
	}
	if len(parts) == 3 {
		label = parts[2]
	}
	return uint16(seg), uint32(off), label, nil
}

// Install patches every breakpoint of segment now that its code lives at
// base. It returns the number of patched instructions.
func (m *Manager) Install(segment uint16, base memory.GuestPtr) int {
	m.loaded[segment] = base
	n := 0
	for bp := range m.All() {
		if bp.Segment == segment {
			m.install(bp, base)
			n++
		}
	}
	return n
}

func (m *Manager) install(bp *Breakpoint, base memory.GuestPtr) {
	bp.Address = base + bp.Offset
	bp.Original = m.mem.Read16(bp.Address)
	bp.State = Installed
	m.mem.Patch16(bp.Address, traps.OpBreakpoint)
	log.Debug(log.BreakpointModule, "breakpoint installed", "at", bp.String(), "addr", fmt.Sprintf("0x%08X", bp.Address), "original", fmt.Sprintf("0x%04X", bp.Original))
}

// Find looks a breakpoint up by its resolved address.
func (m *Manager) Find(addr memory.GuestPtr) *Breakpoint {
	for bp := range m.All() {
		if bp.State != Registered && bp.Address == addr {
			return bp
		}
	}
	return nil
}

// Hit delivers a breakpoint trap at addr and arms the replay of the
// original instruction. Unknown addresses are logged and nil is returned.
func (m *Manager) Hit(addr memory.GuestPtr) *Breakpoint {
	bp := m.Find(addr)
	if bp == nil {
		log.Warn(log.BreakpointModule, "breakpoint trap without a registered breakpoint", "addr", fmt.Sprintf("0x%08X", addr))
		return nil
	}
	bp.State = Hit
	bp.Hits++
	m.pending = bp
	log.Info(log.BreakpointModule, "breakpoint", "at", bp.String(), "addr", fmt.Sprintf("0x%08X", addr), "hits", bp.Hits)
	return bp
}

// Pending is the breakpoint whose original instruction is being replayed.
func (m *Manager) Pending() *Breakpoint { return m.pending }

// Fetch returns the instruction word the CPU should see at addr: the
// original word while its replay is pending, word otherwise.
func (m *Manager) Fetch(addr memory.GuestPtr, word uint16) uint16 {
	if m.pending != nil && m.pending.Address == addr {
		return m.pending.Original
	}
	return word
}

// Advance ends a pending replay once execution has moved past it.
func (m *Manager) Advance(pc memory.GuestPtr) {
	if m.pending != nil && m.pending.Address != pc {
		m.pending.State = Installed
		m.pending = nil
	}
}

// All iterates the registry, newest first.
func (m *Manager) All() iter.Seq[*Breakpoint] {
	return func(yield func(*Breakpoint) bool) {
		for bp := m.first; bp != nil; bp = bp.next {
			if !yield(bp) {
				return
			}
		}
	}
}
