// Package lowmem serves the low-memory globals below 0x1E00 that MPW tools
// read directly instead of calling a trap.
package lowmem

import (
	"fmt"
	"time"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
)

// Cell addresses.
const (
	AddrLineVector  = 0x0028
	AddrExitTrap    = 0x0070
	AddrLoadTrap    = 0x012D
	AddrTime        = 0x020C
	AddrMemErr      = 0x0220
	AddrROM85       = 0x028E
	AddrMPWHandle   = 0x0316
	AddrCurrentA5   = 0x0904
	AddrCurStack    = 0x0908
	AddrCurApName   = 0x0910
	AddrSaveSeg     = 0x0930
	AddrCurJTOffset = 0x0934
	AddrResLoad     = 0x0A5E
	AddrResErr      = 0x0A60
)

// Globals holds the live values behind the cells. The emulator session owns
// it and updates it as the guest runs.
type Globals struct {
	DispatchWord memory.GuestPtr
	MPWHandle    memory.GuestPtr
	CurrentA5    memory.GuestPtr
	CurStackBase memory.GuestPtr
	CurJTOffset  uint16
	ResLoad      uint16
	ResErr       int16
	MemErr       int16

	Clock func() time.Time
}

// NewGlobals returns the state at launch: resources load automatically.
func NewGlobals() *Globals {
	return &Globals{ResLoad: 1, Clock: time.Now}
}

// Ticks counts sixtieths of a second.
func (g *Globals) Ticks() uint32 {
	now := time.Now()
	if g.Clock != nil {
		now = g.Clock()
	}
	return uint32(now.Unix()*60 + int64(now.Nanosecond())/(int64(time.Second)/60))
}

type cell struct {
	name  string
	width int
	get   func() uint32
	set   func(uint32)
}

func constant(v uint32) func() uint32 { return func() uint32 { return v } }

// Page implements memory.SystemPage over a Globals.
type Page struct {
	g     *Globals
	cells map[memory.GuestPtr]cell
}

func NewPage(g *Globals) *Page {
	p := &Page{g: g}
	p.cells = map[memory.GuestPtr]cell{
		0x0000:          {"(nil)", 4, constant(0), nil},
		0x0004:          {"(reset)", 4, constant(0), nil},
		AddrLineVector:  {"Line1010", 4, func() uint32 { return g.DispatchWord }, nil},
		AddrExitTrap:    {"ExitTrap", 2, constant(0xA9F4), nil},
		AddrLoadTrap:    {"LoadTrap", 1, constant(0), nil},
		AddrTime:        {"Time", 4, g.Ticks, nil},
		AddrMemErr:      {"MemErr", 2, func() uint32 { return uint32(uint16(g.MemErr)) }, func(v uint32) { g.MemErr = int16(v) }},
		AddrROM85:       {"ROM85", 2, constant(0), nil},
		AddrMPWHandle:   {"MPW", 4, func() uint32 { return g.MPWHandle }, nil},
		AddrCurrentA5:   {"CurrentA5", 4, func() uint32 { return g.CurrentA5 }, nil},
		AddrCurStack:    {"CurStackBase", 4, func() uint32 { return g.CurStackBase }, nil},
		AddrSaveSeg:     {"SaveSegHandle", 4, constant(0), nil},
		AddrCurJTOffset: {"CurJTOffset", 2, func() uint32 { return uint32(g.CurJTOffset) }, nil},
		AddrResLoad:     {"ResLoad", 2, func() uint32 { return uint32(g.ResLoad) }, func(v uint32) { g.ResLoad = uint16(v) }},
		AddrResErr:      {"ResErr", 2, func() uint32 { return uint32(uint16(g.ResErr)) }, func(v uint32) { g.ResErr = int16(v) }},
	}
	for a := memory.GuestPtr(AddrCurApName); a < AddrSaveSeg; a += 4 {
		p.cells[a] = cell{"CurApName", 4, constant(0), nil}
	}
	return p
}

// find returns the cell covering addr..addr+width and the byte offset of
// addr inside it.
func (p *Page) find(addr memory.GuestPtr, width int) (memory.GuestPtr, cell, bool) {
	for back := memory.GuestPtr(0); back < 4 && back <= addr; back++ {
		start := addr - back
		if c, ok := p.cells[start]; ok && int(back)+width <= c.width {
			return start, c, true
		}
	}
	return 0, cell{}, false
}

// ReadCell returns the live value of the cells covering addr. Unknown
// addresses read as zero.
func (p *Page) ReadCell(addr memory.GuestPtr, width int) uint32 {
	start, c, ok := p.find(addr, width)
	if !ok {
		log.Debug(log.LowMemModule, "read of unsupported low memory", "addr", fmt.Sprintf("0x%04X", addr), "width", width)
		return 0
	}
	v := c.get()
	shift := uint(c.width-int(addr-start)-width) * 8
	v >>= shift
	if width < 4 {
		v &= 1<<(8*width) - 1
	}
	log.Trace(log.LowMemModule, "read", "addr", fmt.Sprintf("0x%04X", addr), "var", c.name, "value", fmt.Sprintf("0x%X", v))
	return v
}

// WriteCell stores into a writable cell. A write starting at a cell sets the
// whole value, as guests toggle ResLoad with byte sized SF/ST.
func (p *Page) WriteCell(addr memory.GuestPtr, width int, value uint32) {
	c, ok := p.cells[addr]
	if !ok || c.set == nil {
		log.Debug(log.LowMemModule, "write to unsupported low memory", "addr", fmt.Sprintf("0x%04X", addr), "width", width, "value", fmt.Sprintf("0x%X", value))
		return
	}
	log.Trace(log.LowMemModule, "write", "addr", fmt.Sprintf("0x%04X", addr), "var", c.name, "value", fmt.Sprintf("0x%X", value))
	c.set(value)
}

// Name labels a low-memory address for traces.
func (p *Page) Name(addr memory.GuestPtr) string {
	if start, c, ok := p.find(addr, 1); ok {
		if start == addr {
			return c.name
		}
		return fmt.Sprintf("%s+%d", c.name, addr-start)
	}
	return ""
}
