// Package cpu abstracts the 68k core that executes guest code. The core
// shares the session's arena and calls a hook before every instruction.
package cpu

import (
	"context"
	"fmt"
	"strings"
)

// Reg names a 68k register.
type Reg int

const (
	D0 Reg = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	PC
	SR

	NumRegs

	SP = A7
)

var regNames = [...]string{
	"D0", "D1", "D2", "D3", "D4", "D5", "D6", "D7",
	"A0", "A1", "A2", "A3", "A4", "A5", "A6", "A7",
	"PC", "SR",
}

func (r Reg) String() string {
	if r >= 0 && r < NumRegs {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", int(r))
}

// ParseReg accepts register names case-insensitively, including "SP".
func ParseReg(s string) (Reg, bool) {
	s = strings.ToUpper(s)
	if s == "SP" {
		return SP, true
	}
	for i, name := range regNames {
		if name == s {
			return Reg(i), true
		}
	}
	return 0, false
}

// Hook runs before the instruction at pc. It may change registers and
// memory, including the PC. It returns the opcode word the core has to
// execute at the resulting PC, which differs from memory while a patched
// instruction is replayed.
type Hook func(pc uint32) (uint16, error)

// Registers is read and write access to the register file.
type Registers interface {
	Reg(r Reg) uint32
	SetReg(r Reg, v uint32)
}

// Core is a 68k CPU bound to a session.
type Core interface {
	Registers

	// Run executes from the current PC until Stop is called, the hook fails
	// or ctx is done.
	Run(ctx context.Context) error
	// Stop ends Run after the current hook returns. A nil err is a normal
	// exit.
	Stop(err error)
	Close() error
}

// Snapshot copies the register file.
func Snapshot(r Registers) [NumRegs]uint32 {
	var s [NumRegs]uint32
	for i := range s {
		s[i] = r.Reg(Reg(i))
	}
	return s
}

// Dump formats the register file the way MacsBug shows it.
func Dump(r Registers) string {
	var b strings.Builder
	for _, bank := range []Reg{D0, A0} {
		for i := Reg(0); i < 8; i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%08X", bank+i, r.Reg(bank+i))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "PC=%08X SR=%04X", r.Reg(PC), r.Reg(SR)&0xFFFF)
	return b.String()
}

// Stack is the guest memory the push and pop helpers work on.
type Stack interface {
	Read16(addr uint32) uint16
	Read32(addr uint32) uint32
	Write16(addr uint32, v uint16)
	Write32(addr uint32, v uint32)
}

func Push32(r Registers, m Stack, v uint32) {
	sp := r.Reg(SP) - 4
	m.Write32(sp, v)
	r.SetReg(SP, sp)
}

func Push16(r Registers, m Stack, v uint16) {
	sp := r.Reg(SP) - 2
	m.Write16(sp, v)
	r.SetReg(SP, sp)
}

func Pop32(r Registers, m Stack) uint32 {
	sp := r.Reg(SP)
	v := m.Read32(sp)
	r.SetReg(SP, sp+4)
	return v
}

func Pop16(r Registers, m Stack) uint16 {
	sp := r.Reg(SP)
	v := m.Read16(sp)
	r.SetReg(SP, sp+2)
	return v
}
