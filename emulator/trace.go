package emulator

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/traps"
)

// Opcodes that end a function in MacsBug symbol scans.
const (
	opRTS    uint16 = 0x4E75
	opRTE    uint16 = 0x4E73
	opRTD    uint16 = 0x4E74
	opJMPA0  uint16 = 0x4ED0
	opADDIA7 uint16 = 0x0697

	macsBugScanLimit = 0x1000
)

func (s *Session) traceInstruction(pc uint32, word uint16) {
	if traps.IsALine(word) {
		log.Trace(log.InstrModule, "step", "at", s.FormatAddr(pc), "op", fmt.Sprintf("%04X", word), "trap", traps.Name(word))
		return
	}
	log.Trace(log.InstrModule, "step", "at", s.FormatAddr(pc), "op", fmt.Sprintf("%04X", word))
}

// FunctionName recovers the MacsBug symbol of the function containing pc:
// it scans forward to the function's return and decodes the name stored
// behind it. It returns "" when no symbol follows.
func (s *Session) FunctionName(pc memory.GuestPtr) string {
	end, ok := s.functionEnd(pc)
	if !ok {
		return ""
	}
	return s.macsBugName(end)
}

// functionEnd returns the address right behind the closing instruction.
func (s *Session) functionEnd(pc memory.GuestPtr) (memory.GuestPtr, bool) {
	for i := 0; i < macsBugScanLimit && uint64(pc)+2 <= uint64(s.Mem.Len()); i++ {
		op := s.Mem.ReadUnsafe16(pc)
		pc += 2
		switch op {
		case opRTS:
			// an ADDI.L #n,A7 opcode two words ahead of the RTS marks a
			// compiler jump sequence; the function continues
			if pc < 6 || s.Mem.ReadUnsafe16(pc-6) != opADDIA7 {
				return pc, true
			}
		case opRTE, opJMPA0:
			return pc, true
		case opRTD:
			return pc + 2, true
		}
	}
	return 0, false
}

// macsBugName decodes one of the three symbol encodings: a variable length
// name (0x80 followed by a length byte, or 0x81-0x9F with the length in the
// low bits) or a fixed 8 or 16 character name whose first byte has the high
// bit set.
func (s *Session) macsBugName(p memory.GuestPtr) string {
	if uint64(p)+2 > uint64(s.Mem.Len()) {
		return ""
	}
	b := s.Mem.ReadUnsafe8(p)
	var name []byte
	switch {
	case b < 0x20:
		return ""
	case b == 0x80:
		name = s.symbolBytes(p+2, uint32(s.Mem.ReadUnsafe8(p+1)))
	case b > 0x80 && b < 0xA0:
		name = s.symbolBytes(p+1, uint32(b-0x80))
	default:
		second := s.Mem.ReadUnsafe8(p + 1)
		name = []byte{b & 0x7F}
		rest := uint32(6)
		if second&0x80 != 0 {
			rest = 14
		}
		name = append(name, second&0x7F)
		name = append(name, s.symbolBytes(p+2, rest)...)
	}
	for _, c := range name {
		if c < 0x20 || c >= 0x7F {
			return ""
		}
	}
	return string(name)
}

func (s *Session) symbolBytes(p memory.GuestPtr, n uint32) []byte {
	if uint64(p)+uint64(n) > uint64(s.Mem.Len()) {
		return nil
	}
	return s.Mem.Raw()[p : p+n]
}

// TraceRegisters logs the register file at trace level.
func (s *Session) TraceRegisters() {
	if s.CPU == nil || !log.TraceEnabled(log.CPUModule) {
		return
	}
	pc := s.reg(cpu.PC)
	log.Trace(log.CPUModule, "registers", "at", s.FormatAddr(pc), "fn", s.FunctionName(pc), "regs", cpu.Dump(s.CPU))
}
