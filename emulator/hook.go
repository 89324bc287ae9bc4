package emulator

import (
	"fmt"

	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/lowmem"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/traps"
)

const (
	lineAVector uint16 = 0x0028
	autoPop     uint16 = 0x0400
)

// Step is the instruction hook. It runs before the instruction at pc,
// interprets the reserved opcodes and raises the A-line exception for every
// other trap word. It returns the word the core executes at the final PC.
func (s *Session) Step(pc uint32) (uint16, error) {
	s.steps++
	s.Breakpoints.Advance(pc)
	for {
		word := s.Breakpoints.Fetch(pc, s.Mem.Read16(pc))
		if log.TraceEnabled(log.InstrModule) {
			s.traceInstruction(pc, word)
		}
		if !traps.IsALine(word) {
			return word, nil
		}

		switch word {
		case traps.OpExit:
			s.exit("exit word")
			return word, nil

		case traps.OpDispatch:
			pc = s.dispatch()

		case traps.OpBreakpoint:
			next, err := s.breakpoint(pc)
			if err != nil {
				return word, s.fail(err)
			}
			if s.exited {
				return word, nil
			}
			// on a hit next == pc and the original word is fetched next pass
			pc = next

		case traps.OpGoNative:
			fn, name, err := s.Traps.Native(pc)
			if err != nil {
				return word, s.fail(err)
			}
			log.Trace(log.TrapModule, "native", "name", name, "trap", fmt.Sprintf("0x%04X", s.currentTrap))
			if err := fn(s.currentTrap); err != nil {
				return word, s.fail(fmt.Errorf("%s: %w", name, err))
			}
			if s.exited || s.fatal != nil {
				return s.Mem.Read16(s.reg(cpu.PC)), nil
			}
			pc = traps.GlueTarget(pc)
			s.setReg(cpu.PC, pc)

		default:
			pc = s.raiseLineA(pc, word)
		}
	}
}

// raiseLineA builds the format 0 exception frame the core would push for an
// A-line word and continues at the Line 1010 vector.
func (s *Session) raiseLineA(pc uint32, word uint16) uint32 {
	s.currentTrap = word
	log.Trace(log.TrapModule, "trap", "word", fmt.Sprintf("0x%04X", word), "name", traps.Name(word), "at", s.FormatAddr(pc))
	s.push16(lineAVector)
	s.push32(pc + 2)
	s.push16(uint16(s.reg(cpu.SR)))
	target := s.Mem.Read32(lowmem.AddrLineVector)
	s.setReg(cpu.PC, target)
	return target
}

// dispatch unwinds the exception frame and jumps through the trap table.
// Toolbox traps with the auto-pop bit return to the caller's caller.
func (s *Session) dispatch() uint32 {
	sr := s.pop16()
	ret := s.pop32()
	s.pop16() // vector offset
	trap := s.currentTrap
	if trap&0x0800 != 0 && trap&autoPop != 0 {
		trap &^= autoPop
	} else {
		s.push32(ret)
	}
	s.setReg(cpu.SR, uint32(sr))
	target := s.Traps.Address(trap)
	s.setReg(cpu.PC, target)
	return target
}

// breakpoint reports a hit and returns where execution continues: pc itself
// for a registered breakpoint, whose original word is replayed, or the next
// word for a stray breakpoint opcode.
func (s *Session) breakpoint(pc memory.GuestPtr) (uint32, error) {
	bp := s.Breakpoints.Hit(pc)
	if bp == nil {
		s.setReg(cpu.PC, pc+2)
		return pc + 2, nil
	}
	if log.TraceEnabled(log.BreakpointModule) {
		log.Trace(log.BreakpointModule, "registers", "dump", cpu.Dump(s.CPU))
	}
	if s.opts.OnBreak != nil {
		if err := s.opts.OnBreak(s, bp, ""); err != nil {
			return pc, err
		}
	}
	return pc, nil
}

// unimplemented is the native behind every empty trap slot.
func (s *Session) unimplemented(trap uint16) error {
	log.Error(log.TrapModule, fmt.Sprintf("unimplemented trap 0x%04X: _%s", trap, traps.Name(trap)), "at", s.FormatAddr(s.returnAddress()))
	return nil
}

// returnAddress is the guest address the current trap returns to.
func (s *Session) returnAddress() uint32 {
	if s.CPU == nil {
		return 0
	}
	return s.Mem.Read32(s.reg(cpu.SP))
}
