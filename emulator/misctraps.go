package emulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/fileio"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/macpath"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/traps"
)

// OSDispatch selectors of the temporary memory routines.
const (
	selTempNewHandle     = 0x1D
	selTempHLock         = 0x1E
	selTempHUnlock       = 0x1F
	selTempDisposeHandle = 0x20
)

func (s *Session) now() time.Time {
	if s.Globals.Clock != nil {
		return s.Globals.Clock()
	}
	return time.Now()
}

// trapSlot resolves the trap number given to Get/SetTrapAddress. The
// Get/SetToolTrapAddress and Get/SetOSTrapAddress variants say which table
// half they mean; the plain calls pass a full trap word.
func trapSlot(call, number uint16) uint16 {
	switch {
	case call&0x0200 == 0:
		return traps.Slot(number)
	case call&0x0400 != 0:
		return number&0x03FF | 0x0800
	default:
		return number & 0x00FF
	}
}

func (s *Session) getTrapAddress(trap uint16) error {
	slot := trapSlot(trap, uint16(s.reg(cpu.D0)))
	p := s.Traps.Address(slot)
	log.Debug(log.TrapModule, "GetTrapAddress", "slot", fmt.Sprintf("0x%03X", slot), "name", traps.Name(slot|0xA000), "addr", fmt.Sprintf("0x%08X", p))
	s.setReg(cpu.A0, p)
	s.setReg(cpu.D0, 0)
	return nil
}

func (s *Session) setTrapAddress(trap uint16) error {
	s.Traps.SetAddress(trapSlot(trap, uint16(s.reg(cpu.D0))), s.reg(cpu.A0))
	s.setReg(cpu.D0, 0)
	return nil
}

// osDispatch serves the temporary memory selectors from the application
// heap.
func (s *Session) osDispatch(uint16) error {
	ret := s.pop32()
	selector := s.pop16()
	switch selector {
	case selTempNewHandle:
		resultCode := s.pop32()
		size := s.pop32()
		h, err := s.Mem.NewHandle(size)
		if err != nil {
			log.Warn(log.MemoryModule, "TempNewHandle failed", "size", size, "err", err)
		}
		if resultCode != 0 {
			s.Mem.Write16(resultCode, memErr(err).Word())
		}
		s.Mem.Write32(s.reg(cpu.SP), h)
		if errors.Is(err, moserrors.ErrOutOfMemory) {
			s.push32(ret)
			return fmt.Errorf("TempNewHandle: %w", err)
		}
	case selTempHLock, selTempHUnlock:
		resultCode := s.pop32()
		s.pop32()
		if resultCode != 0 {
			s.Mem.Write16(resultCode, 0)
		}
	case selTempDisposeHandle:
		resultCode := s.pop32()
		err := s.Mem.DisposeHandle(s.pop32())
		if resultCode != 0 {
			s.Mem.Write16(resultCode, memErr(err).Word())
		}
	default:
		log.Error(log.TrapModule, "unsupported OSDispatch selector", "selector", fmt.Sprintf("0x%04X", selector), "at", s.FormatAddr(ret))
	}
	s.push32(ret)
	return nil
}

// secondsToDate fills the DateTimeRec at A0 from the seconds in D0.
func (s *Session) secondsToDate(uint16) error {
	secs := s.reg(cpu.D0)
	rec := s.reg(cpu.A0)
	t := time.Unix(int64(secs)-fileio.MacEpochOffset, 0).UTC()
	for i, v := range []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), int(t.Weekday()) + 1} {
		s.Mem.Write16(rec+uint32(2*i), uint16(v))
	}
	return nil
}

func (s *Session) readDateTime(uint16) error {
	s.Mem.Write32(s.reg(cpu.A0), fileio.MacTime(s.now()))
	s.setReg(cpu.D0, 0)
	return nil
}

func (s *Session) tickCount(uint16) error {
	ret := s.pop32()
	s.Mem.Write32(s.reg(cpu.SP), s.Globals.Ticks())
	s.push32(ret)
	return nil
}

// readXPRam reads parameter RAM as zeros. D0 carries the count in its high
// word and the start address in its low word.
func (s *Session) readXPRam(uint16) error {
	buf := s.reg(cpu.A0)
	if n := s.reg(cpu.D0) >> 16; buf != 0 && n > 0 {
		s.Mem.WriteBytes(buf, make([]byte, n))
	}
	s.setReg(cpu.D0, 0)
	return nil
}

func (s *Session) exitToShell(uint16) error {
	s.exit("ExitToShell")
	return nil
}

func (s *Session) sysBeep(uint16) error {
	ret := s.pop32()
	s.pop16()
	s.push32(ret)
	return nil
}

func (s *Session) debugger(uint16) error {
	return s.breakInto("Debugger")
}

func (s *Session) debugStr(uint16) error {
	ret := s.pop32()
	msg := macpath.DecodeText(s.Mem.PString(s.pop32()))
	s.push32(ret)
	return s.breakInto(string(msg))
}

func (s *Session) breakInto(msg string) error {
	log.Info(log.ConsoleModule, "guest break", "msg", msg, "at", s.FormatAddr(s.returnAddress()))
	if s.opts.OnBreak == nil {
		return nil
	}
	return s.opts.OnBreak(s, nil, msg)
}
