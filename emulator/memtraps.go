package emulator

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// memErr maps an allocator error to the result code the guest sees.
func memErr(err error) moserrors.OSErr {
	switch {
	case err == nil:
		return moserrors.NoErr
	case errors.Is(err, moserrors.ErrOutOfMemory):
		return moserrors.MemFullErr
	case errors.Is(err, moserrors.ErrNilHandle):
		return moserrors.NilHandleErr
	}
	return moserrors.MemWZErr
}

// memResult publishes the outcome of a memory trap in MemErr and D0.
// Exhausting the heap and a failed heap check are fatal; so is any bad
// pointer when heap checks are on.
func (s *Session) memResult(op string, err error) error {
	e := memErr(err)
	s.Globals.MemErr = int16(e)
	s.setReg(cpu.D0, e.Reg())
	if err == nil {
		return nil
	}
	log.Warn(log.MemoryModule, op+" failed", "result", e.String(), "err", err)
	switch {
	case errors.Is(err, moserrors.ErrOutOfMemory), errors.Is(err, moserrors.ErrIncoherentHeap):
		return err
	case s.opts.CheckHeap && e == moserrors.MemWZErr:
		return err
	}
	return nil
}

func (s *Session) freeMem(uint16) error {
	s.Globals.MemErr = 0
	s.setReg(cpu.D0, s.Mem.FreeBytes())
	return nil
}

func (s *Session) maxMem(uint16) error {
	s.Globals.MemErr = 0
	s.setReg(cpu.D0, s.Mem.LargestFree())
	s.setReg(cpu.A0, 0)
	return nil
}

func (s *Session) newPtr(uint16) error {
	size := s.reg(cpu.D0)
	p, err := s.Mem.Alloc(size)
	s.setReg(cpu.A0, p)
	log.Trace(log.MemoryModule, "NewPtr", "size", size, "ptr", fmt.Sprintf("0x%08X", p))
	return s.memResult("NewPtr", err)
}

func (s *Session) disposePtr(uint16) error {
	p := s.reg(cpu.A0)
	if p == 0 {
		return s.memResult("DisposePtr", nil)
	}
	return s.memResult("DisposePtr", s.Mem.Free(p))
}

func (s *Session) getPtrSize(uint16) error {
	size, err := s.Mem.Size(s.reg(cpu.A0))
	if err := s.memResult("GetPtrSize", err); err != nil {
		return err
	}
	if err == nil {
		s.setReg(cpu.D0, size)
	}
	return nil
}

func (s *Session) newHandle(uint16) error {
	size := s.reg(cpu.D0)
	h, err := s.Mem.NewHandle(size)
	s.setReg(cpu.A0, h)
	log.Trace(log.MemoryModule, "NewHandle", "size", size, "handle", fmt.Sprintf("0x%08X", h))
	return s.memResult("NewHandle", err)
}

func (s *Session) disposeHandle(uint16) error {
	return s.memResult("DisposeHandle", s.Mem.DisposeHandle(s.reg(cpu.A0)))
}

func (s *Session) setHandleSize(uint16) error {
	return s.memResult("SetHandleSize", s.Mem.SetHandleSize(s.reg(cpu.A0), s.reg(cpu.D0)))
}

func (s *Session) handleSize(h memory.GuestPtr) (uint32, error) {
	p, err := s.Mem.Deref(h)
	if err != nil || p == 0 {
		return 0, err
	}
	return s.Mem.Size(p)
}

func (s *Session) getHandleSize(uint16) error {
	size, err := s.handleSize(s.reg(cpu.A0))
	if err := s.memResult("GetHandleSize", err); err != nil {
		return err
	}
	if err == nil {
		s.setReg(cpu.D0, size)
	}
	return nil
}

// recoverHandle leaves D0 alone; only MemErr reports the outcome.
func (s *Session) recoverHandle(uint16) error {
	h := s.Mem.RecoverHandle(s.reg(cpu.A0))
	s.setReg(cpu.A0, h)
	if h == 0 {
		s.Globals.MemErr = int16(moserrors.MemWZErr)
	} else {
		s.Globals.MemErr = 0
	}
	return nil
}

// changeState sets and clears HGetState bits of the handle in A0.
func (s *Session) changeState(op string, set, clear uint8) error {
	h := s.reg(cpu.A0)
	state, err := s.Mem.HandleState(h)
	if err == nil {
		err = s.Mem.SetHandleState(h, state&^clear|set)
	}
	return s.memResult(op, err)
}

func (s *Session) hLock(uint16) error   { return s.changeState("HLock", memory.StateLocked, 0) }
func (s *Session) hUnlock(uint16) error { return s.changeState("HUnlock", 0, memory.StateLocked) }
func (s *Session) hPurge(uint16) error  { return s.changeState("HPurge", memory.StatePurgeable, 0) }
func (s *Session) hNoPurge(uint16) error {
	return s.changeState("HNoPurge", 0, memory.StatePurgeable)
}

func (s *Session) hGetState(uint16) error {
	state, err := s.Mem.HandleState(s.reg(cpu.A0))
	if err := s.memResult("HGetState", err); err != nil {
		return err
	}
	if err == nil {
		s.setReg(cpu.D0, uint32(state))
	}
	return nil
}

func (s *Session) blockMove(uint16) error {
	src, dst, n := s.reg(cpu.A0), s.reg(cpu.A1), s.reg(cpu.D0)
	log.Trace(log.MemoryModule, "BlockMove", "src", fmt.Sprintf("0x%08X", src), "dst", fmt.Sprintf("0x%08X", dst), "size", n)
	s.Mem.Memcpy(dst, src, n)
	// guests copy code with BlockMove too
	if n > 0 && uint64(dst)+uint64(n) <= uint64(s.Mem.Len()) {
		s.Mem.Invalidate(dst, n)
	}
	return s.memResult("BlockMove", nil)
}
