package emulator

import (
	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// pbCall runs a parameter block routine on the block in A0 and returns its
// result in D0 as well.
func (s *Session) pbCall(fn func(pb memory.GuestPtr) moserrors.OSErr) error {
	s.setReg(cpu.D0, fn(s.reg(cpu.A0)).Reg())
	return nil
}

func (s *Session) pbOpen(uint16) error     { return s.pbCall(s.Files.PBHOpen) }
func (s *Session) pbClose(uint16) error    { return s.pbCall(s.Files.PBClose) }
func (s *Session) pbRead(uint16) error     { return s.pbCall(s.Files.PBRead) }
func (s *Session) pbWrite(uint16) error    { return s.pbCall(s.Files.PBWrite) }
func (s *Session) pbCreate(uint16) error   { return s.pbCall(s.Files.PBCreate) }
func (s *Session) pbDelete(uint16) error   { return s.pbCall(s.Files.PBDelete) }
func (s *Session) pbGetFInfo(uint16) error { return s.pbCall(s.Files.PBGetFInfo) }
func (s *Session) pbSetFInfo(uint16) error { return s.pbCall(s.Files.PBSetFInfo) }
func (s *Session) pbSetEOF(uint16) error   { return s.pbCall(s.Files.PBSetEOF) }
func (s *Session) pbGetFPos(uint16) error  { return s.pbCall(s.Files.PBGetFPos) }
func (s *Session) pbSetFPos(uint16) error  { return s.pbCall(s.Files.PBSetFPos) }

// fsDispatch takes its selector in the low word of D0.
func (s *Session) fsDispatch(uint16) error {
	selector := uint16(s.reg(cpu.D0))
	return s.pbCall(func(pb memory.GuestPtr) moserrors.OSErr {
		return s.Files.FSDispatch(pb, selector)
	})
}

// The device routines are called from C with the arguments above the
// return address and return their result in D0.

func (s *Session) arg(n uint32) uint32 {
	return s.Mem.Read32(s.reg(cpu.SP) + 4 + 4*n)
}

func (s *Session) syFAccess(uint16) error {
	s.setReg(cpu.D0, s.Files.SyFAccess(s.arg(0), s.arg(1), s.arg(2)))
	return nil
}

func (s *Session) syClose(uint16) error {
	s.setReg(cpu.D0, s.Files.SyClose(s.arg(0)))
	return nil
}

func (s *Session) syRead(uint16) error {
	s.setReg(cpu.D0, s.Files.SyRead(s.arg(0)))
	return nil
}

func (s *Session) syWrite(uint16) error {
	s.setReg(cpu.D0, s.Files.SyWrite(s.arg(0)))
	return nil
}

func (s *Session) syIoctl(uint16) error {
	s.setReg(cpu.D0, s.Files.SyIoctl(s.arg(0), s.arg(1), s.arg(2)))
	return nil
}
