package emulator

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/rsrc"
)

// Toolbox traps below follow the Pascal convention: the caller reserves the
// function result, pushes the arguments left to right and the dispatcher
// leaves the return address on top.

// resourceResult stores a lookup result into the reserved slot. A miss is
// reported through ResErr and a nil handle; anything else stops the tool.
func (s *Session) resourceResult(op string, h memory.GuestPtr, err error) error {
	if err != nil && !errors.Is(err, moserrors.ErrResourceNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err != nil {
		log.Debug(log.ResourceModule, op+" missed", "err", err)
	}
	s.Mem.Write32(s.reg(cpu.SP), h)
	s.setReg(cpu.D0, 0)
	return nil
}

func (s *Session) getResource(uint16) error {
	ret := s.pop32()
	id := s.pop16()
	kind := common.FourCC(s.pop32())
	h, err := s.Loader.GetResource(kind, id)
	log.Trace(log.ResourceModule, "GetResource", "type", kind.String(), "id", int16(id), "handle", fmt.Sprintf("0x%08X", h))
	if err := s.resourceResult("GetResource", h, err); err != nil {
		return err
	}
	s.push32(ret)
	return nil
}

func (s *Session) getNamedResource(uint16) error {
	ret := s.pop32()
	name := s.Mem.PString(s.pop32())
	kind := common.FourCC(s.pop32())
	h, err := s.Loader.GetNamedResource(kind, name)
	log.Trace(log.ResourceModule, "GetNamedResource", "type", kind.String(), "name", string(name), "handle", fmt.Sprintf("0x%08X", h))
	if err := s.resourceResult("GetNamedResource", h, err); err != nil {
		return err
	}
	s.push32(ret)
	return nil
}

func (s *Session) get1IxResource(uint16) error {
	ret := s.pop32()
	index := int16(s.pop16())
	kind := common.FourCC(s.pop32())
	h, err := s.Loader.GetIndResource(kind, int(index))
	if err := s.resourceResult("Get1IxResource", h, err); err != nil {
		return err
	}
	s.push32(ret)
	return nil
}

func (s *Session) count1Resources(uint16) error {
	ret := s.pop32()
	kind := common.FourCC(s.pop32())
	s.Mem.Write16(s.reg(cpu.SP), uint16(s.Loader.Count(kind)))
	s.push32(ret)
	return nil
}

// loadResource has nothing to do: every resource is loaded on lookup.
func (s *Session) loadResource(uint16) error {
	ret := s.pop32()
	s.pop32()
	s.Globals.ResErr = 0
	s.push32(ret)
	return nil
}

func (s *Session) releaseResource(uint16) error {
	ret := s.pop32()
	h := s.pop32()
	log.Trace(log.ResourceModule, "ReleaseResource", "handle", fmt.Sprintf("0x%08X", h))
	s.Globals.ResErr = 0
	s.push32(ret)
	return nil
}

func (s *Session) detachResource(uint16) error {
	ret := s.pop32()
	s.Loader.Detach(s.pop32())
	s.push32(ret)
	return nil
}

func (s *Session) sizeResource(uint16) error {
	ret := s.pop32()
	h := s.pop32()
	size, err := s.Loader.Size(h)
	if err != nil {
		log.Debug(log.ResourceModule, "SizeRsrc", "handle", fmt.Sprintf("0x%08X", h), "err", err)
		size = 0xFFFFFFFF
	}
	s.Mem.Write32(s.reg(cpu.SP), size)
	s.push32(ret)
	return nil
}

// curResFile answers with the tool's own fork.
func (s *Session) curResFile(uint16) error {
	ret := s.pop32()
	s.Mem.Write16(s.reg(cpu.SP), 1)
	s.push32(ret)
	return nil
}

func (s *Session) homeResFile(uint16) error {
	ret := s.pop32()
	s.pop32()
	s.Mem.Write16(s.reg(cpu.SP), 0)
	s.push32(ret)
	return nil
}

func (s *Session) resError(uint16) error {
	ret := s.pop32()
	s.Mem.Write16(s.reg(cpu.SP), uint16(s.Globals.ResErr))
	s.push32(ret)
	return nil
}

// setResLoad takes a Pascal BOOLEAN, a word with the value in its high byte.
func (s *Session) setResLoad(uint16) error {
	ret := s.pop32()
	s.Globals.ResLoad = s.pop16() >> 8
	s.push32(ret)
	return nil
}

// loadSeg loads a CODE segment on behalf of an unloaded jump table entry
//
//	+0 offset.w  +2 MOVE.W #id,-(SP)  +6 _LoadSeg
//
// and rewrites the entry into
//
//	+0 id.w  +2 JMP target.l
//
// before returning into the patched JMP.
func (s *Session) loadSeg(uint16) error {
	ret := s.pop32()
	id := s.pop16()
	h, err := s.Loader.GetResource(rsrc.TypeCODE, id)
	if err != nil {
		return fmt.Errorf("LoadSeg %d: %w", id, err)
	}
	code, err := s.Mem.Deref(h)
	if err != nil {
		return fmt.Errorf("LoadSeg %d: %w", id, err)
	}
	entry := ret - 8
	offset := uint32(s.Mem.Read16(entry))
	target := code + offset + 4
	s.Mem.Write16(entry, id)
	s.Mem.Patch16(entry+2, 0x4EF9)
	s.Mem.Patch32(entry+4, target)
	log.Debug(log.ResourceModule, "segment loaded", "segment", id, "entry", s.FormatAddr(entry), "target", s.FormatAddr(target))
	s.push32(entry + 2)
	return nil
}

// unloadSeg keeps the segment resident.
func (s *Session) unloadSeg(uint16) error {
	ret := s.pop32()
	s.pop32()
	s.push32(ret)
	return nil
}
