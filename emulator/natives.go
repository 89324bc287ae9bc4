package emulator

import (
	"github.com/colorfulnotion/mosrun/mpw"
	"github.com/colorfulnotion/mosrun/traps"
)

type native struct {
	trap uint16
	fn   traps.Native
}

// installNatives fills the trap table. Register based OS traps take their
// arguments in A0/D0 and return an OSErr in D0; stack based toolbox traps
// follow the Pascal convention.
func (s *Session) installNatives() error {
	natives := []native{
		// memory manager
		{0xA01C, s.freeMem},
		{0xA11D, s.maxMem},
		{0xA11E, s.newPtr},
		{0xA31E, s.newPtr},
		{0xA01F, s.disposePtr},
		{0xA021, s.getPtrSize},
		{0xA122, s.newHandle},
		{0xA023, s.disposeHandle},
		{0xA024, s.setHandleSize},
		{0xA025, s.getHandleSize},
		{0xA128, s.recoverHandle},
		{0xA029, s.hLock},
		{0xA02A, s.hUnlock},
		{0xA049, s.hPurge},
		{0xA04A, s.hNoPurge},
		{0xA069, s.hGetState},
		{0xA02E, s.blockMove},
		{0xA064, s.noop},
		{0xA055, s.noop},

		// file manager
		{0xA000, s.pbOpen},
		{0xA001, s.pbClose},
		{0xA002, s.pbRead},
		{0xA003, s.pbWrite},
		{0xA008, s.pbCreate},
		{0xA009, s.pbDelete},
		{0xA00C, s.pbGetFInfo},
		{0xA00D, s.pbSetFInfo},
		{0xA012, s.pbSetEOF},
		{0xA018, s.pbGetFPos},
		{0xA044, s.pbSetFPos},
		{0xA060, s.fsDispatch},

		// trap table
		{0xA146, s.getTrapAddress},
		{0xA647, s.setTrapAddress},

		// segment and resource manager
		{0xA9F0, s.loadSeg},
		{0xA9F1, s.unloadSeg},
		{0xA9A0, s.getResource},
		{0xA81F, s.getResource},
		{0xA9A1, s.getNamedResource},
		{0xA9A2, s.loadResource},
		{0xA9A3, s.releaseResource},
		{0xA992, s.detachResource},
		{0xA994, s.curResFile},
		{0xA9A4, s.homeResFile},
		{0xA9A5, s.sizeResource},
		{0xA9AF, s.resError},
		{0xA99B, s.setResLoad},
		{0xA80D, s.count1Resources},
		{0xA80E, s.get1IxResource},

		// toolbox utilities and OS
		{0xA88F, s.osDispatch},
		{0xA9C6, s.secondsToDate},
		{0xA039, s.readDateTime},
		{0xA975, s.tickCount},
		{0xA051, s.readXPRam},
		{0xA9F4, s.exitToShell},
		{0xA9C8, s.sysBeep},
		{0xA9FF, s.debugger},
		{0xABFF, s.debugStr},
	}
	for _, n := range natives {
		if _, err := s.Traps.InstallGlue(n.trap, traps.Name(n.trap), n.fn); err != nil {
			return err
		}
	}
	// the async, HFS, Clear and Sys modifier bits of OS traps share the
	// base trap's slot; Get1NamedResource needs its own
	s.Traps.Alias(0xA820, 0xA9A1)
	return nil
}

// installDeviceGlue registers the five MPW device routines the guest runtime
// calls through the ioGlue table. They are not reachable through a trap.
func (s *Session) installDeviceGlue() (mpw.IOGlue, error) {
	var g mpw.IOGlue
	for _, d := range []struct {
		name string
		fn   traps.Native
		dst  *uint32
	}{
		{"SyFAccess", s.syFAccess, &g.FAccess},
		{"SyClose", s.syClose, &g.Close},
		{"SyRead", s.syRead, &g.Read},
		{"SyWrite", s.syWrite, &g.Write},
		{"SyIoctl", s.syIoctl, &g.Ioctl},
	} {
		p, err := s.Traps.InstallGlue(0, d.name, d.fn)
		if err != nil {
			return g, err
		}
		*d.dst = p
	}
	return g, nil
}

func (s *Session) noop(uint16) error { return nil }
