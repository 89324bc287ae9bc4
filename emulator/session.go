// Package emulator ties the runtime together: one Session owns the guest
// arena, the low-memory cells, the trap table, the breakpoints, the host file
// table and the loaded tool, and serves the CPU core's instruction hook.
package emulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/colorfulnotion/mosrun/breakpoints"
	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/fileio"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/lowmem"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/mpw"
	"github.com/colorfulnotion/mosrun/rsrc"
	"github.com/colorfulnotion/mosrun/traps"
)

// BreakHandler is called when the guest reaches a breakpoint or a Debugger
// trap. bp is nil for the traps. A non-nil error stops the session.
type BreakHandler func(s *Session, bp *breakpoints.Breakpoint, msg string) error

type Options struct {
	HeapSize    uint32
	CheckBounds bool
	// CheckHeap runs the heap coherence check after every allocator call
	// and makes bad frees fatal.
	CheckHeap   bool
	Streams     fileio.Streams
	Breakpoints []string
	OnBreak     BreakHandler
	Clock       func() time.Time
}

// Session is the state of one tool run.
type Session struct {
	Mem         *memory.Arena
	Globals     *lowmem.Globals
	Page        *lowmem.Page
	Traps       *traps.Table
	Breakpoints *breakpoints.Manager
	Files       *fileio.Table
	Loader      *rsrc.Loader
	A5          rsrc.A5World
	World       *mpw.World
	CPU         cpu.Core

	opts        Options
	currentTrap uint16
	exited      bool
	status      uint32
	fatal       error
	steps       uint64
}

// New builds the arena, the system page and the trap table, and registers
// every native routine.
func New(opts Options) (*Session, error) {
	if opts.HeapSize == 0 {
		opts.HeapSize = memory.DefaultSize
	}
	mem, err := memory.New(opts.HeapSize)
	if err != nil {
		return nil, fmt.Errorf("guest memory: %w", err)
	}
	mem.SetCheckBounds(opts.CheckBounds)
	mem.SetStrict(opts.CheckHeap)

	g := lowmem.NewGlobals()
	if opts.Clock != nil {
		g.Clock = opts.Clock
	}
	page := lowmem.NewPage(g)
	mem.AttachSystemPage(page)

	s := &Session{
		Mem:         mem,
		Globals:     g,
		Page:        page,
		Breakpoints: breakpoints.New(mem),
		Files:       fileio.NewTable(mem, opts.Streams),
		opts:        opts,
	}
	for _, spec := range opts.Breakpoints {
		seg, off, label, err := breakpoints.ParseSpec(spec)
		if err != nil {
			mem.Close()
			return nil, err
		}
		s.Breakpoints.Add(seg, off, label)
	}
	if s.Traps, err = traps.New(mem, s.unimplemented); err != nil {
		mem.Close()
		return nil, err
	}
	if err := s.installNatives(); err != nil {
		mem.Close()
		return nil, err
	}
	log.Debug(log.TrapModule, "natives registered", "count", s.Traps.NativeCount())
	return s, nil
}

// Load parses the tool's resource fork, loads CODE 0 and builds the A5
// world. Breakpoints are installed as their segments load.
func (s *Session) Load(fork *rsrc.Fork) error {
	m, err := rsrc.ParseMap(fork.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", fork.Origin, err)
	}
	s.Loader = rsrc.NewLoader(s.Mem, m, s.Globals)
	s.Loader.OnSegmentLoaded(func(seg rsrc.Segment) {
		if n := s.Breakpoints.Install(seg.ID, seg.Start); n > 0 {
			log.Debug(log.BreakpointModule, "segment breakpoints installed", "segment", seg.ID, "count", n)
		}
	})
	code0, err := s.Loader.GetResource(rsrc.TypeCODE, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", fork.Origin, err)
	}
	if s.A5, err = s.Loader.BuildA5World(code0); err != nil {
		return fmt.Errorf("%s: %w", fork.Origin, err)
	}
	log.Debug(log.ResourceModule, "tool loaded", "origin", fork.Origin, "entry", fmt.Sprintf("0x%08X", s.A5.EntryPoint()))
	return nil
}

// Launch sets up the MPW runtime for l and points core at the tool's entry
// point. Load must have succeeded first.
func (s *Session) Launch(core cpu.Core, l mpw.Launch) error {
	if s.Loader == nil {
		return fmt.Errorf("launch %s: %w", l.Tool, moserrors.ErrNoApplication)
	}
	glue, err := s.installDeviceGlue()
	if err != nil {
		return err
	}
	if s.World, err = mpw.Setup(s.Mem, s.Globals, glue, l); err != nil {
		return err
	}
	s.CPU = core
	core.SetReg(cpu.PC, s.A5.EntryPoint())
	core.SetReg(cpu.SP, s.World.InitialSP)
	core.SetReg(cpu.A5, s.A5.A5)
	return nil
}

// Exited reports whether the tool reached the exit word or ExitToShell.
func (s *Session) Exited() bool { return s.exited }

// Status is the MPW exit status recorded at exit.
func (s *Session) Status() uint32 { return s.status }

// Err is the fatal error that stopped the session, if any.
func (s *Session) Err() error { return s.fatal }

// CurrentTrap is the last A-line word the hook turned into an exception.
func (s *Session) CurrentTrap() uint16 { return s.currentTrap }

// Steps counts hook invocations.
func (s *Session) Steps() uint64 { return s.steps }

func (s *Session) exit(why string) {
	if s.exited {
		return
	}
	s.exited = true
	s.status = mpw.Status(s.Mem, s.Globals)
	log.Debug(log.MPWModule, "tool exited", "via", why, "status", s.status)
	if s.CPU != nil {
		s.CPU.Stop(nil)
	}
}

// fail records a fatal error and stops the core. The first error wins.
func (s *Session) fail(err error) error {
	if s.fatal == nil {
		s.fatal = err
		log.Error(log.TrapModule, "fatal", "trap", traps.Name(s.currentTrap), "pc", s.FormatAddr(s.reg(cpu.PC)), "err", err)
	}
	if s.CPU != nil {
		s.CPU.Stop(s.fatal)
	}
	return s.fatal
}

// Close releases open host files and the arena.
func (s *Session) Close() error {
	s.Files.CloseAll()
	var errs []error
	if s.CPU != nil {
		errs = append(errs, s.CPU.Close())
	}
	errs = append(errs, s.Mem.Close())
	return errors.Join(errs...)
}

func (s *Session) reg(r cpu.Reg) uint32 {
	if s.CPU == nil {
		return 0
	}
	return s.CPU.Reg(r)
}

func (s *Session) setReg(r cpu.Reg, v uint32) { s.CPU.SetReg(r, v) }

func (s *Session) push32(v uint32) { cpu.Push32(s.CPU, s.Mem, v) }
func (s *Session) push16(v uint16) { cpu.Push16(s.CPU, s.Mem, v) }
func (s *Session) pop32() uint32   { return cpu.Pop32(s.CPU, s.Mem) }
func (s *Session) pop16() uint16   { return cpu.Pop16(s.CPU, s.Mem) }

// FormatAddr renders addr as segment.offset when it lies in loaded code.
func (s *Session) FormatAddr(addr memory.GuestPtr) string {
	if s.Loader == nil {
		return fmt.Sprintf("%08X", addr)
	}
	return s.Loader.FormatAddr(addr)
}
