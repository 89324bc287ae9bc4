package emulator

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/mpw"
	"github.com/colorfulnotion/mosrun/rsrc"
)

// Exit codes of a run that did not reach the tool's own exit.
const (
	ExitFatal       = 1
	ExitLoadFailed  = 9
	ExitInterrupted = 130
)

// CoreFactory creates the CPU core for a session.
type CoreFactory func(mem *memory.Arena, page memory.SystemPage, hook cpu.Hook) (cpu.Core, error)

// UnicornCore is the default factory.
func UnicornCore(mem *memory.Arena, page memory.SystemPage, hook cpu.Hook) (cpu.Core, error) {
	return cpu.NewUnicorn(mem, page, hook)
}

// RunConfig describes one tool invocation.
type RunConfig struct {
	Options

	Tool       string
	Args       []string
	Env        []string
	SearchPath []string
	// Embedded is used when no fork is found for Tool.
	Embedded []byte
}

// Run loads and runs a tool to completion and returns the process exit
// code: the MPW status when the tool exited, ExitLoadFailed when it could
// not be loaded, ExitInterrupted when ctx was cancelled, ExitFatal otherwise.
func Run(ctx context.Context, cfg RunConfig, newCore CoreFactory) (int, error) {
	if newCore == nil {
		newCore = UnicornCore
	}
	path := rsrc.ToolPath(cfg.Tool, cfg.SearchPath...)
	fork, err := rsrc.ReadFork(path, cfg.Embedded)
	if err != nil {
		return ExitLoadFailed, err
	}
	log.Debug(log.ResourceModule, "resource fork", "origin", fork.Origin, "size", len(fork.Data))

	s, err := New(cfg.Options)
	if err != nil {
		return ExitFatal, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn(log.MPWModule, "close session", "err", err)
		}
	}()
	if err := s.Load(fork); err != nil {
		return ExitLoadFailed, err
	}

	core, err := newCore(s.Mem, s.Page, s.Step)
	if err != nil {
		return ExitFatal, err
	}
	launch := mpw.Launch{Tool: path, Args: cfg.Args, Env: cfg.Env}
	if err := s.Launch(core, launch); err != nil {
		core.Close()
		return ExitFatal, err
	}
	return s.Run(ctx)
}

// Run executes the launched tool until it exits.
func (s *Session) Run(ctx context.Context) (int, error) {
	err := s.CPU.Run(ctx)
	switch {
	case s.exited:
		return int(int32(s.status)), nil
	case errors.Is(err, moserrors.ErrCPUStopped):
		log.Warn(log.CPUModule, "interrupted", "at", s.FormatAddr(s.reg(cpu.PC)))
		return ExitInterrupted, err
	case err != nil:
		s.TraceRegisters()
		return ExitFatal, err
	case s.fatal != nil:
		return ExitFatal, s.fatal
	}
	return ExitFatal, fmt.Errorf("core stopped at %s without an exit", s.FormatAddr(s.reg(cpu.PC)))
}
