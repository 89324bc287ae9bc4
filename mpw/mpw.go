// Package mpw builds the structures an MPW tool expects to find when it
// starts: its stack, the I/O function table, the standard file records,
// argv and envp, and the 'MPGM' block published through low memory.
package mpw

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/fileio"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/lowmem"
	"github.com/colorfulnotion/mosrun/macpath"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/traps"
)

const (
	StackSize = 0x8000

	// MPW block layout
	BlockSize      = 0x28
	BlockMagic     = 0x5348
	offArgc        = 0x02
	offArgv        = 0x06
	offEnvp        = 0x0A
	OffStatus      = 0x0E
	offTableSize   = 0x1A
	offFDEntries   = 0x1C
	offIOTable     = 0x20
	FileTableSize  = 400
	ioEntrySize    = 0x18
	fdEntrySize    = 0x14
	fdEntryCount   = 3
	ioTableEntries = 5
)

var (
	DeviceFSYS = common.MakeFourCC("FSYS")
	DeviceCONS = common.MakeFourCC("CONS")
	DeviceSYST = common.MakeFourCC("SYST")
	SigMPGM    = common.MakeFourCC("MPGM")
)

// fd entry direction words
const (
	fdInput  = 1
	fdOutput = 2
)

// IOGlue holds the glue addresses of the five device routines.
type IOGlue struct {
	FAccess, Close, Read, Write, Ioctl memory.GuestPtr
}

// Launch describes the tool invocation.
type Launch struct {
	Tool string   // host path of the tool
	Args []string // arguments after the tool name
	Env  []string // NAME=value pairs
}

// World records where the runtime structures were placed.
type World struct {
	StackBase    memory.GuestPtr
	InitialSP    memory.GuestPtr
	DispatchWord memory.GuestPtr
	ExitWord     memory.GuestPtr
	IOTable      memory.GuestPtr
	FDEntries    memory.GuestPtr
	Argv         memory.GuestPtr
	Envp         memory.GuestPtr
	Block        memory.GuestPtr
	Handle       memory.GuestPtr
	Argc         uint32
}

// ToolArgs returns the guest argument vector: the tool's leaf name, then
// file arguments converted to Mac paths and options copied verbatim.
func ToolArgs(tool string, args []string) []string {
	out := []string{macpath.ToMac(macpath.NameUnix(tool))}
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			out = append(out, arg)
			continue
		}
		mac := macpath.ToMac(arg)
		log.Debug(log.MPWModule, "converted argument", "from", arg, "to", mac)
		out = append(out, mac)
	}
	return out
}

type builder struct {
	mem *memory.Arena
	err error
}

func (b *builder) alloc(size uint32) memory.GuestPtr {
	if b.err != nil {
		return 0
	}
	p, err := b.mem.Alloc(size)
	if err != nil {
		b.err = err
	}
	return p
}

func (b *builder) str(s []byte) memory.GuestPtr {
	p := b.alloc(uint32(len(s)) + 1)
	if b.err == nil {
		b.mem.WriteCString(p, s)
	}
	return p
}

// Setup allocates the runtime structures and publishes them in g.
func Setup(mem *memory.Arena, g *lowmem.Globals, glue IOGlue, l Launch) (*World, error) {
	b := &builder{mem: mem}
	w := &World{}

	stack := b.alloc(StackSize)
	w.DispatchWord = b.alloc(2)
	w.ExitWord = b.alloc(2)
	if b.err != nil {
		return nil, fmt.Errorf("stack: %w", b.err)
	}
	w.StackBase = stack + StackSize
	w.InitialSP = w.StackBase - 4
	mem.Write16(w.DispatchWord, traps.OpDispatch)
	mem.Write16(w.ExitWord, traps.OpExit)
	// returning from the tool's entry point lands on the exit word
	mem.Write32(w.InitialSP, w.ExitWord)

	w.IOTable = b.alloc(ioEntrySize * ioTableEntries)
	w.FDEntries = b.alloc(fdEntrySize * fdEntryCount)
	if b.err != nil {
		return nil, fmt.Errorf("io tables: %w", b.err)
	}
	for i, dev := range []common.FourCC{DeviceFSYS, DeviceCONS, DeviceSYST} {
		e := w.IOTable + uint32(i)*ioEntrySize
		mem.Write32(e, uint32(dev))
		mem.Write32(e+0x04, glue.FAccess)
		mem.Write32(e+0x08, glue.Close)
		mem.Write32(e+0x0C, glue.Read)
		mem.Write32(e+0x10, glue.Write)
		mem.Write32(e+0x14, glue.Ioctl)
	}
	for i, dir := range []uint16{fdInput, fdOutput, fdOutput} {
		e := w.FDEntries + uint32(i)*fdEntrySize
		mem.Write16(e, dir)
		mem.Write16(e+0x02, 0)
		mem.Write32(e+0x04, w.IOTable)
		mem.Write32(e+0x08, uint32(fileio.Stdin+i))
		mem.Write32(e+0x0C, 0)
		mem.Write32(e+0x10, 0)
	}

	args := ToolArgs(l.Tool, l.Args)
	w.Argc = uint32(len(args))
	w.Argv = b.alloc(uint32(len(args)+1) * 4)
	for i, arg := range args {
		p := b.str([]byte(arg))
		if b.err == nil {
			mem.Write32(w.Argv+uint32(i)*4, p)
		}
	}
	w.Envp = b.alloc(uint32(len(l.Env)+1) * 4)
	for i, kv := range l.Env {
		name, value, _ := strings.Cut(kv, "=")
		p := b.str(append(append([]byte(name), 0), macpath.EncodeText([]byte(value))...))
		if b.err == nil {
			mem.Write32(w.Envp+uint32(i)*4, p)
		}
	}
	if b.err != nil {
		return nil, fmt.Errorf("arguments: %w", b.err)
	}

	w.Block = b.alloc(BlockSize)
	w.Handle = b.alloc(8)
	if b.err != nil {
		return nil, fmt.Errorf("MPW block: %w", b.err)
	}
	mem.Write16(w.Block, BlockMagic)
	mem.Write32(w.Block+offArgc, w.Argc)
	mem.Write32(w.Block+offArgv, w.Argv)
	mem.Write32(w.Block+offEnvp, w.Envp)
	mem.Write32(w.Block+OffStatus, 0)
	mem.Write16(w.Block+offTableSize, FileTableSize)
	mem.Write32(w.Block+offFDEntries, w.FDEntries)
	mem.Write32(w.Block+offIOTable, w.IOTable)
	mem.Write32(w.Handle, uint32(SigMPGM))
	mem.Write32(w.Handle+4, w.Block)

	g.DispatchWord = w.DispatchWord
	g.CurStackBase = w.StackBase
	g.MPWHandle = w.Handle
	log.Debug(log.MPWModule, "runtime ready", "argc", w.Argc, "stack", fmt.Sprintf("0x%08X", w.StackBase), "mpgm", fmt.Sprintf("0x%08X", w.Handle))
	return w, nil
}

// Status reads the tool's exit status the way the exit trap does, through
// the master pointer published at 0x316.
func Status(mem *memory.Arena, g *lowmem.Globals) uint32 {
	if g.MPWHandle == 0 {
		return 0
	}
	return mem.Read32(mem.Read32(g.MPWHandle+4) + OffStatus)
}

// Environ filters host environment entries to those the guest may see.
func Environ(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if name, _, ok := strings.Cut(kv, "="); ok && name != "" {
			out = append(out, kv)
		}
	}
	return out
}
