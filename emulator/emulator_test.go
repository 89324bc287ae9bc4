package emulator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/colorfulnotion/mosrun/breakpoints"
	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/fileio"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/mpw"
	"github.com/colorfulnotion/mosrun/rsrc"
	"github.com/colorfulnotion/mosrun/traps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retAddr = 0x00ABCDEF

var (
	typeSTR    = common.MakeFourCC("STR ")
	fixedClock = func() time.Time { return time.Unix(1000, 0) }
)

func words(ws ...uint16) []byte {
	out := make([]byte, 0, 2*len(ws))
	for _, w := range ws {
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}

// toolFork builds a tool with one jump table entry leading to code in
// CODE 1.
func toolFork(code ...uint16) []byte {
	code0 := words(
		0x0000, 0x0040, // above A5
		0x0000, 0x0100, // below A5
		0x0000, 0x0008, // jump table size
		0x0000, 0x0020, // jump table offset
		0x0000, 0x3F3C, 0x0001, 0xA9F0,
	)
	code1 := append(words(0x0000, 0x0001), words(code...)...)
	return rsrc.NewBuilder().
		Add(rsrc.TypeCODE, 0, "", 0, code0).
		Add(rsrc.TypeCODE, 1, "Main", 0, code1).
		Add(typeSTR, 128, "greeting", 0, []byte("\x05hello")).
		Bytes()
}

type fixture struct {
	s      *Session
	core   *fakeCore
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newFixture(t *testing.T, opts Options, code ...uint16) *fixture {
	t.Helper()
	fx := &fixture{}
	opts.HeapSize = 1 << 20
	opts.Clock = fixedClock
	opts.Streams = fileio.Streams{Stdin: strings.NewReader(""), Stdout: &fx.stdout, Stderr: &fx.stderr}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	if len(code) == 0 {
		code = []uint16{0x4E75}
	}
	require.NoError(t, s.Load(&rsrc.Fork{Data: toolFork(code...), Origin: "test"}))
	fx.s = s
	fx.core = newFakeCore(s.Mem, s.Step)
	require.NoError(t, s.Launch(fx.core, mpw.Launch{Tool: "/tools/Test", Env: []string{"A=b"}}))
	return fx
}

func (fx *fixture) alloc(t *testing.T, n uint32) memory.GuestPtr {
	t.Helper()
	p, err := fx.s.Mem.Alloc(n)
	require.NoError(t, err)
	return p
}

// code places guest words in the heap and returns their address.
func (fx *fixture) code(t *testing.T, ws ...uint16) memory.GuestPtr {
	t.Helper()
	p := fx.alloc(t, uint32(2*len(ws)))
	fx.s.Mem.WriteBytes(p, words(ws...))
	return p
}

func (fx *fixture) sp() uint32 { return fx.core.Reg(cpu.SP) }

func TestRunToolThroughJumpTable(t *testing.T) {
	fx := newFixture(t, Options{},
		0x203C, 0x0000, 0x0010, // MOVE.L #16,D0
		0xA122, // _NewHandle
		0x42A7, // CLR.L -(SP)
		0xA975, // _TickCount
		0x201F, // MOVE.L (SP)+,D0
		0x4E75, // RTS
	)
	s := fx.s
	code, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, s.Exited())
	assert.Equal(t, uint32(60000), fx.core.Reg(cpu.D0))

	h := fx.core.Reg(cpu.A0)
	p, err := s.Mem.Deref(h)
	require.NoError(t, err)
	size, err := s.Mem.Size(p)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), size)

	jt := s.A5.JumpTable()
	seg, ok := s.Loader.Segment(1)
	require.True(t, ok)
	assert.Equal(t, uint16(1), s.Mem.Read16(jt))
	assert.Equal(t, uint16(0x4EF9), s.Mem.Read16(jt+2))
	assert.Equal(t, seg.Start, s.Mem.Read32(jt+4))
	assert.Equal(t, fx.s.World.StackBase, fx.sp())
}

func TestRunReturnsMPWStatus(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.s.Mem.Write32(fx.s.World.Block+mpw.OffStatus, 3)
	code, err := fx.s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, uint32(3), fx.s.Status())
}

func TestRunInterrupted(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, err := fx.s.Run(ctx)
	assert.ErrorIs(t, err, moserrors.ErrCPUStopped)
	assert.Equal(t, ExitInterrupted, code)
}

func TestBreakpointsReplayOriginal(t *testing.T) {
	var hits []string
	opts := Options{
		Breakpoints: []string{"1:0:entry", "1:2:second"},
		OnBreak: func(s *Session, bp *breakpoints.Breakpoint, msg string) error {
			hits = append(hits, bp.Label)
			return nil
		},
	}
	fx := newFixture(t, opts, 0x4E71, 0x4E71, 0x4E75)
	code, err := fx.s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"entry", "second"}, hits)

	seg, _ := fx.s.Loader.Segment(1)
	assert.Equal(t, traps.OpBreakpoint, fx.s.Mem.Read16(seg.Start))
	assert.Equal(t, traps.OpBreakpoint, fx.s.Mem.Read16(seg.Start+2))
	for bp := range fx.s.Breakpoints.All() {
		assert.Equal(t, 1, bp.Hits)
		assert.Equal(t, uint16(0x4E71), bp.Original)
	}
}

func TestBreakHandlerErrorStopsRun(t *testing.T) {
	quit := errors.New("quit")
	opts := Options{
		Breakpoints: []string{"1:0"},
		OnBreak: func(*Session, *breakpoints.Breakpoint, string) error {
			return quit
		},
	}
	fx := newFixture(t, opts, 0x4E71, 0x4E75)
	code, err := fx.s.Run(context.Background())
	assert.ErrorIs(t, err, quit)
	assert.Equal(t, ExitFatal, code)
	assert.False(t, fx.s.Exited())
}

func TestUnlistedBreakpointIsSkipped(t *testing.T) {
	fx := newFixture(t, Options{})
	p := fx.code(t, traps.OpBreakpoint, 0x4E71)
	fx.core.SetReg(cpu.PC, p)
	word, err := fx.s.Step(p)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4E71), word)
	assert.Equal(t, p+2, fx.core.Reg(cpu.PC))
}

func TestDispatchUnwindsFrame(t *testing.T) {
	fx := newFixture(t, Options{})
	s := fx.s
	p := fx.code(t, 0xA01C) // _FreeMem
	sp := fx.sp()
	fx.core.SetReg(cpu.PC, p)
	fx.core.SetReg(cpu.SR, 0x2704)

	word, err := s.Step(p)
	require.NoError(t, err)
	assert.Equal(t, traps.OpRTS, word)
	assert.Equal(t, uint16(0xA01C), s.CurrentTrap())
	assert.Equal(t, traps.GlueTarget(s.Traps.Address(0xA01C)), fx.core.Reg(cpu.PC))
	assert.Equal(t, sp-4, fx.sp())
	assert.Equal(t, p+2, s.Mem.Read32(fx.sp()))
	assert.Equal(t, uint32(0x2704), fx.core.Reg(cpu.SR))
	assert.Equal(t, s.Mem.FreeBytes(), fx.core.Reg(cpu.D0))
}

func TestAutoPopReturnsToCaller(t *testing.T) {
	fx := newFixture(t, Options{})
	s := fx.s
	s.push32(0)       // function result
	s.push32(retAddr) // caller's return address
	sp := fx.sp()
	p := fx.code(t, 0xAD75) // _TickCount,AutoPop
	fx.core.SetReg(cpu.PC, p)

	word, err := s.Step(p)
	require.NoError(t, err)
	assert.Equal(t, traps.OpRTS, word)
	assert.Equal(t, sp, fx.sp())
	assert.Equal(t, uint32(retAddr), s.Mem.Read32(sp))
	assert.Equal(t, uint32(60000), s.Mem.Read32(sp+4))
}

func TestUnimplementedTrapContinues(t *testing.T) {
	fx := newFixture(t, Options{})
	p := fx.code(t, 0xA9B4) // _SystemTask
	fx.core.SetReg(cpu.PC, p)
	word, err := fx.s.Step(p)
	require.NoError(t, err)
	assert.Equal(t, traps.OpRTS, word)
	assert.Equal(t, traps.GlueTarget(fx.s.Traps.Unimplemented()), fx.core.Reg(cpu.PC))
	assert.NoError(t, fx.s.Err())
}

func TestExitWordStopsCore(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.s.Mem.Write32(fx.s.World.Block+mpw.OffStatus, 2)
	_, err := fx.s.Step(fx.s.World.ExitWord)
	require.NoError(t, err)
	assert.True(t, fx.s.Exited())
	assert.True(t, fx.core.stopped)
	assert.Equal(t, uint32(2), fx.s.Status())
}

func TestMemoryTraps(t *testing.T) {
	fx := newFixture(t, Options{})
	s, c := fx.s, fx.core

	c.SetReg(cpu.D0, 32)
	require.NoError(t, s.newHandle(0xA122))
	h := c.Reg(cpu.A0)
	assert.NotZero(t, h)
	assert.Zero(t, c.Reg(cpu.D0))

	require.NoError(t, s.getHandleSize(0xA025))
	assert.Equal(t, uint32(32), c.Reg(cpu.D0))

	require.NoError(t, s.hLock(0xA029))
	require.NoError(t, s.hGetState(0xA069))
	assert.NotZero(t, c.Reg(cpu.D0)&uint32(memory.StateLocked))
	require.NoError(t, s.hUnlock(0xA02A))
	require.NoError(t, s.hGetState(0xA069))
	assert.Zero(t, c.Reg(cpu.D0)&uint32(memory.StateLocked))

	c.SetReg(cpu.D0, 64)
	require.NoError(t, s.setHandleSize(0xA024))
	assert.Zero(t, c.Reg(cpu.D0))
	require.NoError(t, s.getHandleSize(0xA025))
	assert.Equal(t, uint32(64), c.Reg(cpu.D0))

	p, err := s.Mem.Deref(h)
	require.NoError(t, err)
	c.SetReg(cpu.A0, p)
	require.NoError(t, s.recoverHandle(0xA128))
	assert.Equal(t, h, c.Reg(cpu.A0))

	c.SetReg(cpu.A0, h)
	require.NoError(t, s.disposeHandle(0xA023))
	assert.Zero(t, c.Reg(cpu.D0))
	require.NoError(t, s.disposeHandle(0xA023))
	assert.Equal(t, moserrors.MemWZErr.Reg(), c.Reg(cpu.D0))
	assert.Equal(t, int16(moserrors.MemWZErr), s.Globals.MemErr)
}

func TestOutOfMemoryIsFatal(t *testing.T) {
	fx := newFixture(t, Options{})
	s, c := fx.s, fx.core

	c.SetReg(cpu.D0, 0x7FFFFFF0)
	require.ErrorIs(t, s.newPtr(0xA11E), moserrors.ErrOutOfMemory)
	assert.Zero(t, c.Reg(cpu.A0))
	assert.Equal(t, moserrors.MemFullErr.Reg(), c.Reg(cpu.D0))
	assert.Equal(t, int16(moserrors.MemFullErr), s.Globals.MemErr)

	c.SetReg(cpu.D0, 0x7FFFFFF0)
	require.ErrorIs(t, s.newHandle(0xA122), moserrors.ErrOutOfMemory)

	// through the trap dispatcher the error stops the session
	p := fx.code(t,
		0x203C, 0x7FFF, 0xFFF0, // MOVE.L #$7FFFFFF0,D0
		0xA11E, // _NewPtr
		0x4E75,
	)
	c.SetReg(cpu.PC, p)
	c.SetReg(cpu.D0, 0x7FFFFFF0)
	_, err := s.Step(p + 6)
	require.ErrorIs(t, err, moserrors.ErrOutOfMemory)
	require.ErrorIs(t, s.fatal, moserrors.ErrOutOfMemory)
}

func TestTempNewHandleOutOfMemory(t *testing.T) {
	fx := newFixture(t, Options{})
	s := fx.s
	rc := fx.alloc(t, 2)
	sp := fx.sp()

	s.push32(0)
	s.push32(0x7FFFFFF0)
	s.push32(rc)
	s.push16(selTempNewHandle)
	s.push32(retAddr)
	require.ErrorIs(t, s.osDispatch(0xA88F), moserrors.ErrOutOfMemory)
	assert.Equal(t, moserrors.MemFullErr.Word(), s.Mem.Read16(rc))
	assert.Equal(t, uint32(retAddr), s.Mem.Read32(fx.sp()))
	assert.Zero(t, s.Mem.Read32(fx.sp()+4))
	assert.Equal(t, sp-4, fx.sp())
}

func TestPointerTraps(t *testing.T) {
	fx := newFixture(t, Options{})
	s, c := fx.s, fx.core

	c.SetReg(cpu.D0, 10)
	require.NoError(t, s.newPtr(0xA11E))
	src := c.Reg(cpu.A0)
	require.NoError(t, s.getPtrSize(0xA021))
	assert.Equal(t, uint32(12), c.Reg(cpu.D0))

	s.Mem.WriteBytes(src, []byte("0123456789"))
	dst := fx.alloc(t, 10)
	c.SetReg(cpu.A0, src)
	c.SetReg(cpu.A1, dst)
	c.SetReg(cpu.D0, 10)
	require.NoError(t, s.blockMove(0xA02E))
	assert.Equal(t, []byte("0123456789"), s.Mem.Bytes(dst, 10))

	c.SetReg(cpu.A0, src)
	require.NoError(t, s.disposePtr(0xA01F))
	assert.Zero(t, c.Reg(cpu.D0))
}

func TestBadDisposeIsFatalWithHeapChecks(t *testing.T) {
	fx := newFixture(t, Options{CheckHeap: true})
	fx.core.SetReg(cpu.A0, fx.s.World.Block+2)
	err := fx.s.disposeHandle(0xA023)
	assert.ErrorIs(t, err, moserrors.ErrNotAllocated)
}

func TestResourceTraps(t *testing.T) {
	fx := newFixture(t, Options{})
	s := fx.s

	s.push32(0)
	s.push32(uint32(typeSTR))
	s.push16(128)
	s.push32(retAddr)
	require.NoError(t, s.getResource(0xA9A0))
	assert.Equal(t, uint32(retAddr), s.Mem.Read32(fx.sp()))
	h := s.Mem.Read32(fx.sp() + 4)
	require.NotZero(t, h)
	p, err := s.Mem.Deref(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), s.Mem.PString(p))
	s.pop32()
	s.pop32()

	s.push32(0)
	s.push32(h)
	s.push32(retAddr)
	require.NoError(t, s.sizeResource(0xA9A5))
	// block sizes are rounded to longs
	assert.Equal(t, uint32(8), s.Mem.Read32(fx.sp()+4))
	s.pop32()
	s.pop32()

	name := fx.alloc(t, 9)
	s.Mem.WriteBytes(name, []byte("\x08greeting"))
	s.push32(0)
	s.push32(uint32(typeSTR))
	s.push32(name)
	s.push32(retAddr)
	require.NoError(t, s.getNamedResource(0xA9A1))
	assert.Equal(t, h, s.Mem.Read32(fx.sp()+4))
	s.pop32()
	s.pop32()

	s.push32(0)
	s.push32(uint32(typeSTR))
	s.push16(999)
	s.push32(retAddr)
	require.NoError(t, s.getResource(0xA9A0))
	assert.Zero(t, s.Mem.Read32(fx.sp()+4))
	assert.Equal(t, int16(moserrors.ResNotFound), s.Globals.ResErr)
	s.pop32()
	s.pop32()

	s.push16(0)
	s.push32(retAddr)
	require.NoError(t, s.resError(0xA9AF))
	assert.Equal(t, moserrors.ResNotFound.Word(), s.Mem.Read16(fx.sp()+4))
	s.pop32()
	s.pop16()

	s.push16(0)
	s.push32(uint32(rsrc.TypeCODE))
	s.push32(retAddr)
	require.NoError(t, s.count1Resources(0xA80D))
	assert.Equal(t, uint16(2), s.Mem.Read16(fx.sp()+4))
	s.pop32()
	s.pop16()

	s.push16(0x0000)
	s.push32(retAddr)
	require.NoError(t, s.setResLoad(0xA99B))
	assert.Zero(t, s.Globals.ResLoad)
	s.push16(0x0100)
	s.push32(retAddr)
	require.NoError(t, s.setResLoad(0xA99B))
	assert.Equal(t, uint16(1), s.Globals.ResLoad)
}

func TestTrapAddressTraps(t *testing.T) {
	fx := newFixture(t, Options{})
	s, c := fx.s, fx.core

	c.SetReg(cpu.D0, 0x01F0)
	require.NoError(t, s.getTrapAddress(0xA746))
	assert.Equal(t, s.Traps.Address(0xA9F0), c.Reg(cpu.A0))

	c.SetReg(cpu.D0, 0xA9F0)
	require.NoError(t, s.getTrapAddress(0xA146))
	assert.Equal(t, s.Traps.Address(0xA9F0), c.Reg(cpu.A0))

	c.SetReg(cpu.D0, 0x0022)
	require.NoError(t, s.getTrapAddress(0xA346))
	assert.Equal(t, s.Traps.Address(0xA122), c.Reg(cpu.A0))

	c.SetReg(cpu.D0, 0xA9B4)
	c.SetReg(cpu.A0, 0x5000)
	require.NoError(t, s.setTrapAddress(0xA647))
	assert.Equal(t, memory.GuestPtr(0x5000), s.Traps.Address(0xA9B4))
	assert.True(t, s.Traps.Implemented(0xA9B4))
}

func TestSetOSTrapAddressTakesEffect(t *testing.T) {
	fx := newFixture(t, Options{})
	s, c := fx.s, fx.core
	patch := fx.code(t, 0x4E75)

	for _, call := range []uint16{0xA047, 0xA247} {
		c.SetReg(cpu.D0, 0xA11E)
		if call == 0xA247 {
			c.SetReg(cpu.D0, 0x001E)
		}
		c.SetReg(cpu.A0, patch)
		require.NoError(t, s.setTrapAddress(call))

		for _, get := range []struct{ call, number uint16 }{{0xA146, 0xA11E}, {0xA346, 0x001E}, {0xA146, 0xA31E}} {
			c.SetReg(cpu.D0, uint32(get.number))
			require.NoError(t, s.getTrapAddress(get.call))
			assert.Equal(t, patch, c.Reg(cpu.A0), "0x%04X 0x%04X", get.call, get.number)
		}
	}
	assert.NotEqual(t, patch, s.Traps.Address(0xA91E))

	p := fx.code(t, 0xA11E) // _NewPtr
	c.SetReg(cpu.PC, p)
	word, err := s.Step(p)
	require.NoError(t, err)
	assert.Equal(t, traps.OpRTS, word)
	assert.Equal(t, patch, c.Reg(cpu.PC))
}

func TestSecondsToDate(t *testing.T) {
	fx := newFixture(t, Options{})
	when := time.Date(2001, time.February, 3, 4, 5, 6, 0, time.UTC)
	rec := fx.alloc(t, 14)
	fx.core.SetReg(cpu.D0, uint32(when.Unix()+fileio.MacEpochOffset))
	fx.core.SetReg(cpu.A0, rec)
	require.NoError(t, fx.s.secondsToDate(0xA9C6))

	var got []uint16
	for i := uint32(0); i < 7; i++ {
		got = append(got, fx.s.Mem.Read16(rec+2*i))
	}
	// 2001-02-03 is a Saturday
	assert.Equal(t, []uint16{2001, 2, 3, 4, 5, 6, 7}, got)
}

func TestTempMemory(t *testing.T) {
	fx := newFixture(t, Options{})
	s := fx.s
	rc := fx.alloc(t, 2)
	s.Mem.Write16(rc, 0xFFFF)
	sp := fx.sp()

	s.push32(0)
	s.push32(100)
	s.push32(rc)
	s.push16(selTempNewHandle)
	s.push32(retAddr)
	require.NoError(t, s.osDispatch(0xA88F))
	assert.Equal(t, uint32(retAddr), s.Mem.Read32(fx.sp()))
	h := s.Mem.Read32(fx.sp() + 4)
	assert.Zero(t, s.Mem.Read16(rc))
	size, err := s.handleSize(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), size)
	s.pop32()
	s.pop32()
	assert.Equal(t, sp, fx.sp())

	s.Mem.Write16(rc, 0xFFFF)
	s.push32(h)
	s.push32(rc)
	s.push16(selTempDisposeHandle)
	s.push32(retAddr)
	require.NoError(t, s.osDispatch(0xA88F))
	assert.Zero(t, s.Mem.Read16(rc))
	s.pop32()
	assert.Equal(t, sp, fx.sp())
}

func TestDeviceGlueWritesStdout(t *testing.T) {
	fx := newFixture(t, Options{})
	s := fx.s
	buf := fx.alloc(t, 8)
	s.Mem.WriteBytes(buf, []byte("hi\r"))
	rec := fx.alloc(t, 0x20)
	s.Mem.Write32(rec+8, fileio.Stdout)
	s.Mem.Write32(rec+12, 3)
	s.Mem.Write32(rec+16, buf)

	s.push32(rec)
	s.push32(retAddr)
	require.NoError(t, s.syWrite(0))
	assert.Zero(t, fx.core.Reg(cpu.D0))
	assert.Equal(t, "hi\n", fx.stdout.String())
}

func TestFunctionName(t *testing.T) {
	fx := newFixture(t, Options{})
	s := fx.s

	short := fx.alloc(t, 12)
	s.Mem.WriteBytes(short, append(words(0x4E71, 0x4E75), 0x86, 'D', 'o', 'W', 'o', 'r', 'k'))
	assert.Equal(t, "DoWork", s.FunctionName(short))

	fixed := fx.alloc(t, 10)
	s.Mem.WriteBytes(fixed, append(words(0x4E75), 'M'|0x80, 'A', 'I', 'N', 'P', 'R', 'O', 'G'))
	assert.Equal(t, "MAINPROG", s.FunctionName(fixed))

	skip := fx.alloc(t, 14)
	s.Mem.WriteBytes(skip, append(words(0x0697, 0x0000, 0x4E75, 0x4E75), 0x84, 'N', 'e', 'x', 't'))
	assert.Equal(t, "Next", s.FunctionName(skip))

	// the ADDI.L opcode must sit two words ahead of the RTS
	near := fx.alloc(t, 12)
	s.Mem.WriteBytes(near, append(words(0x0697, 0x4E75), 0x84, 'N', 'e', 'a', 'r'))
	assert.Equal(t, "Near", s.FunctionName(near))

	none := fx.alloc(t, 4)
	s.Mem.WriteBytes(none, words(0x4E75, 0x0000))
	assert.Empty(t, s.FunctionName(none))
}

func TestRunExitCodes(t *testing.T) {
	ctx := context.Background()

	code, err := Run(ctx, RunConfig{Tool: "/nonexistent/Tool"}, nil)
	assert.ErrorIs(t, err, moserrors.ErrNoApplication)
	assert.Equal(t, ExitLoadFailed, code)

	dir := t.TempDir()
	tool := filepath.Join(dir, "Tool")
	require.NoError(t, os.WriteFile(tool, toolFork(0x4E75), 0o644))
	cfg := RunConfig{Tool: tool, Options: Options{HeapSize: 1 << 20, Streams: fileio.Streams{Stdin: strings.NewReader(""), Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}}}

	noCore := func(*memory.Arena, memory.SystemPage, cpu.Hook) (cpu.Core, error) {
		return nil, moserrors.ErrNoCPUCore
	}
	code, err = Run(ctx, cfg, noCore)
	assert.ErrorIs(t, err, moserrors.ErrNoCPUCore)
	assert.Equal(t, ExitFatal, code)

	var core *fakeCore
	code, err = Run(ctx, cfg, fakeFactory(&core))
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.True(t, core.closed)

	require.NoError(t, os.WriteFile(tool, []byte("not a fork"), 0o644))
	code, err = Run(ctx, cfg, fakeFactory(&core))
	assert.Error(t, err)
	assert.Equal(t, ExitLoadFailed, code)
}
