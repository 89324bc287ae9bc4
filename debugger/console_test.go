package debugger

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/mosrun/breakpoints"
	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/emulator"
	"github.com/colorfulnotion/mosrun/fileio"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// script feeds the console fixed lines, then EOF.
type script struct {
	lines  []any
	closed bool
}

func (s *script) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	next := s.lines[0]
	s.lines = s.lines[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (s *script) Close() error {
	s.closed = true
	return nil
}

type regs struct{ r [cpu.NumRegs]uint32 }

func (c *regs) Reg(r cpu.Reg) uint32          { return c.r[r] }
func (c *regs) SetReg(r cpu.Reg, v uint32)    { c.r[r] = v }
func (c *regs) Run(ctx context.Context) error { return nil }
func (c *regs) Stop(err error)                {}
func (c *regs) Close() error                  { return nil }

func newSession(t *testing.T) *emulator.Session {
	t.Helper()
	s, err := emulator.New(emulator.Options{
		HeapSize: 1 << 20,
		Streams:  fileio.Streams{Stdin: strings.NewReader(""), Stdout: io.Discard, Stderr: io.Discard},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.CPU = &regs{}
	return s
}

func run(t *testing.T, s *emulator.Session, bp *breakpoints.Breakpoint, msg string, lines ...any) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := NewWithReader(&script{lines: lines}, &out, false)
	err := c.Break(s, bp, msg)
	return out.String(), err
}

func TestContinueAndQuit(t *testing.T) {
	s := newSession(t)

	out, err := run(t, s, nil, "stop here", "c")
	require.NoError(t, err)
	assert.Contains(t, out, "User break: stop here")
	assert.Contains(t, out, "PC=00000000")

	_, err = run(t, s, nil, "", "quit")
	assert.ErrorIs(t, err, moserrors.ErrConsoleQuit)

	_, err = run(t, s, nil, "")
	assert.NoError(t, err, "EOF resumes")

	_, err = run(t, s, nil, "", readline.ErrInterrupt, "cont")
	assert.NoError(t, err)
}

func TestRegistersAndMemory(t *testing.T) {
	s := newSession(t)
	p, err := s.Mem.Alloc(16)
	require.NoError(t, err)
	s.CPU.SetReg(cpu.A0, p)

	out, err := run(t, s, nil, "",
		"reg('d0', 0x1234)",
		"poke('A0', 0xCAFEBABE)",
		"peek('a0', 2)",
		"trap(0xA122)",
		"cont()",
		"print('not reached')",
	)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), s.CPU.Reg(cpu.D0))
	assert.Equal(t, uint32(0xCAFEBABE), s.Mem.Read32(p))
	assert.Contains(t, out, "4660 (0x1234)")
	assert.Contains(t, out, "51966 (0xCAFE)")
	assert.Contains(t, out, "NewHandle")
	assert.NotContains(t, out, "not reached")
}

func TestEvalErrorsKeepConsoleOpen(t *testing.T) {
	s := newSession(t)
	out, err := run(t, s, nil, "", "reg('Q9')", "undefinedThing", "c")
	require.NoError(t, err)
	assert.Contains(t, out, "unknown register")
	assert.Contains(t, out, "error:")
}

func TestBreakpointCommands(t *testing.T) {
	s := newSession(t)
	out, err := run(t, s, nil, "", `bp("2:1A:Loop")`, "bps()", "c")
	require.NoError(t, err)
	assert.Contains(t, out, "02.0001A Loop")

	n := 0
	for bp := range s.Breakpoints.All() {
		assert.Equal(t, uint16(2), bp.Segment)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestRegisterDeltaBetweenStops(t *testing.T) {
	s := newSession(t)
	var out bytes.Buffer
	c := NewWithReader(&script{lines: []any{"c"}}, &out, false)
	require.NoError(t, c.Break(s, nil, "first"))
	assert.NotContains(t, out.String(), "changed since last stop")

	s.CPU.SetReg(cpu.D3, 7)
	c.in = &script{lines: []any{"c"}}
	out.Reset()
	require.NoError(t, c.Break(s, nil, "second"))
	assert.Contains(t, out.String(), "changed since last stop")
	assert.Contains(t, out.String(), "00000007")
}

func TestDiffHelper(t *testing.T) {
	s := newSession(t)
	out, err := run(t, s, nil, "",
		"var a = regs()",
		"reg('D1', 5)",
		"diff(a, regs())",
		"diff(a, a)",
		"c",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "NoMatch")
	assert.Contains(t, out, "FullMatch")
}
