// Package debugger is the interactive console mosrun opens when the guest
// hits a breakpoint or calls Debugger/DebugStr. Lines are JavaScript
// evaluated against the stopped session; "c" resumes and "q" ends the run.
package debugger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dop251/goja"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
	"golang.org/x/term"

	"github.com/colorfulnotion/mosrun/breakpoints"
	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/emulator"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/moserrors"
)

const usage = `commands:
  c, cont          resume the tool
  q, quit          end the run
  help             this text
javascript:
  regs()                   register file
  reg(name[, value])       read or write one register
  peek(addr[, size])       read 1, 2 or 4 bytes
  poke(addr, value[, size])
  dump(addr[, length])     hex dump
  where([addr])            segment.offset and function name
  trap(word)               trap name
  bp("seg:off[:label]")    add a breakpoint
  bps()                    list breakpoints
  diff(a, b)               compare two values, e.g. saved registers
  print(...)`

// LineReader is the console's input.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

type Config struct {
	Prompt      string
	HistoryFile string
	Color       bool
}

// Console implements emulator.BreakHandler.
type Console struct {
	in    LineReader
	out   io.Writer
	vm    *goja.Runtime
	color bool

	s      *emulator.Session
	last   []byte
	resume bool
}

// IsTerminal reports whether the process talks to a terminal, the
// precondition for opening the console.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// New opens a console on the process's terminal.
func New(cfg Config) (*Console, error) {
	if cfg.Prompt == "" {
		cfg.Prompt = "mosrun> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "cont",
	})
	if err != nil {
		return nil, fmt.Errorf("start readline: %w", err)
	}
	return NewWithReader(rl, rl.Stdout(), cfg.Color), nil
}

// NewWithReader builds a console on any line source.
func NewWithReader(in LineReader, out io.Writer, color bool) *Console {
	c := &Console{in: in, out: out, color: color, vm: goja.New()}
	c.bind()
	return c
}

func (c *Console) Close() error { return c.in.Close() }

// Break runs the console until the user resumes or quits. It is the
// session's BreakHandler.
func (c *Console) Break(s *emulator.Session, bp *breakpoints.Breakpoint, msg string) error {
	c.s = s
	c.resume = false
	switch {
	case bp != nil:
		fmt.Fprintln(c.out, c.paint(common.ColorYellow, fmt.Sprintf("Breakpoint %s at %08X (hit %d)", bp, bp.Address, bp.Hits)))
	case msg != "":
		fmt.Fprintln(c.out, c.paint(common.ColorYellow, "User break: "+msg))
	}
	pc := s.CPU.Reg(cpu.PC)
	if name := s.FunctionName(pc); name != "" {
		fmt.Fprintln(c.out, c.paint(common.ColorCyan, s.FormatAddr(pc)+" in "+name))
	}
	fmt.Fprintln(c.out, cpu.Dump(s.CPU))
	c.printDelta()

	for !c.resume {
		line, err := c.in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("console: %w", err)
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "c", "cont", "continue":
			return nil
		case "q", "quit", "exit":
			return moserrors.ErrConsoleQuit
		case "help", "?":
			fmt.Fprintln(c.out, usage)
			continue
		}
		c.eval(line)
	}
	return nil
}

func (c *Console) paint(color, s string) string {
	if !c.color {
		return s
	}
	return common.Colorize(color, s)
}

func (c *Console) eval(src string) {
	v, err := c.vm.RunString(src)
	if err != nil {
		fmt.Fprintln(c.out, c.paint(common.ColorRed, "error: "+err.Error()))
		return
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return
	}
	switch x := v.Export().(type) {
	case string:
		fmt.Fprintln(c.out, x)
	case int64:
		fmt.Fprintf(c.out, "%d (0x%X)\n", x, x)
	default:
		out, err := json.MarshalIndent(x, "", "  ")
		if err != nil {
			fmt.Fprintln(c.out, v.String())
			return
		}
		fmt.Fprintln(c.out, string(out))
	}
}

// registers is the register file keyed by name, as hex strings.
func registers(r cpu.Registers) map[string]string {
	out := make(map[string]string, cpu.NumRegs)
	for i := cpu.Reg(0); i < cpu.NumRegs; i++ {
		out[i.String()] = fmt.Sprintf("%08X", r.Reg(i))
	}
	return out
}

// printDelta shows which registers changed since the previous stop.
func (c *Console) printDelta() {
	cur, err := json.Marshal(registers(c.s.CPU))
	if err != nil {
		return
	}
	prev := c.last
	c.last = cur
	if prev == nil {
		return
	}
	delta, err := gojsondiff.New().Compare(prev, cur)
	if err != nil {
		log.Debug(log.ConsoleModule, "register diff", "err", err)
		return
	}
	if !delta.Modified() {
		return
	}
	var left map[string]any
	if err := json.Unmarshal(prev, &left); err != nil {
		return
	}
	text, err := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{Coloring: c.color}).Format(delta)
	if err != nil {
		log.Debug(log.ConsoleModule, "register diff format", "err", err)
		return
	}
	fmt.Fprintln(c.out, "changed since last stop:")
	fmt.Fprint(c.out, text)
}
