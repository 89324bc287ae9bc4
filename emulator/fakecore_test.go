package emulator

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
)

// fakeCore interprets the handful of instructions the tests' guest code
// uses. It calls the hook before every instruction like the real core and
// executes the word the hook returns.
type fakeCore struct {
	regs [cpu.NumRegs]uint32
	mem  *memory.Arena
	hook cpu.Hook

	stopped bool
	stopErr error
	limit   int
	closed  bool
}

func newFakeCore(mem *memory.Arena, hook cpu.Hook) *fakeCore {
	return &fakeCore{mem: mem, hook: hook, limit: 10000}
}

func fakeFactory(core **fakeCore) CoreFactory {
	return func(mem *memory.Arena, page memory.SystemPage, hook cpu.Hook) (cpu.Core, error) {
		*core = newFakeCore(mem, hook)
		return *core, nil
	}
}

func (c *fakeCore) Reg(r cpu.Reg) uint32       { return c.regs[r] }
func (c *fakeCore) SetReg(r cpu.Reg, v uint32) { c.regs[r] = v }

func (c *fakeCore) Stop(err error) {
	if c.stopped {
		return
	}
	c.stopped = true
	c.stopErr = err
}

func (c *fakeCore) Close() error {
	c.closed = true
	return nil
}

func (c *fakeCore) Run(ctx context.Context) error {
	c.stopped = false
	c.stopErr = nil
	for n := 0; ; n++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", moserrors.ErrCPUStopped, ctx.Err())
		}
		if n == c.limit {
			return fmt.Errorf("fake core: step limit at 0x%08X", c.regs[cpu.PC])
		}
		word, err := c.hook(c.regs[cpu.PC])
		if err != nil {
			return err
		}
		if c.stopped {
			return c.stopErr
		}
		if err := c.exec(word); err != nil {
			return err
		}
	}
}

func (c *fakeCore) exec(word uint16) error {
	pc := c.regs[cpu.PC]
	switch word {
	case 0x4E71: // NOP
		c.regs[cpu.PC] = pc + 2
	case 0x4E75: // RTS
		c.regs[cpu.PC] = cpu.Pop32(c, c.mem)
	case 0x4EF9: // JMP abs.L
		c.regs[cpu.PC] = c.mem.Read32(pc + 2)
	case 0x3F3C: // MOVE.W #imm,-(SP)
		cpu.Push16(c, c.mem, c.mem.Read16(pc+2))
		c.regs[cpu.PC] = pc + 4
	case 0x2F3C: // MOVE.L #imm,-(SP)
		cpu.Push32(c, c.mem, c.mem.Read32(pc+2))
		c.regs[cpu.PC] = pc + 6
	case 0x42A7: // CLR.L -(SP)
		cpu.Push32(c, c.mem, 0)
		c.regs[cpu.PC] = pc + 2
	case 0x203C: // MOVE.L #imm,D0
		c.regs[cpu.D0] = c.mem.Read32(pc + 2)
		c.regs[cpu.PC] = pc + 6
	case 0x201F: // MOVE.L (SP)+,D0
		c.regs[cpu.D0] = cpu.Pop32(c, c.mem)
		c.regs[cpu.PC] = pc + 2
	default:
		return fmt.Errorf("fake core: opcode 0x%04X at 0x%08X", word, pc)
	}
	return nil
}
