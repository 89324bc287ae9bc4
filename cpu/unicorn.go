//go:build unicorn
// +build unicorn

package cpu

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/moserrors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

var ucRegs = [NumRegs]int{
	uc.M68K_REG_D0, uc.M68K_REG_D1, uc.M68K_REG_D2, uc.M68K_REG_D3,
	uc.M68K_REG_D4, uc.M68K_REG_D5, uc.M68K_REG_D6, uc.M68K_REG_D7,
	uc.M68K_REG_A0, uc.M68K_REG_A1, uc.M68K_REG_A2, uc.M68K_REG_A3,
	uc.M68K_REG_A4, uc.M68K_REG_A5, uc.M68K_REG_A6, uc.M68K_REG_A7,
	uc.M68K_REG_PC, uc.M68K_REG_SR,
}

// replay is an instruction word written over a patch for one execution.
type replay struct {
	addr    uint32
	patched uint16
}

// Unicorn runs guest code on the unicorn M68K core. The arena is mapped
// into the core without copying, so both sides see the same bytes.
type Unicorn struct {
	mu   uc.Unicorn
	mem  *memory.Arena
	page memory.SystemPage
	hook Hook

	replay  *replay
	stopErr error
	stopped bool
}

// NewUnicorn maps mem into a fresh core. page serves the low-memory cells;
// the hook runs before every instruction.
func NewUnicorn(mem *memory.Arena, page memory.SystemPage, hook Hook) (*Unicorn, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_M68K, uc.MODE_BIG_ENDIAN)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}
	// the default model is a ColdFire
	if err := mu.SetCPUModel(uc.CPU_M68K_M68020); err != nil {
		mu.Close()
		return nil, fmt.Errorf("select 68020: %w", err)
	}
	raw := mem.Raw()
	if err := mu.MemMapPtr(0, uint64(len(raw)), uc.PROT_ALL, unsafe.Pointer(&raw[0])); err != nil {
		mu.Close()
		return nil, fmt.Errorf("map guest arena: %w", err)
	}
	c := &Unicorn{mu: mu, mem: mem, page: page, hook: hook}

	if _, err := mu.HookAdd(uc.HOOK_CODE, c.onCode, 1, 0); err != nil {
		mu.Close()
		return nil, fmt.Errorf("code hook: %w", err)
	}
	end := uint64(memory.SystemPageEnd) - 1
	if _, err := mu.HookAdd(uc.HOOK_MEM_READ, c.onSystemRead, 0, end); err != nil {
		mu.Close()
		return nil, fmt.Errorf("system page read hook: %w", err)
	}
	if _, err := mu.HookAdd(uc.HOOK_MEM_WRITE, c.onSystemWrite, 0, end); err != nil {
		mu.Close()
		return nil, fmt.Errorf("system page write hook: %w", err)
	}
	if _, err := mu.HookAdd(uc.HOOK_INTR, c.onException, 1, 0); err != nil {
		mu.Close()
		return nil, fmt.Errorf("exception hook: %w", err)
	}
	mem.OnPatch(c.flush)
	log.Debug(log.CPUModule, "unicorn core ready", "arena", fmt.Sprintf("0x%X", len(raw)))
	return c, nil
}

func (c *Unicorn) Reg(r Reg) uint32 {
	v, err := c.mu.RegRead(ucRegs[r])
	if err != nil {
		log.Error(log.CPUModule, "register read", "reg", r, "err", err)
	}
	return uint32(v)
}

func (c *Unicorn) SetReg(r Reg, v uint32) {
	if err := c.mu.RegWrite(ucRegs[r], uint64(v)); err != nil {
		log.Error(log.CPUModule, "register write", "reg", r, "err", err)
	}
}

// flush drops translated code covering a patched range. Rewriting the bytes
// through the core is what invalidates its translation cache.
func (c *Unicorn) flush(addr, size uint32) {
	if err := c.mu.MemWrite(uint64(addr), c.mem.Raw()[addr:addr+size]); err != nil {
		log.Warn(log.CPUModule, "flush", "addr", fmt.Sprintf("0x%08X", addr), "err", err)
	}
}

func (c *Unicorn) onCode(mu uc.Unicorn, addr uint64, size uint32) {
	if c.stopped {
		return
	}
	pc := uint32(addr)
	if r := c.replay; r != nil && r.addr != pc {
		c.mem.WriteUnsafe16(r.addr, r.patched)
		c.flush(r.addr, 2)
		c.replay = nil
	}
	word, err := c.hook(pc)
	if err != nil {
		c.Stop(err)
		return
	}
	if c.stopped {
		return
	}
	next := c.Reg(PC)
	if mem := c.mem.ReadUnsafe16(next); mem != word {
		c.replay = &replay{addr: next, patched: mem}
		c.mem.WriteUnsafe16(next, word)
		c.flush(next, 2)
		// restart at next so the original word is translated
		c.SetReg(PC, next)
	}
}

func (c *Unicorn) onSystemRead(mu uc.Unicorn, access int, addr uint64, size int, value int64) {
	if c.page == nil {
		return
	}
	a := uint32(addr)
	v := c.page.ReadCell(a, size)
	switch size {
	case 1:
		c.mem.WriteUnsafe8(a, uint8(v))
	case 2:
		c.mem.WriteUnsafe16(a, uint16(v))
	case 4:
		c.mem.WriteUnsafe32(a, v)
	}
}

func (c *Unicorn) onSystemWrite(mu uc.Unicorn, access int, addr uint64, size int, value int64) {
	if c.page != nil {
		c.page.WriteCell(uint32(addr), size, uint32(value))
	}
}

func (c *Unicorn) onException(mu uc.Unicorn, intno uint32) {
	if c.stopped {
		return
	}
	pc := c.Reg(PC)
	c.Stop(fmt.Errorf("exception %d at 0x%08X: %w", intno, pc, moserrors.ErrCPUException))
}

func (c *Unicorn) Run(ctx context.Context) error {
	c.stopped = false
	c.stopErr = nil
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Stop()
		case <-done:
		}
	}()

	pc := c.Reg(PC)
	log.Debug(log.CPUModule, "run", "pc", fmt.Sprintf("0x%08X", pc))
	err := c.mu.Start(uint64(pc), 0xFFFFFFFF)
	switch {
	case c.stopped:
		return c.stopErr
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", moserrors.ErrCPUStopped, ctx.Err())
	case err != nil:
		return fmt.Errorf("unicorn at 0x%08X: %w", c.Reg(PC), err)
	}
	return errors.New("unicorn returned without stopping")
}

func (c *Unicorn) Stop(err error) {
	if c.stopped {
		return
	}
	c.stopped = true
	c.stopErr = err
	if err := c.mu.Stop(); err != nil {
		log.Warn(log.CPUModule, "stop", "err", err)
	}
}

func (c *Unicorn) Close() error {
	return c.mu.Close()
}
