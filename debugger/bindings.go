package debugger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/nsf/jsondiff"

	"github.com/colorfulnotion/mosrun/breakpoints"
	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/cpu"
	"github.com/colorfulnotion/mosrun/memory"
	"github.com/colorfulnotion/mosrun/traps"
)

// bind installs the console's JavaScript functions.
func (c *Console) bind() {
	vm := c.vm
	vm.Set("regs", func() map[string]string {
		return registers(c.s.CPU)
	})
	vm.Set("reg", func(call goja.FunctionCall) goja.Value {
		r, ok := cpu.ParseReg(call.Argument(0).String())
		if !ok {
			panic(vm.NewTypeError("unknown register %q", call.Argument(0).String()))
		}
		if v := call.Argument(1); !goja.IsUndefined(v) {
			c.s.CPU.SetReg(r, uint32(v.ToInteger()))
		}
		return vm.ToValue(int64(c.s.CPU.Reg(r)))
	})
	vm.Set("peek", func(call goja.FunctionCall) goja.Value {
		addr := c.addr(call.Argument(0))
		switch size := optInt(call.Argument(1), 4); size {
		case 1:
			return vm.ToValue(int64(c.s.Mem.Read8(addr)))
		case 2:
			return vm.ToValue(int64(c.s.Mem.Read16(addr)))
		case 4:
			return vm.ToValue(int64(c.s.Mem.Read32(addr)))
		default:
			panic(vm.NewTypeError("size %d is not 1, 2 or 4", size))
		}
	})
	vm.Set("poke", func(call goja.FunctionCall) goja.Value {
		addr := c.addr(call.Argument(0))
		v := call.Argument(1).ToInteger()
		switch size := optInt(call.Argument(2), 4); size {
		case 1:
			c.s.Mem.Write8(addr, uint8(v))
		case 2:
			c.s.Mem.Patch16(addr, uint16(v))
		case 4:
			c.s.Mem.Patch32(addr, uint32(v))
		default:
			panic(vm.NewTypeError("size %d is not 1, 2 or 4", size))
		}
		return goja.Undefined()
	})
	vm.Set("dump", func(call goja.FunctionCall) goja.Value {
		addr := c.addr(call.Argument(0))
		n := uint32(optInt(call.Argument(1), 64))
		return vm.ToValue(common.HexDump(addr, c.s.Mem.Bytes(addr, n)))
	})
	vm.Set("where", func(call goja.FunctionCall) goja.Value {
		addr := c.s.CPU.Reg(cpu.PC)
		if a := call.Argument(0); !goja.IsUndefined(a) {
			addr = c.addr(a)
		}
		s := c.s.FormatAddr(addr)
		if name := c.s.FunctionName(addr); name != "" {
			s += " " + name
		}
		return vm.ToValue(s)
	})
	vm.Set("trap", func(word int64) string {
		return traps.Name(uint16(word))
	})
	vm.Set("bp", func(spec string) string {
		seg, off, label, err := breakpoints.ParseSpec(spec)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		bp := c.s.Breakpoints.Add(seg, off, label)
		return fmt.Sprintf("%s %s", bp, bp.State)
	})
	vm.Set("bps", func() []string {
		var out []string
		for bp := range c.s.Breakpoints.All() {
			out = append(out, fmt.Sprintf("%s %s hits=%d", bp, bp.State, bp.Hits))
		}
		return out
	})
	vm.Set("diff", func(a, b goja.Value) string {
		left, err := json.Marshal(a.Export())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		right, err := json.Marshal(b.Export())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		opts := jsondiff.DefaultConsoleOptions()
		if !c.color {
			opts = jsondiff.DefaultJSONOptions()
		}
		d, text := jsondiff.Compare(left, right, &opts)
		if d == jsondiff.FullMatch {
			return d.String()
		}
		return d.String() + "\n" + text
	})
	vm.Set("cont", func() {
		c.resume = true
	})
	vm.Set("print", func(args ...goja.Value) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a.Export())
		}
		fmt.Fprintln(c.out, strings.Join(parts, " "))
	})
}

// addr accepts numbers and register names.
func (c *Console) addr(v goja.Value) memory.GuestPtr {
	if s, ok := v.Export().(string); ok {
		if r, ok := cpu.ParseReg(s); ok {
			return c.s.CPU.Reg(r)
		}
		panic(c.vm.NewTypeError("%q is not an address", s))
	}
	return memory.GuestPtr(v.ToInteger())
}

func optInt(v goja.Value, def int64) int64 {
	if goja.IsUndefined(v) {
		return def
	}
	return v.ToInteger()
}
