package log

import (
	"strings"
	"sync"
)

const (
	MemoryModule     = "mem"    // guest allocator and accessors
	LowMemModule     = "lowmem" // system page cells
	TrapModule       = "trap"   // trap table and native routines
	ResourceModule   = "rsrc"   // resource fork loader
	BreakpointModule = "bp"     // breakpoint manager
	FileModule       = "file"   // host file table and PB/Sy* routines
	CPUModule        = "cpu"    // CPU core adapter
	MPWModule        = "mpw"    // MPW runtime structures
	InstrModule      = "instr"  // per-instruction trace
	ConsoleModule    = "console"
)

var knownModules = []string{MemoryModule, LowMemModule, TrapModule, ResourceModule, BreakpointModule, FileModule, CPUModule, MPWModule, InstrModule, ConsoleModule}

// registry holds the on/off switch of each module's Trace and Debug output.
type registry struct {
	mu sync.RWMutex
	on map[string]bool
}

// per-instruction tracing is opt-in even at trace level
var modules = newRegistry(MemoryModule, LowMemModule, TrapModule, ResourceModule, BreakpointModule, FileModule, CPUModule, MPWModule, ConsoleModule)

func newRegistry(enabled ...string) *registry {
	r := &registry{on: make(map[string]bool, len(knownModules))}
	r.reset(enabled)
	return r
}

func (r *registry) reset(enabled []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.on)
	for _, m := range enabled {
		r.on[m] = true
	}
}

func (r *registry) set(module string, on bool) {
	r.mu.Lock()
	r.on[module] = on
	r.mu.Unlock()
}

func (r *registry) enabled(module string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.on[module]
}

func (r *registry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, m := range knownModules {
		if r.on[m] {
			out = append(out, m)
		}
	}
	return out
}

func EnableModule(module string)  { modules.set(module, true) }
func DisableModule(module string) { modules.set(module, false) }

// EnableModules enables a comma separated list of modules. "all" enables
// every known module.
func EnableModules(list string) {
	for _, m := range strings.Split(list, ",") {
		switch m = strings.TrimSpace(m); m {
		case "":
		case "all":
			for _, k := range knownModules {
				EnableModule(k)
			}
		default:
			EnableModule(m)
		}
	}
}

// OnlyModules disables every module and then enables the listed ones.
func OnlyModules(list []string) {
	modules.reset(nil)
	EnableModules(strings.Join(list, ","))
}

// EnabledModules lists the known modules whose output is on.
func EnabledModules() []string {
	return modules.list()
}
