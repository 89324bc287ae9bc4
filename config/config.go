// Package config holds the run settings of mosrun: an optional YAML file
// overlaid with command line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/colorfulnotion/mosrun/breakpoints"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/memory"
)

// Config is one run's settings. The yaml names match the flag names.
type Config struct {
	Verbosity   string   `yaml:"verbosity"`
	Modules     []string `yaml:"modules"`
	LogFile     string   `yaml:"log"`
	LogJSON     bool     `yaml:"log-json"`
	SearchPath  []string `yaml:"search-path"`
	StdoutRaw   bool     `yaml:"stdout-raw"`
	CheckBounds bool     `yaml:"check-bounds"`
	CheckHeap   bool     `yaml:"check-heap"`
	Heap        string   `yaml:"heap"`
	Breakpoints []string `yaml:"breakpoints"`
	Console     bool     `yaml:"console"`
	History     string   `yaml:"history"`
}

func Default() *Config {
	return &Config{Verbosity: "warn"}
}

// Load reads a YAML file over the defaults. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := Default()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// Flags are the command line settings bound to a flag set.
type Flags struct {
	fs     *pflag.FlagSet
	path   string
	values Config
}

// BindFlags registers the run flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	v := &f.values
	fs.StringVar(&f.path, "config", "", "YAML settings file")
	fs.StringVar(&v.Verbosity, "verbosity", "warn", "log level: trace, debug, log, warn or err")
	fs.StringSliceVar(&v.Modules, "module", nil, "enable trace and debug output of a module (mem, lowmem, trap, rsrc, bp, file, cpu, mpw, instr, console)")
	fs.StringVar(&v.LogFile, "log", "", "write the log to a file instead of stderr")
	fs.BoolVar(&v.LogJSON, "log-json", false, "log JSON records")
	fs.StringSliceVar(&v.SearchPath, "path", nil, "directories searched for tools")
	fs.BoolVar(&v.StdoutRaw, "stdout-raw", false, "pass stdout through without line ending conversion")
	fs.BoolVar(&v.CheckBounds, "check-bounds", false, "fault on guest accesses outside the arena")
	fs.BoolVar(&v.CheckHeap, "check-heap", false, "verify the heap after every allocator call")
	fs.StringVar(&v.Heap, "heap", "", "guest memory size, e.g. 16M")
	fs.StringArrayVar(&v.Breakpoints, "break", nil, "breakpoint segment:offset[:label], repeatable")
	fs.BoolVar(&v.Console, "console", false, "open the debug console on breakpoints")
	fs.StringVar(&v.History, "history", "", "debug console history file")
	return f
}

// Resolve loads the --config file, if any, and applies the flags the user
// set on top of it. List flags add to the file's lists.
func (f *Flags) Resolve() (*Config, error) {
	c := Default()
	if f.path != "" {
		var err error
		if c, err = Load(f.path); err != nil {
			return nil, err
		}
	}
	v := &f.values
	set := f.fs.Changed
	if set("verbosity") {
		c.Verbosity = v.Verbosity
	}
	if set("module") {
		c.Modules = append(c.Modules, v.Modules...)
	}
	if set("log") {
		c.LogFile = v.LogFile
	}
	if set("log-json") {
		c.LogJSON = v.LogJSON
	}
	if set("path") {
		c.SearchPath = append(v.SearchPath, c.SearchPath...)
	}
	if set("stdout-raw") {
		c.StdoutRaw = v.StdoutRaw
	}
	if set("check-bounds") {
		c.CheckBounds = v.CheckBounds
	}
	if set("check-heap") {
		c.CheckHeap = v.CheckHeap
	}
	if set("heap") {
		c.Heap = v.Heap
	}
	if set("break") {
		c.Breakpoints = append(c.Breakpoints, v.Breakpoints...)
	}
	if set("console") {
		c.Console = v.Console
	}
	if set("history") {
		c.History = v.History
	}
	return c, c.Validate()
}

// Validate checks the values that are parsed later in the run, so that
// mistakes show up before the tool is loaded.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Verbosity); err != nil {
		return fmt.Errorf("verbosity: %w", err)
	}
	if _, err := c.HeapSize(); err != nil {
		return err
	}
	for _, spec := range c.Breakpoints {
		if _, _, _, err := breakpoints.ParseSpec(spec); err != nil {
			return err
		}
	}
	return nil
}

// HeapSize is the arena size in bytes; an empty setting means the default.
// K, M and G suffixes are binary multiples.
func (c *Config) HeapSize() (uint32, error) {
	s := strings.TrimSpace(c.Heap)
	if s == "" {
		return memory.DefaultSize, nil
	}
	mult := uint64(1)
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		mult = 1 << 10
	case "M":
		mult = 1 << 20
	case "G":
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil || n == 0 || n*mult > 1<<32-1 {
		return 0, fmt.Errorf("heap size %q is not a size below 4G", c.Heap)
	}
	return uint32(n * mult), nil
}
