// mosrun runs classic Mac OS MPW command line tools on a 68k emulator.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/mosrun/common"
	"github.com/colorfulnotion/mosrun/config"
	"github.com/colorfulnotion/mosrun/debugger"
	"github.com/colorfulnotion/mosrun/emulator"
	"github.com/colorfulnotion/mosrun/fileio"
	"github.com/colorfulnotion/mosrun/log"
	"github.com/colorfulnotion/mosrun/moserrors"
	"github.com/colorfulnotion/mosrun/rsrc"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	args, err := translateArgs(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "mosrun:", err)
		os.Exit(emulator.ExitFatal)
	}
	code := 0
	root := newRootCmd(&code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mosrun:", err)
		if code == 0 {
			code = emulator.ExitFatal
		}
	}
	os.Exit(code)
}

func newRootCmd(code *int) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:           "mosrun [flags] <tool> [tool args...]",
		Short:         "Run MPW tools on an emulated 68k Mac",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	bindRun(rootCmd, code)

	var runCmd = &cobra.Command{
		Use:   "run [flags] <tool> [tool args...]",
		Short: "Run a tool",
		Args:  cobra.MinimumNArgs(1),
	}
	bindRun(runCmd, code)

	var searchPath []string
	var resourcesCmd = &cobra.Command{
		Use:   "resources <tool>",
		Short: "Print the resource map of a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rsrc.ToolPath(args[0], searchPath...)
			fork, err := rsrc.ReadFork(path, nil)
			if err != nil {
				*code = emulator.ExitLoadFailed
				return err
			}
			m, err := rsrc.ParseMap(fork.Data)
			if err != nil {
				*code = emulator.ExitLoadFailed
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), m.Dump(fmt.Sprintf("%s (%s)", path, fork.Origin)))
			return nil
		},
	}
	resourcesCmd.Flags().StringSliceVar(&searchPath, "path", nil, "directories searched for tools")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			commit := Commit
			if commit == "none" {
				commit = common.GetCommitHash()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mosrun %s\n  commit: %s\n  built:  %s\n", Version, commit, BuildTime)
		},
	}

	rootCmd.AddCommand(runCmd, resourcesCmd, versionCmd)
	return rootCmd
}

// bindRun makes cmd run a tool. Flags stop at the tool name so that the
// tool's own options reach it untouched.
func bindRun(cmd *cobra.Command, code *int) {
	cmd.Flags().SetInterspersed(false)
	flags := config.BindFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		cfg, err := flags.Resolve()
		if err != nil {
			*code = emulator.ExitFatal
			return err
		}
		*code, err = runTool(cmd.Context(), cfg, args)
		return err
	}
}

func runTool(ctx context.Context, cfg *config.Config, args []string) (int, error) {
	closeLog, err := setupLogging(cfg)
	if err != nil {
		return emulator.ExitFatal, err
	}
	defer closeLog()

	heap, err := cfg.HeapSize()
	if err != nil {
		return emulator.ExitFatal, err
	}
	opts := emulator.Options{
		HeapSize:    heap,
		CheckBounds: cfg.CheckBounds,
		CheckHeap:   cfg.CheckHeap,
		Streams:     fileio.HostStreams(cfg.StdoutRaw),
		Breakpoints: cfg.Breakpoints,
	}
	if cfg.Console {
		if debugger.IsTerminal() {
			con, err := debugger.New(debugger.Config{HistoryFile: cfg.History, Color: true})
			if err != nil {
				return emulator.ExitFatal, err
			}
			defer con.Close()
			opts.OnBreak = con.Break
		} else {
			log.Warn(log.ConsoleModule, "no terminal, debug console disabled")
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := emulator.Run(ctx, emulator.RunConfig{
		Options:    opts,
		Tool:       args[0],
		Args:       args[1:],
		Env:        os.Environ(),
		SearchPath: cfg.SearchPath,
	}, nil)
	switch {
	case errors.Is(err, moserrors.ErrConsoleQuit):
		return code, nil
	case errors.Is(err, moserrors.ErrCPUStopped):
		log.Warn(log.CPUModule, "stopped by signal")
		return code, nil
	case err != nil:
		log.Error(log.MPWModule, "run failed", "tool", args[0], "code", code, "err", err)
	}
	return code, err
}

func setupLogging(cfg *config.Config) (func(), error) {
	w := os.Stderr
	closeLog := func() {}
	if cfg.LogFile != "" {
		f, err := os.Create(cfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("open log: %w", err)
		}
		w = f
		closeLog = func() { f.Close() }
	}
	if err := log.InitLoggerTo(w, cfg.Verbosity, cfg.LogJSON); err != nil {
		closeLog()
		return nil, err
	}
	if len(cfg.Modules) > 0 {
		log.EnableModules(strings.Join(cfg.Modules, ","))
	}
	log.Debug(log.MPWModule, "logging", "verbosity", cfg.Verbosity, "modules", log.EnabledModules())
	return closeLog, nil
}
