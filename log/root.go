package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	gethlog "github.com/ethereum/go-ethereum/log"
)

var root atomic.Value

func init() {
	root.Store(NewLogger(gethlog.DiscardHandler()))
}

// ParseLevel accepts the mosrun verbosity names (err, warn, log, debug,
// trace) as well as the slog ones.
func ParseLevel(lvl string) (slog.Level, error) {
	switch strings.ToUpper(lvl) {
	case "MAX", "MAXVERBOSITY":
		return levelMaxVerbosity, nil
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "LOG", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERR", "ERROR":
		return LevelError, nil
	case "CRIT", "CRITICAL":
		return LevelCrit, nil
	default:
		return 0, fmt.Errorf("invalid level: %s", lvl)
	}
}

// InitLoggerTo installs the root logger writing to w. Colour is only used
// for terminal output on stderr.
func InitLoggerTo(w io.Writer, logLevel string, json bool) error {
	logLvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	var h slog.Handler
	if json {
		h = gethlog.JSONHandlerWithLevel(w, logLvl)
	} else {
		h = gethlog.NewTerminalHandlerWithLevel(w, logLvl, w == os.Stderr)
	}
	SetDefault(NewLogger(h))
	return nil
}

func SetDefault(l Logger) {
	root.Store(l)
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

func Root() Logger {
	return root.Load().(Logger)
}

// TraceEnabled reports whether a Trace call for module would be emitted.
// Callers use it to skip expensive formatting on hot paths.
func TraceEnabled(module string) bool {
	return modules.enabled(module) && Root().Enabled(context.Background(), LevelTrace)
}

// Trace and Debug are dropped unless the module is enabled.
func Trace(module string, msg string, ctx ...interface{}) {
	if !modules.enabled(module) {
		return
	}
	Root().Write(LevelTrace, module, msg, ctx...)
}

func Debug(module string, msg string, ctx ...interface{}) {
	if !modules.enabled(module) {
		return
	}
	Root().Write(LevelDebug, module, msg, ctx...)
}

func Info(module string, msg string, ctx ...interface{}) {
	Root().Write(LevelInfo, module, msg, ctx...)
}

func Warn(module string, msg string, ctx ...interface{}) {
	Root().Write(LevelWarn, module, msg, ctx...)
}

func Error(module string, msg string, ctx ...interface{}) {
	Root().Write(LevelError, module, msg, ctx...)
}
