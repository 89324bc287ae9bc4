package common

import "os"

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// Colorize wraps s in color unless NO_COLOR is set.
func Colorize(color, s string) string {
	if os.Getenv("NO_COLOR") != "" {
		return s
	}
	return color + s + ColorReset
}
