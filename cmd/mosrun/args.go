package main

import (
	"fmt"
	"path/filepath"
	"strings"
)

const progName = "mosrun"

// translateArgs rewrites the classic command line into cobra's. Triple-dash
// options may appear anywhere among the tool's arguments and become mosrun
// flags in front of the tool; "---run" selects the run command. When mosrun
// is started through a link named after a tool, that tool is run.
func translateArgs(argv0 string, args []string) ([]string, error) {
	alias := strings.TrimSuffix(filepath.Base(argv0), ".exe")
	aliased := alias != progName && alias != ""

	run := aliased
	if !aliased && len(args) > 0 && args[0] == "---run" {
		run = true
		args = args[1:]
	}

	var flags, rest []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "---") {
			rest = append(rest, arg)
			continue
		}
		flag, err := tripleDash(arg)
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	if !run && len(flags) == 0 {
		return args, nil
	}

	out := []string{"run"}
	if !run && len(rest) > 0 && rest[0] == "run" {
		rest = rest[1:]
	}
	out = append(out, flags...)
	if aliased {
		out = append(out, alias)
	}
	return append(out, rest...), nil
}

func tripleDash(arg string) (string, error) {
	name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "---"), "=")
	switch name {
	case "help", "stdout-raw":
		if !hasValue {
			return "--" + name, nil
		}
	case "verbosity", "log":
		if hasValue && value != "" {
			return "--" + name + "=" + value, nil
		}
	}
	return "", fmt.Errorf("unknown command line argument %q", arg)
}
