// Package flagx lets several flag sets share one command line: each parser
// picks out only the flags it owns and ignores the rest.
package flagx

import (
	"flag"
	"io"
	"os"
	"strconv"
	"strings"
)

func flagName(arg string) string {
	return strings.TrimLeft(arg, "-")
}

// looksLikeValue reports whether arg can be the value of a preceding flag:
// anything that is not itself a flag, negative numbers included.
func looksLikeValue(arg string) bool {
	if !strings.HasPrefix(arg, "-") {
		return true
	}
	_, err := strconv.ParseFloat(arg, 64)
	return err == nil
}

// FilterArgs keeps the flags named in allowed (with or without leading
// dashes, so "c", "-c" and "--c" are the same flag) together with their
// values. Both "-c conf.json" and "--c=conf.json" are understood. Everything
// after a bare "--" is ignored.
func FilterArgs(args []string, allowed ...string) []string {
	names := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		names[flagName(f)] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name, _, hasValue := strings.Cut(arg, "=")
		if _, ok := names[flagName(name)]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if !hasValue && i+1 < len(args) && looksLikeValue(args[i+1]) {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// ConfigPath returns the config file given with -c or -config in args.
// Without either flag it falls back to the environment variable envVar
// (an empty envVar disables the fallback).
func ConfigPath(args []string, envVar string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(FilterArgs(args, "c", "config"))

	if path == "" && envVar != "" {
		path = os.Getenv(envVar)
	}
	return path
}
