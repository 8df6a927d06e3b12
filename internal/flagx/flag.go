// Package flagx lets several flag sets share os.Args, each parsing only
// the flags it owns.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps the allowed flags of args and their values. A value is
// either joined with '=' or is the next argument when that does not start
// with '-'. Names in switches are boolean and never take the next argument.
func FilterArgs(args []string, allowed []string, switches ...string) []string {
	names := make(map[string]bool, len(allowed)+len(switches))
	for _, f := range allowed {
		names[f] = true
	}
	for _, f := range switches {
		names[f] = false
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := names[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		takesValue, ok := names[arg]
		if !ok {
			continue
		}
		filtered = append(filtered, arg)
		if takesValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigFile returns the path given with -c or -config in os.Args, or "".
func ConfigFile() string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(os.Args[1:], []string{"-c", "-config"}))

	return path
}
