// Package flagx contains helpers for parsing a subset of command-line flags
// without interfering with flags owned by other components.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns a slice of command-line arguments that only contains
// the allowed flags (and their values) specified in allowedFlags.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--flag=value" or "-f=value"
		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			// the next token is a value unless it looks like another flag
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags extracts the config file path provided via the -c or
// -config flags. If neither is present, an empty string is returned.
func JsonConfigFlags() string {
	return stringFlag("json", []string{"-c", "-config"}, "c", "config")
}

// EnvFileFlags extracts the dotenv file path provided via the -env flag.
// If it is absent, an empty string is returned.
func EnvFileFlags() string {
	return stringFlag("env", []string{"-env", "--env"}, "env")
}

// stringFlag parses a single string flag that may be spelled in several ways;
// the last occurrence wins.
func stringFlag(set string, allowed []string, names ...string) string {
	var value string
	args := FilterArgs(os.Args[1:], allowed)
	fs := flag.NewFlagSet(set, flag.ContinueOnError)
	for _, n := range names {
		fs.StringVar(&value, n, "", "path to "+set+" file")
	}
	_ = fs.Parse(args)
	return value
}
