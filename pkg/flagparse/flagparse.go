package flagparse

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/buildinfo"
)

// ConfigKey is the map key under which the configuration file path is returned.
const ConfigKey = "config"

// usageOutput is where help text is written. Tests swap it out.
var usageOutput io.Writer = os.Stdout

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command
// and its arguments. The CLI takes no flags: a single positional argument is the
// configuration file path, optionally preceded by the word "backup".
//
//	pgl-cloudbackup <config>
//	pgl-cloudbackup backup <config>
//	pgl-cloudbackup version
//
// An empty argument list or a help word prints usage and returns None. A bare first
// argument equal to a command word is always the command, never a file name.
func Parse(args []string) (Command, map[string]interface{}, error) {
	if len(args) == 0 {
		printUsage(usageOutput)
		return None, nil, nil
	}

	first := args[0]
	switch strings.ToLower(first) {
	case "help", "-h", "-help", "--help":
		printUsage(usageOutput)
		return None, nil, nil
	case Version.String():
		if len(args) > 1 {
			return None, nil, fmt.Errorf("the %s command takes no arguments, got %d", Version, len(args)-1)
		}
		return Version, nil, nil
	case Backup.String():
		// A lone "backup" with no path is a missing argument, not a config file named "backup".
		if len(args) != 2 {
			return None, nil, fmt.Errorf("the %s command expects exactly one configuration file path, got %d arguments", Backup, len(args)-1)
		}
		return configArgs(args[1])
	}

	if strings.HasPrefix(first, "-") {
		return None, nil, fmt.Errorf("flags are not supported: %q", first)
	}
	if len(args) != 1 {
		return None, nil, fmt.Errorf("expected exactly one configuration file path, got %d arguments", len(args))
	}
	return configArgs(first)
}

func configArgs(path string) (Command, map[string]interface{}, error) {
	if strings.TrimSpace(path) == "" {
		return None, nil, fmt.Errorf("configuration file path cannot be empty")
	}
	return Backup, map[string]interface{}{ConfigKey: path}, nil
}

// printUsage prints the main help message.
func printUsage(w io.Writer) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(w, "Archive selected files by day and sync them to a remote store.\n\n")
	fmt.Fprintf(w, "Usage: %s <config-file>\n", execName)
	fmt.Fprintf(w, "       %s backup <config-file>\n", execName)
	fmt.Fprintf(w, "       %s version\n\n", execName)
	fmt.Fprintf(w, "The configuration file may be JSON (.json), YAML (.yaml, .yml) or TOML (.toml).\n")
	fmt.Fprintf(w, "A configuration file named \"version\", \"backup\" or \"help\" must be passed with a\n")
	fmt.Fprintf(w, "directory (for example ./version) or after the backup command.\n")
}
