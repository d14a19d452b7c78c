package flagparse

import (
	"fmt"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/util"
)

// Command defines the command to execute.
type Command int

const (
	None Command = iota
	Backup
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Backup:  "backup",
	Version: "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

// ParseCommand maps a command word to its Command. "none" is not a user-facing word.
func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'backup' or 'version'", s)
}
