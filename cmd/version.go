package cmd

import (
	"fmt"
	"io"
	"os"
)

// versionOutput is where RunVersion prints. Tests swap it out.
var versionOutput io.Writer = os.Stdout

// RunVersion prints the application version.
func RunVersion(appName, appVersion string) error {
	_, err := fmt.Fprintf(versionOutput, "%s version %s\n", appName, appVersion)
	return err
}
