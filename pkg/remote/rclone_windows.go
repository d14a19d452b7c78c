//go:build windows

package remote

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// configureCommand starts rclone in a new process group so a console interrupt
// aimed at us is not delivered to it twice; cancellation kills the process.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	cmd.WaitDelay = 5 * time.Second
}
