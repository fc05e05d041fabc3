//go:build unix

package navigation

import (
	"os/exec"
	"syscall"
)

// detach moves the opener into its own process group so terminal signals
// aimed at the host do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
