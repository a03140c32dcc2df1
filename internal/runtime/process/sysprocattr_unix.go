//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureCmdSysProcAttr puts the child in a new process group whose id
// equals its pid, which is what Kill signals.
func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
