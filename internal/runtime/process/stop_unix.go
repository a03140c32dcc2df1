//go:build !windows

package process

import (
	"errors"
	"fmt"
	"syscall"
)

// Kill sends SIGKILL to the child's process group. A group that no longer
// exists is treated as already terminated.
func (p *processInstance) Kill() error {
	if p.exited() {
		return nil
	}
	if err := syscall.Kill(-p.pid, syscall.SIGKILL); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("kill process group %d: %w", p.pid, err)
	}
	return nil
}
