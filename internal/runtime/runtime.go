package runtime

import (
	"context"
	"fmt"
	"syscall"

	"github.com/Paintersrp/cycler/internal/exitcode"
)

// StartSpec describes the command a runtime should launch.
type StartSpec struct {
	Command []string
	Dir     string
	Env     map[string]string
}

// Handle represents one launched child process. A Handle is owned by a single
// caller and is never reused once the process has exited.
type Handle interface {
	// PID returns the operating system process id.
	PID() int

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// Status returns the exit status. It is only meaningful after Done is
	// closed.
	Status() ExitStatus

	// Kill forcefully terminates the process without a grace period.
	// Killing a process that is already gone is not an error.
	Kill() error
}

// Runtime launches child processes.
type Runtime interface {
	// Start launches the command and returns a handle to the running
	// process. Failure to launch is returned as an error and no handle is
	// created.
	Start(ctx context.Context, spec StartSpec) (Handle, error)
}

// ExitStatus summarises how a child process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was terminated by a
	// signal or the code is unknown.
	Code int

	Signaled bool
	Signal   syscall.Signal

	// Err holds a wait failure unrelated to the child's own exit code.
	Err error
}

// Success reports whether the child exited with status zero.
func (s ExitStatus) Success() bool {
	return s.Err == nil && !s.Signaled && s.Code == 0
}

// ExitCode maps the status onto a code suitable for os.Exit.
func (s ExitStatus) ExitCode() int {
	switch {
	case s.Signaled:
		return exitcode.FromSignal(int(s.Signal))
	case s.Code >= 0 && s.Err == nil:
		return s.Code
	default:
		return exitcode.Abnormal
	}
}

func (s ExitStatus) String() string {
	switch {
	case s.Signaled:
		return fmt.Sprintf("signal %s", s.Signal)
	case s.Err != nil:
		return fmt.Sprintf("unknown status (%v)", s.Err)
	case s.Code < 0:
		return "unknown status"
	default:
		return fmt.Sprintf("exit status %d", s.Code)
	}
}
