package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"github.com/Paintersrp/cycler/internal/runtime"
)

type runtimeImpl struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Option customises the process runtime.
type Option func(*runtimeImpl)

// WithStdio overrides the streams handed to children. Nil values inherit the
// supervisor's own streams.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *runtimeImpl) {
		if stdin != nil {
			r.stdin = stdin
		}
		if stdout != nil {
			r.stdout = stdout
		}
		if stderr != nil {
			r.stderr = stderr
		}
	}
}

// New constructs a runtime that executes commands as local processes.
func New(opts ...Option) runtime.Runtime {
	r := &runtimeImpl{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *runtimeImpl) Start(ctx context.Context, spec runtime.StartSpec) (runtime.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("process runtime requires a command")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	// The child's lifetime is managed through Kill, not the context, so that
	// the supervisor decides what happens to it on shutdown.
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), spec.Env)
	}
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command[0], err)
	}

	inst := &processInstance{
		cmd:  cmd,
		pid:  cmd.Process.Pid,
		done: make(chan struct{}),
	}
	go inst.wait()
	return inst, nil
}

func mergeEnv(base []string, overrides map[string]string) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := append([]string(nil), base...)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}

type processInstance struct {
	cmd    *exec.Cmd
	pid    int
	done   chan struct{}
	status runtime.ExitStatus
}

func (p *processInstance) wait() {
	err := p.cmd.Wait()
	p.status = statusFromWait(p.cmd.ProcessState, err)
	close(p.done)
}

func (p *processInstance) PID() int { return p.pid }

func (p *processInstance) Done() <-chan struct{} { return p.done }

func (p *processInstance) Status() runtime.ExitStatus {
	select {
	case <-p.done:
		return p.status
	default:
		return runtime.ExitStatus{Code: -1, Err: errors.New("process still running")}
	}
}

func (p *processInstance) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func statusFromWait(state *os.ProcessState, waitErr error) runtime.ExitStatus {
	if state == nil {
		if waitErr == nil {
			waitErr = errors.New("no process state")
		}
		return runtime.ExitStatus{Code: -1, Err: waitErr}
	}
	status := runtime.ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signaled = true
		status.Signal = ws.Signal()
		status.Code = -1
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		status.Err = waitErr
	}
	return status
}
