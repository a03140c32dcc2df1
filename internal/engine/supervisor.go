package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	units "github.com/docker/go-units"

	"github.com/Paintersrp/cycler/internal/cliutil"
	"github.com/Paintersrp/cycler/internal/exitcode"
	"github.com/Paintersrp/cycler/internal/metrics"
	"github.com/Paintersrp/cycler/internal/report"
	"github.com/Paintersrp/cycler/internal/runtime"
)

const instanceStopTimeout = 5 * time.Second

// Options configures a Supervisor.
type Options struct {
	Command []string
	Dir     string
	Env     map[string]string

	// Interval is the lifetime granted to each child before it is killed.
	Interval time.Duration

	// Restart respawns children that exit before Interval elapses.
	Restart bool

	// LeaveRunning detaches the live child on cancellation instead of
	// killing it.
	LeaveRunning bool

	// Terminator ends children whose interval elapsed. Defaults to
	// runtime.ForceKill.
	Terminator runtime.Terminator

	// Events, when non-nil, receives one Event per reported action. Sends
	// block, so the channel must be drained.
	Events chan<- Event
}

// Outcome classifies how a cycle or a whole run ended.
type Outcome int

const (
	OutcomeTimedOut Outcome = iota
	OutcomeExitedEarly
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeExitedEarly:
		return "exited_early"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

// CycleOutcome is the resolution of one spawn-to-termination cycle.
type CycleOutcome struct {
	Outcome Outcome
	Status  runtime.ExitStatus

	// Reason distinguishes a plain early exit from one observed together
	// with the deadline, and a confirmed kill from an unconfirmed one.
	Reason string
}

// Result summarises a finished Run.
type Result struct {
	// Outcome is OutcomeExitedEarly when the child exited and no restart
	// was configured, or OutcomeInterrupted when the context ended the run.
	Outcome Outcome

	// Status is the final child's exit status when Outcome is
	// OutcomeExitedEarly.
	Status runtime.ExitStatus

	Cycles     int
	Kills      int
	EarlyExits int
}

// ExitCode maps the result onto the status cycler itself should exit with.
func (r Result) ExitCode() int {
	switch r.Outcome {
	case OutcomeExitedEarly:
		return r.Status.ExitCode()
	case OutcomeInterrupted:
		return exitcode.Interrupted
	default:
		return exitcode.Abnormal
	}
}

// SpawnError reports that the command could not be launched. Spawn failures
// end the run; they are never retried.
type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", commandName(e.Command), e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExitCode returns the shell convention for launch failures: 127 for a
// missing command and 126 for one that cannot be executed, directories
// included.
func (e *SpawnError) ExitCode() int {
	switch {
	case errors.Is(e.Err, exec.ErrNotFound), errors.Is(e.Err, fs.ErrNotExist):
		return exitcode.NotFound
	case errors.Is(e.Err, fs.ErrPermission), errors.Is(e.Err, syscall.EISDIR):
		return exitcode.PermissionDenied
	default:
		return exitcode.Abnormal
	}
}

type cycleTimer interface {
	C() <-chan time.Time
	Stop() bool
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

func newRealTimer(d time.Duration) cycleTimer {
	return realTimer{t: time.NewTimer(d)}
}

// Supervisor runs one child at a time, killing it every Interval and
// deciding whether to respawn it when it exits on its own.
type Supervisor struct {
	opts       Options
	runtime    runtime.Runtime
	report     *report.Reporter
	terminator runtime.Terminator

	newTimer    func(time.Duration) cycleTimer
	now         func() time.Time
	stopTimeout time.Duration
}

// New constructs a Supervisor. A nil reporter discards all output.
func New(opts Options, rt runtime.Runtime, rep *report.Reporter) *Supervisor {
	if rep == nil {
		rep = report.Discard()
	}
	term := opts.Terminator
	if term == nil {
		term = runtime.ForceKill{}
	}
	opts.Command = append([]string(nil), opts.Command...)
	return &Supervisor{
		opts:        opts,
		runtime:     rt,
		report:      rep,
		terminator:  term,
		newTimer:    newRealTimer,
		now:         time.Now,
		stopTimeout: instanceStopTimeout,
	}
}

// Run supervises the command until the child exits early without a restart
// policy, a spawn fails, or ctx is cancelled. Cancellation is observed both
// while a child is live and between cycles; the live child is killed unless
// LeaveRunning is set.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var res Result
	if len(s.opts.Command) == 0 {
		return res, errors.New("supervisor requires a command")
	}
	if s.opts.Interval <= 0 {
		return res, fmt.Errorf("supervisor requires a positive interval, got %s", s.opts.Interval)
	}
	if s.runtime == nil {
		return res, errors.New("supervisor requires a runtime")
	}

	cmdline := commandLine(cliutil.RedactArgs(s.opts.Command))
	s.report.Verbosef("supervising %s every %s (restart on early exit: %t, termination: %s)",
		cmdline, s.opts.Interval, s.opts.Restart, s.terminator.Name())

	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			s.announce(Event{Cycle: cycle, Type: EventTypeInterrupted, Reason: ReasonShutdown, Err: err},
				"interrupted, not starting %s again", cmdline)
			res.Outcome = OutcomeInterrupted
			return res, err
		}

		s.report.SetCycle(cycle)
		s.report.Debugf("cycle %d: spawning", cycle)
		handle, err := s.runtime.Start(ctx, runtime.StartSpec{
			Command: s.opts.Command,
			Dir:     s.opts.Dir,
			Env:     s.opts.Env,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				s.announce(Event{Cycle: cycle, Type: EventTypeInterrupted, Reason: ReasonShutdown, Err: ctxErr},
					"interrupted, not starting %s again", cmdline)
				res.Outcome = OutcomeInterrupted
				return res, ctxErr
			}
			spawnErr := &SpawnError{Command: s.opts.Command, Err: err}
			metrics.IncrementSpawnFailure()
			s.announce(Event{Cycle: cycle, Type: EventTypeSpawnFailed, Err: spawnErr}, "%v", spawnErr)
			return res, spawnErr
		}

		res.Cycles++
		pid := handle.PID()
		started := s.now()
		metrics.ChildStarted()
		s.announce(Event{Cycle: cycle, PID: pid, Type: EventTypeSpawned}, "started %s (pid %d)", cmdline, pid)

		out, err := s.superviseCycle(ctx, handle, cycle)
		ran := s.now().Sub(started)
		// A child left running on interrupt is still up.
		if out.Reason != ReasonLeftRunning {
			metrics.ChildStopped(ran)
		}

		switch out.Outcome {
		case OutcomeTimedOut:
			res.Kills++
			metrics.IncrementKill()
			metrics.IncrementRestart(ReasonInterval)
			s.announce(Event{Cycle: cycle, PID: pid, Type: EventTypeRestarting, Reason: ReasonInterval},
				"restarting %s", cmdline)

		case OutcomeExitedEarly:
			res.EarlyExits++
			metrics.IncrementEarlyExit(out.Status.Success())
			s.announce(Event{Cycle: cycle, PID: pid, Type: EventTypeExited, Status: out.Status, Reason: out.Reason},
				"pid %d exited with %s after %s", pid, out.Status, humanDuration(ran))

			if !s.opts.Restart {
				s.announce(Event{Cycle: cycle, PID: pid, Type: EventTypeFinished, Status: out.Status, Reason: ReasonNoRestart},
					"not restarting %s (enable --restart to respawn on early exit), exiting with status %d",
					cmdline, out.Status.ExitCode())
				res.Outcome = OutcomeExitedEarly
				res.Status = out.Status
				return res, nil
			}
			metrics.IncrementRestart(ReasonEarlyExit)
			s.announce(Event{Cycle: cycle, PID: pid, Type: EventTypeRestarting, Reason: ReasonEarlyExit},
				"restarting %s", cmdline)

		case OutcomeInterrupted:
			res.Outcome = OutcomeInterrupted
			return res, err
		}
	}
}

// superviseCycle races the interval timer against the child's exit. The
// timer only exists while the child is live and is stopped on every return
// path.
func (s *Supervisor) superviseCycle(ctx context.Context, h runtime.Handle, cycle int) (CycleOutcome, error) {
	timer := s.newTimer(s.opts.Interval)
	defer timer.Stop()
	s.report.Debugf("cycle %d: timer armed for %s", cycle, s.opts.Interval)

	select {
	case <-h.Done():
		s.report.Debugf("cycle %d: child exited before the timer", cycle)
		return CycleOutcome{Outcome: OutcomeExitedEarly, Status: h.Status(), Reason: ReasonEarlyExit}, nil

	case <-timer.C():
		// An exit that is already observable wins over the deadline, so a
		// reaped process is never killed.
		select {
		case <-h.Done():
			s.report.Debugf("cycle %d: timer fired but pid %d had already exited, treating as early exit", cycle, h.PID())
			return CycleOutcome{Outcome: OutcomeExitedEarly, Status: h.Status(), Reason: ReasonDeadlineTie}, nil
		default:
		}
		s.report.Verbosef("interval of %s elapsed for pid %d", s.opts.Interval, h.PID())
		evt := Event{Cycle: cycle, PID: h.PID(), Type: EventTypeKilled, Reason: ReasonInterval}
		if err := s.terminate(h, cycle); err != nil {
			evt.Reason = ReasonKillFailed
			evt.Err = err
		}
		evt.Status = h.Status()
		s.announce(evt, "killed pid %d after %s", h.PID(), s.opts.Interval)
		return CycleOutcome{Outcome: OutcomeTimedOut, Status: evt.Status, Reason: evt.Reason}, nil

	case <-ctx.Done():
		s.report.Debugf("cycle %d: cancellation observed with pid %d live", cycle, h.PID())
		if s.opts.LeaveRunning {
			s.announce(Event{Cycle: cycle, PID: h.PID(), Type: EventTypeInterrupted, Reason: ReasonLeftRunning, Err: ctx.Err()},
				"interrupted, leaving pid %d running", h.PID())
			return CycleOutcome{Outcome: OutcomeInterrupted, Reason: ReasonLeftRunning}, ctx.Err()
		}
		_ = s.terminate(h, cycle)
		s.announce(Event{Cycle: cycle, PID: h.PID(), Type: EventTypeInterrupted, Status: h.Status(), Reason: ReasonShutdown, Err: ctx.Err()},
			"interrupted, killed pid %d", h.PID())
		return CycleOutcome{Outcome: OutcomeInterrupted, Status: h.Status(), Reason: ReasonShutdown}, ctx.Err()
	}
}

// terminate applies the termination strategy. Failures are absorbed: the
// process is treated as gone and supervision carries on.
func (s *Supervisor) terminate(h runtime.Handle, cycle int) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()
	s.report.Debugf("cycle %d: %s pid %d", cycle, s.terminator.Name(), h.PID())
	if err := s.terminator.Terminate(ctx, h); err != nil {
		s.report.Verbosef("could not confirm termination of pid %d: %v; treating it as gone", h.PID(), err)
		return err
	}
	s.report.Debugf("cycle %d: pid %d reaped (%s)", cycle, h.PID(), h.Status())
	return nil
}

// announce reports an action at normal level and emits the matching event
// carrying the same text.
func (s *Supervisor) announce(evt Event, format string, args ...any) {
	evt.Message = fmt.Sprintf(format, args...)
	s.report.Emit(report.LevelNormal, evt.Message)
	s.emit(evt)
}

func (s *Supervisor) emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now()
	}
	sendEvent(s.opts.Events, evt)
}

func commandName(cmd []string) string {
	if len(cmd) == 0 {
		return "<empty command>"
	}
	return cmd[0]
}

func commandLine(cmd []string) string {
	parts := make([]string, len(cmd))
	for i, arg := range cmd {
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'") {
			parts[i] = strconv.Quote(arg)
		} else {
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}

func humanDuration(d time.Duration) string {
	return strings.ToLower(units.HumanDuration(d))
}
