package engine

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/Paintersrp/cycler/internal/report"
	"github.com/Paintersrp/cycler/internal/runtime"
)

type fakeInstance struct {
	pid  int
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	status     runtime.ExitStatus
	kills      int
	killErr    error
	ignoreKill bool
}

func newFakeInstance(pid int) *fakeInstance {
	return &fakeInstance{pid: pid, done: make(chan struct{})}
}

func (f *fakeInstance) PID() int              { return f.pid }
func (f *fakeInstance) Done() <-chan struct{} { return f.done }

func (f *fakeInstance) Status() runtime.ExitStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeInstance) Kill() error {
	f.mu.Lock()
	f.kills++
	ignore, err := f.ignoreKill, f.killErr
	f.mu.Unlock()
	if !ignore {
		f.exit(runtime.ExitStatus{Code: -1, Signaled: true, Signal: syscall.Signal(9)})
	}
	return err
}

func (f *fakeInstance) exit(st runtime.ExitStatus) {
	f.once.Do(func() {
		f.mu.Lock()
		f.status = st
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeInstance) exited() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeInstance) killCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kills
}

// fakeRuntime hands out fakeInstances in order, creating running ones on
// demand, and records whether a start ever overlapped a live instance.
type fakeRuntime struct {
	mu       sync.Mutex
	prepared []*fakeInstance
	started  []*fakeInstance
	startErr error
	overlap  bool
	nextPID  int
	lastSpec runtime.StartSpec
}

func newFakeRuntime(prepared ...*fakeInstance) *fakeRuntime {
	return &fakeRuntime{prepared: prepared, nextPID: 1000}
}

func (f *fakeRuntime) Start(ctx context.Context, spec runtime.StartSpec) (runtime.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	for _, inst := range f.started {
		if !inst.exited() {
			f.overlap = true
		}
	}
	var inst *fakeInstance
	if len(f.prepared) > 0 {
		inst = f.prepared[0]
		f.prepared = f.prepared[1:]
	} else {
		f.nextPID++
		inst = newFakeInstance(f.nextPID)
	}
	f.lastSpec = spec
	f.started = append(f.started, inst)
	return inst, nil
}

func (f *fakeRuntime) instance(t *testing.T, i int) *fakeInstance {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.started) {
		t.Fatalf("instance %d not started (have %d)", i, len(f.started))
	}
	return f.started[i]
}

func (f *fakeRuntime) current() *fakeInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.started) == 0 {
		return nil
	}
	return f.started[len(f.started)-1]
}

func (f *fakeRuntime) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeRuntime) overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

type fakeTimer struct {
	d       time.Duration
	c       chan time.Time
	stopped atomic.Bool
}

func (f *fakeTimer) C() <-chan time.Time { return f.c }

func (f *fakeTimer) Stop() bool {
	return !f.stopped.Swap(true)
}

func (f *fakeTimer) fire() {
	select {
	case f.c <- time.Now():
	default:
	}
}

// fakeClock replaces the supervisor's interval timer. Each armed timer is
// published on armed so tests can wait for a cycle to reach its race.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	armed  chan *fakeTimer
	onArm  func(*fakeTimer)
}

func newFakeClock() *fakeClock {
	return &fakeClock{armed: make(chan *fakeTimer, 64)}
}

func (c *fakeClock) newTimer(d time.Duration) cycleTimer {
	t := &fakeTimer{d: d, c: make(chan time.Time, 1)}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	onArm := c.onArm
	c.mu.Unlock()
	if onArm != nil {
		onArm(t)
	}
	c.armed <- t
	return t
}

func (c *fakeClock) await(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case tm := <-c.armed:
		return tm
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the interval timer to be armed")
		return nil
	}
}

func (c *fakeClock) all() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

type testHarness struct {
	sup    *Supervisor
	rt     *fakeRuntime
	clock  *fakeClock
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	events chan Event
}

func newHarness(t *testing.T, opts Options, rt *fakeRuntime, verbosity report.Verbosity) *testHarness {
	t.Helper()
	if opts.Command == nil {
		opts.Command = []string{"sleep", "20"}
	}
	if opts.Interval == 0 {
		opts.Interval = 10 * time.Second
	}
	events := make(chan Event, 256)
	opts.Events = events

	var stdout, stderr bytes.Buffer
	rep := report.New(report.Options{
		Verbosity: verbosity,
		Stdout:    &stdout,
		Stderr:    &stderr,
		Session:   "test",
	})
	clock := newFakeClock()
	sup := New(opts, rt, rep)
	sup.newTimer = clock.newTimer
	return &testHarness{sup: sup, rt: rt, clock: clock, stdout: &stdout, stderr: &stderr, events: events}
}

type runResult struct {
	res Result
	err error
}

func (h *testHarness) runAsync(ctx context.Context) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		res, err := h.sup.Run(ctx)
		done <- runResult{res: res, err: err}
	}()
	return done
}

func awaitRun(t *testing.T, done <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not return")
		return runResult{}
	}
}

// drainTypes returns the event types buffered so far. Only call it once Run
// has returned.
func drainTypes(events chan Event) ([]EventType, []Event) {
	var types []EventType
	var all []Event
	for {
		select {
		case evt := <-events:
			types = append(types, evt.Type)
			all = append(all, evt)
		default:
			return types, all
		}
	}
}
