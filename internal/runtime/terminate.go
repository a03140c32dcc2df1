package runtime

import (
	"context"
	"fmt"
)

// Terminator ends a live child process and waits for it to be reaped.
//
// ForceKill is the only strategy cycler ships: the child receives a single
// uncatchable kill with no grace period. Strategies that signal first and
// escalate later can satisfy the same interface.
type Terminator interface {
	Name() string
	Terminate(ctx context.Context, h Handle) error
}

// ForceKill terminates a child immediately.
type ForceKill struct{}

func (ForceKill) Name() string { return "force-kill" }

// Terminate kills h and blocks until it is reaped or ctx is done. A kill
// error is only returned when the process is still present afterwards.
func (ForceKill) Terminate(ctx context.Context, h Handle) error {
	if h == nil {
		return nil
	}
	select {
	case <-h.Done():
		return nil
	default:
	}

	killErr := h.Kill()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		if killErr != nil {
			return fmt.Errorf("kill pid %d: %w", h.PID(), killErr)
		}
		return fmt.Errorf("wait for pid %d after kill: %w", h.PID(), ctx.Err())
	}
}
