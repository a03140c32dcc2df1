package engine

import (
	"time"

	"github.com/Paintersrp/cycler/internal/runtime"
)

// EventType captures the lifecycle notifications emitted by the supervisor.
type EventType string

const (
	EventTypeSpawned     EventType = "spawned"
	EventTypeSpawnFailed EventType = "spawn_failed"
	EventTypeKilled      EventType = "killed"
	EventTypeExited      EventType = "exited"
	EventTypeRestarting  EventType = "restarting"
	EventTypeFinished    EventType = "finished"
	EventTypeInterrupted EventType = "interrupted"
)

// Event represents a single lifecycle notification. Exactly one event is
// emitted per reported action, in the order the actions happen.
type Event struct {
	Timestamp time.Time
	Cycle     int
	PID       int
	Type      EventType
	Message   string
	Status    runtime.ExitStatus
	Err       error
	Reason    string
}

const (
	ReasonInterval    = "interval_elapsed"
	ReasonEarlyExit   = "early_exit"
	ReasonDeadlineTie = "exit_at_deadline"
	ReasonNoRestart   = "restart_disabled"
	ReasonShutdown    = "shutdown"
	ReasonLeftRunning = "left_running"
	ReasonKillFailed  = "kill_failed"
)

func sendEvent(events chan<- Event, evt Event) {
	if events == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	events <- evt
}
