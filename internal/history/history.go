// Package history records the supervisor's run lifecycle (spawns, readiness,
// exits, restarts) to an external store.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventSpawnFailed EventType = "spawn_failed"
	EventReady       EventType = "ready"
	EventExit        EventType = "exit"
	EventRestart     EventType = "restart"
	EventFatal       EventType = "fatal"
	EventShutdown    EventType = "shutdown"
)

// Event is one lifecycle event of a child run.
type Event struct {
	Type         EventType `json:"type"`
	OccurredAt   time.Time `json:"occurred_at"`
	Run          int       `json:"run"`
	PID          int       `json:"pid,omitempty"`
	ExitCode     int       `json:"exit_code"` // meaningful for exit events only
	RestartCount int       `json:"restart_count"`
	Detail       string    `json:"detail,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader is implemented by sinks that can return recorded events.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
