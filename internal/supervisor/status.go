package supervisor

import "time"

// State is the supervisor's lifecycle state.
type State string

const (
	StateIdle        State = "idle"        // no child; possibly waiting for a restart
	StateRunning     State = "running"     // a child is live
	StateTerminating State = "terminating" // shutdown or fatal, terminal
)

// Status is a point-in-time snapshot of the supervisor, safe to read from any
// goroutine.
type Status struct {
	State          State     `json:"state"`
	Run            int       `json:"run"`
	PID            int       `json:"pid,omitempty"`
	Ready          bool      `json:"ready"`
	RestartCount   int       `json:"restart_count"`
	MaxRestarts    int       `json:"max_restarts"`
	RestartPending bool      `json:"restart_pending"`
	LastExitCode   *int      `json:"last_exit_code,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	ReadyAt        time.Time `json:"ready_at,omitzero"`
}
