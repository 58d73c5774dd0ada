package supervisor

import "time"

// Action is what the supervisor does after a child exit.
type Action int

const (
	ActionNone    Action = iota // stay idle
	ActionRestart               // launch again after Decision.Delay
	ActionFatal                 // give up and terminate the supervisor
)

func (a Action) String() string {
	switch a {
	case ActionRestart:
		return "restart"
	case ActionFatal:
		return "fatal"
	default:
		return "none"
	}
}

// Reason labels why a restart was scheduled.
type Reason string

const (
	ReasonStartup Reason = "startup" // child died before it was ever ready
	ReasonCrash   Reason = "crash"   // child died after it was ready
)

// Policy is the restart policy. Failures before readiness are retried at most
// MaxRestarts times; a crash after readiness resets the counter, so a server
// that has proven it can start is retried indefinitely.
type Policy struct {
	MaxRestarts  int
	StartupDelay time.Duration
	CrashDelay   time.Duration
}

// DefaultPolicy returns 3 startup retries 5s apart and a 3s delay after crashes.
func DefaultPolicy() Policy {
	return Policy{MaxRestarts: 3, StartupDelay: 5 * time.Second, CrashDelay: 3 * time.Second}
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Action       Action
	Reason       Reason
	Delay        time.Duration
	RestartCount int // counter value after the decision
}

// Decide evaluates an exit with the given code. ready reports whether the run
// reached readiness; restartCount is the counter before this exit. The checks
// run in priority order and the first match wins.
func (p Policy) Decide(code int, ready bool, restartCount int) Decision {
	switch {
	case code != 0 && restartCount < p.MaxRestarts && !ready:
		return Decision{Action: ActionRestart, Reason: ReasonStartup, Delay: p.StartupDelay, RestartCount: restartCount + 1}
	case code != 0 && ready:
		return Decision{Action: ActionRestart, Reason: ReasonCrash, Delay: p.CrashDelay, RestartCount: 0}
	case restartCount >= p.MaxRestarts:
		return Decision{Action: ActionFatal, RestartCount: restartCount}
	default:
		return Decision{Action: ActionNone, RestartCount: restartCount}
	}
}
