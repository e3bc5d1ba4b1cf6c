package forward

// Status is the runtime state of a forward as seen by observers.
type Status string

const (
	// StatusDisabled means no process is wanted or running.
	StatusDisabled Status = "disabled"
	// StatusActive means a kubectl process is registered for the forward.
	StatusActive Status = "active"
	// StatusFailed means the last process ended in a way that needs the user
	// to start the forward again. Its log lines are kept for diagnosis.
	StatusFailed Status = "failed"
)

// ExitAction is the decision taken when a forward's process terminates.
type ExitAction int

const (
	// ExitIgnore leaves the forward untouched (clean exit or intentional stop).
	ExitIgnore ExitAction = iota
	// ExitRestart asks for a fresh process for the same forward.
	ExitRestart
	// ExitFail marks the forward failed and disables it.
	ExitFail
)

// String makes ExitAction satisfy the fmt.Stringer interface.
func (a ExitAction) String() string {
	switch a {
	case ExitIgnore:
		return "ignore"
	case ExitRestart:
		return "restart"
	case ExitFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of a forward and its runtime entry.
// It is safe to hand to other goroutines.
type Snapshot struct {
	Definition Definition `json:"definition"`
	Status     Status     `json:"status"`
	PID        int        `json:"pid,omitempty"`
	Launching  bool       `json:"launching,omitempty"`
	Logs       []string   `json:"logs,omitempty"`
	LogCount   int        `json:"logCount"`
	// LogRun changes every time the log buffer is cleared.
	LogRun int `json:"logRun"`
}
