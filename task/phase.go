package task

// Phase is the lifecycle position of a task, independent of the state its Impl is in.
type Phase int

const (
	PhaseUnstarted Phase = iota
	PhaseInitializing
	PhaseRunning
	PhaseIdle
	PhaseFinishing
	PhaseAborting
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseUnstarted:
		return "unstarted"
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseIdle:
		return "idle"
	case PhaseFinishing:
		return "finishing"
	case PhaseAborting:
		return "aborting"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Disposition is returned by a finish hook to tell the owning Engine what to do with a terminated task.
type Disposition int

const (
	// Dispose drops the task from its Engine. A disposed task cannot be run again.
	Dispose Disposition = iota
	// Reusable keeps the task so that it may be run again.
	Reusable
)

func (d Disposition) String() string {
	if d == Reusable {
		return "reusable"
	}
	return "dispose"
}
