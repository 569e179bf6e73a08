package video

// State represents the lifecycle state of a [Runtime].
//
// State Machine:
//
//	StateIdle (0) → StateStarting (1)     [Start()]
//	StateStarting (1) → StateRunning (2)  [render goroutine reached its frame loop]
//	StateStarting (1) → StateIdle (0)     [initialization failure]
//	StateRunning (2) → StateStopping (3)  [Stop() / StopAsync() / Shutdown()]
//	StateRunning (2) → StateIdle (0)      [frame failure]
//	StateStopping (3) → StateIdle (0)     [teardown complete]
//	StateIdle (0) → StateRetired (4)      [Shutdown() complete]
//	StateRetired (4) → (terminal)
type State uint32

const (
	// StateIdle indicates the render goroutine is waiting to be started.
	StateIdle State = iota
	// StateStarting indicates Start is initializing the session.
	StateStarting
	// StateRunning indicates the render goroutine is executing frames.
	StateRunning
	// StateStopping indicates the frame loop has been asked to exit.
	StateStopping
	// StateRetired indicates the render goroutine has permanently exited.
	StateRetired
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateRetired:
		return "Retired"
	default:
		return "Unknown"
	}
}

// Active reports whether a session exists, i.e. the state is Starting,
// Running or Stopping.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}
