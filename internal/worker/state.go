package worker

// State is the lifecycle state of the supervised worker.
type State int32

// Worker lifecycle states. Terminated is reachable from every other state.
const (
	StateNotStarted State = iota
	StateStarting
	StateWarming
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateWarming:
		return "warming"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
