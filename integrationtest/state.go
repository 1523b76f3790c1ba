package integrationtest

// State is a step of a Runner's lifecycle.
type State int32

const (
	StateNotStarted State = iota
	StateSUTStarting
	StateSUTReady
	StateTestRunning
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateSUTStarting:
		return "sut_starting"
	case StateSUTReady:
		return "sut_ready"
	case StateTestRunning:
		return "test_running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
