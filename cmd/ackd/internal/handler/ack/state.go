package ack

// State is a connection's position in its lifecycle:
//
//	Accepted -> Reading -> Replying -> Closed
//	               \           \
//	                +-> Errored -+-> Closed
type State int

const (
	StateAccepted State = iota
	StateReading
	StateReplying
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReading:
		return "reading"
	case StateReplying:
		return "replying"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// next reports whether the transition from s to to is allowed.
func (s State) next(to State) bool {
	switch s {
	case StateAccepted:
		return to == StateReading || to == StateClosed
	case StateReading:
		return to == StateReplying || to == StateErrored
	case StateReplying:
		return to == StateClosed || to == StateErrored
	case StateErrored:
		return to == StateClosed
	default:
		return false
	}
}
