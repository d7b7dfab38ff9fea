package frame

// State is the orchestrator's position inside a frame.
type State int

const (
	Idle State = iota
	Computing
	Updating
	Encoding
	Submitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Computing:
		return "computing"
	case Updating:
		return "updating"
	case Encoding:
		return "encoding"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}
