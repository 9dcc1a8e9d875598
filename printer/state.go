package printer

import "fmt"

// State is the progress of a print session.
type State int

const (
	StateIdle State = iota
	StateDiscovered
	StateUploaded
	StateFileListed
	// StateSubmitted means the start-print command got a reply that could
	// not be interpreted; the outcome on the printer is unknown.
	StateSubmitted
	StatePrinting
	StateRejected
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateDiscovered: "discovered",
	StateUploaded:   "uploaded",
	StateFileListed: "file_listed",
	StateSubmitted:  "submitted",
	StatePrinting:   "printing",
	StateRejected:   "rejected",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StatePrinting || s == StateRejected || s == StateSubmitted
}
