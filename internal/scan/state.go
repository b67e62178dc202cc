package scan

// State is a stage of a page scan.
type State int

// Scan states in the order a run passes through them. Scrolling through
// Dispatching repeat once per candidate.
const (
	Idle State = iota
	WaitingForLoad
	Compiling
	Locating
	Scrolling
	Settling
	Capturing
	Cropping
	Dispatching
	Done
)

var stateNames = [...]string{
	Idle:           "idle",
	WaitingForLoad: "waiting_for_load",
	Compiling:      "compiling",
	Locating:       "locating",
	Scrolling:      "scrolling",
	Settling:       "settling",
	Capturing:      "capturing",
	Cropping:       "cropping",
	Dispatching:    "dispatching",
	Done:           "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// TransitionFunc observes state changes.
type TransitionFunc func(from, to State)
