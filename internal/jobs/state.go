package jobs

// State is the closed set of states a job moves through, per spec §4.5.
type State int

const (
	Unknown State = iota
	None
	Accepted
	LocalQueued
	Submitted
	RemoteQueued
	RunningLocal
	RunningRemote
	Finished
	Canceled
	Error
)

var stateNames = map[State]string{
	Unknown:       "Unknown",
	None:          "None",
	Accepted:      "Accepted",
	LocalQueued:   "LocalQueued",
	Submitted:     "Submitted",
	RemoteQueued:  "RemoteQueued",
	RunningLocal:  "RunningLocal",
	RunningRemote: "RunningRemote",
	Finished:      "Finished",
	Canceled:      "Canceled",
	Error:         "Error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// MarshalJSON renders the state as its wire name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses a wire state name, falling back to Unknown for
// anything unrecognized.
func (s *State) UnmarshalJSON(data []byte) error {
	name := string(data)
	name = name[1 : len(name)-1] // strip quotes
	for st, n := range stateNames {
		if n == name {
			*s = st
			return nil
		}
	}
	*s = Unknown
	return nil
}

// terminal reports the states from which no further transition is legal.
var terminal = map[State]bool{
	Finished: true,
	Canceled: true,
	Error:    true,
}

// IsTerminal reports whether s is one of the terminal states.
func (s State) IsTerminal() bool { return terminal[s] }

// transitions enumerates the directed edges of the state graph in spec
// §4.5. Terminal states (Canceled, Error) are reachable from every
// non-terminal state and are handled separately in Allowed, rather than
// being listed against every source state here.
var transitions = map[State][]State{
	None:          {Accepted},
	Accepted:      {LocalQueued, Submitted},
	LocalQueued:   {RunningLocal},
	Submitted:     {RemoteQueued},
	RemoteQueued:  {RunningRemote},
	RunningLocal:  {Finished},
	RunningRemote: {Finished},
}

// Allowed reports whether the transition from -> to is legal per the
// state graph in spec §4.5: the drawn edges, plus Canceled/Error reachable
// from any non-terminal state. Transitions out of a terminal state, and
// any edge not drawn, are rejected.
func Allowed(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Canceled || to == Error {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
