package session

// transitions lists the moves SetStatus may make. Entering pending is not
// listed: only a dispatch (BeginDispatch) can do that.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusComplete, StatusFailed},
}

// CanTransition reports whether a status may move from one state to another
// without a new dispatch.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanDispatch reports whether a new job may be dispatched from this state.
func CanDispatch(from Status) bool {
	return !from.Active()
}
