package scheduling

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusCancelled: true,
}

// validTransitions is the complete status state machine:
// scheduled -> in_progress -> completed, with cancellation allowed from
// either non-terminal state. Nothing leaves a terminal status.
var validTransitions = map[Status]map[Status]bool{
	StatusScheduled: {
		StatusInProgress: true,
		StatusCancelled:  true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// IsTerminal reports whether s is a final status.
func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// ValidStatus reports whether s is one of the four canonical statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Transition validates a status change and returns the new status. It is
// pure: no I/O, no side effects. Callers apply the result to the store and
// handle slot release and notification themselves.
func Transition(current, target Status) (Status, error) {
	if validTransitions[current][target] {
		return target, nil
	}
	if IsTerminal(current) {
		return "", ErrAlreadyTerminal
	}
	return "", ErrInvalidTransition
}
