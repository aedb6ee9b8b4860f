package orchestrator

import "fmt"

// StateError rejects an operation that is invalid in the session's current
// lifecycle state. Handlers map it to 409 Conflict.
type StateError struct {
	SessionID string
	Status    string
	Op        string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session %s: cannot %s in state %s", e.SessionID, e.Op, e.Status)
}
