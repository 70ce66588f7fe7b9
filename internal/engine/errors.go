package engine

import "fmt"

// ReasonTimeout is the recorded failure reason when a handler exceeds its
// operation deadline.
const ReasonTimeout = "Timeout"

// HandlerError is a per-node failure. It marks the node failed and its
// transitive dependents blocked, but never aborts the run: siblings on
// independent branches still execute.
type HandlerError struct {
	NodeID string
	Op     string // "create", "update", "delete"
	Reason string
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.NodeID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.NodeID, e.Reason)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
