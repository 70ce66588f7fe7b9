// Package handler defines the contract between the orchestrator and the
// operations it drives. Any handler implementation, whether an in-process
// client bundle, a subprocess or a remote function, must honor this
// envelope.
package handler

import "context"

// RequestType is the verb the orchestrator asks a handler to perform.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// Status reports the outcome of a handler invocation.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Request is the invocation envelope passed to a handler.
//
// Create carries NewProperties only. Update additionally carries the
// PhysicalID from the prior create and the OldProperties it was created
// with. Delete carries the PhysicalID and OldProperties.
type Request struct {
	Type          RequestType
	LogicalID     string
	Kind          string
	PhysicalID    string
	OldProperties map[string]any
	NewProperties map[string]any
}

// Response is what a handler returns. A handler signals domain failure
// through Status/Reason; transport-level problems come back as an error.
type Response struct {
	PhysicalID string
	Outputs    map[string]any
	Status     Status
	Reason     string
}

// Handler executes one operation. Invocations are at-least-once: every
// implementation must be safe to re-run. A create must tolerate a
// half-finished prior attempt, a delete must treat already-gone as
// success. The engine depends on this and cannot enforce it.
type Handler interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// Success builds a successful response.
func Success(physicalID string, outputs map[string]any) *Response {
	return &Response{
		PhysicalID: physicalID,
		Outputs:    outputs,
		Status:     StatusSuccess,
	}
}
