// Package null implements a handler with no external side effects. It
// exists for wiring tests and as the smallest possible reference for the
// handler contract.
package null

import (
	"context"
	"fmt"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

type Handler struct{}

func New() *Handler {
	return &Handler{}
}

// Invoke echoes the declared properties back as outputs. The physical id
// is derived from the logical id, so create and update are trivially
// idempotent and delete has nothing to remove.
func (h *Handler) Invoke(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	switch req.Type {
	case handler.RequestCreate, handler.RequestUpdate:
		outputs := make(map[string]any, len(req.NewProperties))
		for k, v := range req.NewProperties {
			outputs[k] = v
		}
		return handler.Success(fmt.Sprintf("null-%s", req.LogicalID), outputs), nil
	case handler.RequestDelete:
		return handler.Success(req.PhysicalID, nil), nil
	}
	return nil, fmt.Errorf("unknown request type: %s", req.Type)
}
