package engine

import (
	"context"
	"fmt"

	"github.com/lakekit-io/lakekit/internal/ir"
)

// PlannedChange is what a run would do for one node, decided from the
// recorded fingerprint alone. No handler is invoked during planning.
type PlannedChange struct {
	NodeID  string
	Kind    string
	Action  string // "create", "update", "noop"
	Details string
}

// Plan compares every declared node against its apply record and returns
// the changes a run would make, in apply order.
func (e *Engine) Plan(ctx context.Context, dep *ir.Deployment) ([]*PlannedChange, error) {
	dag, err := BuildDAG(dep.Nodes)
	if err != nil {
		return nil, err
	}

	var changes []*PlannedChange
	for _, id := range dag.TopologicalOrder() {
		node := dep.Node(id)

		rec, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", id, err)
		}

		change := &PlannedChange{NodeID: id, Kind: node.Kind}
		fingerprint := Fingerprint(node)

		switch {
		case rec == nil:
			change.Action = "create"
		case rec.Status == ir.RecordFailed:
			change.Action = "create"
			change.Details = "previous attempt failed: " + rec.Reason
		case rec.Fingerprint != fingerprint:
			change.Action = "update"
			change.Details = "declared properties changed"
		default:
			change.Action = "noop"
		}
		changes = append(changes, change)
	}

	return changes, nil
}
