package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/lakekit-io/lakekit/internal/logging"
	"github.com/lakekit-io/lakekit/pkg/handler"
)

// Destroy deletes every recorded node in reverse topological order, so no
// node is removed before the nodes that depend on it. A failed delete
// blocks the nodes it depends on: they may still be referenced by the
// survivor and are left intact for a later retry.
func (e *Engine) Destroy(ctx context.Context, dep *ir.Deployment) (*ir.RunReport, error) {
	return e.DestroyWithCallback(ctx, dep, nil)
}

// DestroyWithCallback tears down a deployment with progress event callbacks.
func (e *Engine) DestroyWithCallback(ctx context.Context, dep *ir.Deployment, callback ApplyCallback) (*ir.RunReport, error) {
	dag, err := BuildDAG(dep.Nodes)
	if err != nil {
		return nil, err
	}

	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	report := newReport(dep)
	blocked := make(map[string]bool)

	for _, id := range dag.ReverseOrder() {
		node := dep.Node(id)
		result := report.Result(id)
		result.Action = "delete"

		if blocked[id] {
			result.Status = ir.StatusBlocked
			result.Reason = "dependent node could not be deleted"
			emit(ApplyEvent{NodeID: id, Action: "delete", Status: "blocked"})
			continue
		}

		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("destroy cancelled: %w", err)
		}

		rec, err := e.store.Get(ctx, id)
		if err != nil {
			return report, fmt.Errorf("node %s: %w", id, err)
		}
		if rec == nil {
			// Never applied, nothing to tear down.
			result.Status = ir.StatusDeleted
			result.Action = "noop"
			emit(ApplyEvent{NodeID: id, Action: "noop", Status: "skipped"})
			continue
		}

		req := &handler.Request{
			Type:          handler.RequestDelete,
			LogicalID:     id,
			Kind:          node.Kind,
			PhysicalID:    rec.PhysicalID,
			OldProperties: rec.Inputs,
		}

		result.Status = ir.StatusDeleting
		start := time.Now()
		emit(ApplyEvent{NodeID: id, Action: "delete", Status: "started"})
		logging.Info("deleting node", "node", id, "kind", node.Kind, "physicalId", rec.PhysicalID)

		resp, invokeErr := e.invoke(ctx, node, req)
		result.Duration = time.Since(start)

		if invokeErr != nil || resp == nil || resp.Status == handler.StatusFailed {
			herr := classifyFailure(id, "delete", resp, invokeErr)
			result.Status = ir.StatusFailed
			result.Reason = herr.Reason
			result.PhysicalID = rec.PhysicalID

			rec.Status = ir.RecordFailed
			rec.Reason = herr.Reason
			if err := e.store.Put(ctx, id, rec); err != nil {
				return report, fmt.Errorf("node %s: %w", id, err)
			}

			for _, dependency := range transitiveDependencies(dag, id) {
				blocked[dependency] = true
			}
			logging.Error("delete failed", "node", id, "reason", herr.Reason)
			emit(ApplyEvent{NodeID: id, Action: "delete", Status: "failed", Duration: result.Duration, Error: herr})
			continue
		}

		if err := e.store.Delete(ctx, id); err != nil {
			return report, fmt.Errorf("node %s: %w", id, err)
		}

		result.Status = ir.StatusDeleted
		result.PhysicalID = rec.PhysicalID
		logging.Info("node deleted", "node", id, "duration", result.Duration)
		emit(ApplyEvent{NodeID: id, Action: "delete", Status: "completed", Duration: result.Duration})
	}

	return report, nil
}

// transitiveDependencies returns every node id that id depends on, directly
// or through other nodes.
func transitiveDependencies(dag *DAG, id string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range dag.Dependencies(cur) {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				walk(dep)
			}
		}
	}
	walk(id)
	return out
}
