package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/lakekit-io/lakekit/internal/logging"
	"github.com/lakekit-io/lakekit/internal/registry"
	"github.com/lakekit-io/lakekit/internal/store"
	"github.com/lakekit-io/lakekit/pkg/handler"
)

// ApplyEvent represents a progress event during a run.
type ApplyEvent struct {
	NodeID   string
	Action   string
	Status   string // "started", "completed", "failed", "skipped", "blocked"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Engine drives declared nodes to their applied state.
type Engine struct {
	registry *registry.Registry
	store    store.Store

	// Retry overrides the default retry policy for handler invocations.
	Retry *RetryPolicy
}

func New(reg *registry.Registry, st store.Store) *Engine {
	return &Engine{registry: reg, store: st}
}

// Apply walks the dependency graph in topological order and converges every
// node. Nodes whose recorded fingerprint matches are skipped without a
// handler call. A failed node marks its transitive dependents blocked;
// independent branches still run.
//
// Handler failures are reported through the returned RunReport, not the
// error. A non-nil error means the run itself could not proceed: a cycle,
// a record store failure, or cancellation.
func (e *Engine) Apply(ctx context.Context, dep *ir.Deployment) (*ir.RunReport, error) {
	return e.ApplyWithCallback(ctx, dep, nil)
}

// ApplyWithCallback executes a run with progress event callbacks.
func (e *Engine) ApplyWithCallback(ctx context.Context, dep *ir.Deployment, callback ApplyCallback) (*ir.RunReport, error) {
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

	for _, id := range dag.TopologicalOrder() {
		node := dep.Node(id)
		result := report.Result(id)

		if blocked[id] {
			result.Status = ir.StatusBlocked
			result.Reason = "dependency failed"
			emit(ApplyEvent{NodeID: id, Status: "blocked"})
			continue
		}

		// Cancellation is honored between nodes only; an in-flight
		// handler call always runs to completion or timeout.
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("apply cancelled: %w", err)
		}

		rec, err := e.store.Get(ctx, id)
		if err != nil {
			return report, fmt.Errorf("node %s: %w", id, err)
		}

		fingerprint := Fingerprint(node)

		if rec != nil && rec.Status == ir.RecordApplied && rec.Fingerprint == fingerprint {
			result.Status = ir.StatusUpToDate
			result.Action = "noop"
			result.PhysicalID = rec.PhysicalID
			report.Outputs[id] = &ir.NodeOutput{PhysicalID: rec.PhysicalID, Outputs: rec.Outputs}
			logging.Debug("node up to date", "node", id, "fingerprint", fingerprint)
			emit(ApplyEvent{NodeID: id, Action: "noop", Status: "skipped"})
			continue
		}

		req := &handler.Request{
			LogicalID:     id,
			Kind:          node.Kind,
			NewProperties: resolveProperties(node.Properties, report.Outputs),
		}
		if rec == nil || rec.Status == ir.RecordFailed {
			// A failed prior attempt gets a fresh create. The handler
			// contract makes creates safe over half-finished leftovers.
			req.Type = handler.RequestCreate
			if rec != nil {
				req.PhysicalID = rec.PhysicalID
			}
			result.Action = "create"
		} else {
			req.Type = handler.RequestUpdate
			req.PhysicalID = rec.PhysicalID
			req.OldProperties = rec.Inputs
			result.Action = "update"
		}

		result.Status = ir.StatusApplying
		start := time.Now()
		emit(ApplyEvent{NodeID: id, Action: result.Action, Status: "started"})
		logging.Info("applying node", "node", id, "kind", node.Kind, "action", result.Action)

		resp, invokeErr := e.invoke(ctx, node, req)
		result.Duration = time.Since(start)

		if invokeErr != nil || resp == nil || resp.Status == handler.StatusFailed {
			herr := classifyFailure(id, result.Action, resp, invokeErr)
			result.Status = ir.StatusFailed
			result.Reason = herr.Reason
			if resp != nil && resp.PhysicalID != "" {
				result.PhysicalID = resp.PhysicalID
			} else {
				result.PhysicalID = req.PhysicalID
			}

			failedRec := &ir.ApplyRecord{
				Fingerprint: fingerprint,
				PhysicalID:  result.PhysicalID,
				Inputs:      req.NewProperties,
				Status:      ir.RecordFailed,
				Reason:      herr.Reason,
				Timestamp:   node.Timestamp,
				AppliedAt:   time.Now().UTC().Format(time.RFC3339),
			}
			if err := e.store.Put(ctx, id, failedRec); err != nil {
				return report, fmt.Errorf("node %s: %w", id, err)
			}

			for _, dependent := range dag.TransitiveDependents(id) {
				blocked[dependent] = true
			}
			logging.Error("node failed", "node", id, "action", result.Action, "reason", herr.Reason)
			emit(ApplyEvent{NodeID: id, Action: result.Action, Status: "failed", Duration: result.Duration, Error: herr})
			continue
		}

		result.Status = ir.StatusApplied
		result.PhysicalID = resp.PhysicalID
		report.Outputs[id] = &ir.NodeOutput{PhysicalID: resp.PhysicalID, Outputs: resp.Outputs}

		appliedRec := &ir.ApplyRecord{
			Fingerprint: fingerprint,
			PhysicalID:  resp.PhysicalID,
			Inputs:      req.NewProperties,
			Outputs:     resp.Outputs,
			Status:      ir.RecordApplied,
			Timestamp:   node.Timestamp,
			AppliedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.store.Put(ctx, id, appliedRec); err != nil {
			return report, fmt.Errorf("node %s: %w", id, err)
		}

		logging.Info("node applied", "node", id, "action", result.Action, "physicalId", resp.PhysicalID, "duration", result.Duration)
		emit(ApplyEvent{NodeID: id, Action: result.Action, Status: "completed", Duration: result.Duration})
	}

	return report, nil
}

// invoke runs one handler call under the node's timeout and the engine's
// retry policy.
func (e *Engine) invoke(ctx context.Context, node *ir.Node, req *handler.Request) (*handler.Response, error) {
	h, err := e.registry.Get(node.Handler)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, nodeTimeout(node.Timeout))
	defer cancel()

	policy := e.Retry
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var resp *handler.Response
	err = RetryWithBackoff(ctx, policy, func() error {
		var invokeErr error
		resp, invokeErr = h.Invoke(ctx, req)
		return invokeErr
	}, IsTransientError)
	return resp, err
}

// classifyFailure folds a handler outcome into a HandlerError. Exceeding
// the deadline is a failure like any other, with reason Timeout.
func classifyFailure(id, op string, resp *handler.Response, err error) *HandlerError {
	herr := &HandlerError{NodeID: id, Op: op, Err: err}
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		herr.Reason = ReasonTimeout
	case err != nil:
		herr.Reason = err.Error()
	case resp == nil:
		herr.Reason = "handler returned no response"
	case resp.Reason != "":
		herr.Reason = resp.Reason
	default:
		herr.Reason = "handler reported failure"
	}
	return herr
}

func newReport(dep *ir.Deployment) *ir.RunReport {
	report := &ir.RunReport{
		Outputs: make(map[string]*ir.NodeOutput),
	}
	for _, n := range dep.Nodes {
		report.Results = append(report.Results, &ir.NodeResult{
			ID:     n.ID,
			Kind:   n.Kind,
			Status: ir.StatusPending,
		})
	}
	return report
}

// resolveProperties substitutes ref://<node>/<key> references with the
// outputs of already-applied nodes. The key "physicalId" resolves to the
// node's physical identity. An unresolvable reference is left verbatim;
// its target either failed (blocking this node before invocation) or the
// handler will reject the literal.
func resolveProperties(props map[string]any, outputs map[string]*ir.NodeOutput) map[string]any {
	resolved, _ := resolveValue(props, outputs).(map[string]any)
	return resolved
}

func resolveValue(val any, outputs map[string]*ir.NodeOutput) any {
	switch v := val.(type) {
	case string:
		if !strings.HasPrefix(v, "ref://") {
			return v
		}
		path := strings.SplitN(v[len("ref://"):], "/", 2)
		out, ok := outputs[path[0]]
		if !ok {
			return v
		}
		if len(path) == 1 || path[1] == "physicalId" {
			return out.PhysicalID
		}
		if resolved, ok := out.Outputs[path[1]]; ok {
			return resolved
		}
		return v
	case map[string]any:
		newMap := make(map[string]any, len(v))
		for k, item := range v {
			newMap[k] = resolveValue(item, outputs)
		}
		return newMap
	case map[any]any:
		newMap := make(map[string]any, len(v))
		for k, item := range v {
			newMap[fmt.Sprintf("%v", k)] = resolveValue(item, outputs)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(v))
		for i, item := range v {
			newSlice[i] = resolveValue(item, outputs)
		}
		return newSlice
	default:
		return v
	}
}
