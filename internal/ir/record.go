package ir

import "time"

// RecordStatus is the persisted outcome of the last attempt for a node.
type RecordStatus string

const (
	RecordApplied RecordStatus = "applied"
	RecordFailed  RecordStatus = "failed"
)

// ApplyRecord is what the orchestrator remembers about a node between runs.
// It is the sole source of truth about whether a custom operation has run;
// the external services never see it.
type ApplyRecord struct {
	Fingerprint string         `json:"fingerprint"`
	PhysicalID  string         `json:"physicalId,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Status      RecordStatus   `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"` // declared timestamp, audit only
	AppliedAt   string         `json:"appliedAt,omitempty"`
}

// NodeStatus is the in-run state of a node.
type NodeStatus string

const (
	StatusPending  NodeStatus = "pending"
	StatusApplying NodeStatus = "applying"
	StatusApplied  NodeStatus = "applied"
	StatusUpToDate NodeStatus = "up-to-date"
	StatusFailed   NodeStatus = "failed"
	StatusBlocked  NodeStatus = "blocked"
	StatusDeleting NodeStatus = "deleting"
	StatusDeleted  NodeStatus = "deleted"
)

// NodeResult is the final status of one node after a run.
type NodeResult struct {
	ID         string
	Kind       string
	Status     NodeStatus
	Action     string // "create", "update", "delete", "noop"
	PhysicalID string
	Reason     string
	Duration   time.Duration
}

// NodeOutput exposes a node's physical identity and outputs under its
// logical id for operators and downstream tooling.
type NodeOutput struct {
	PhysicalID string         `json:"physicalId"`
	Outputs    map[string]any `json:"outputs,omitempty"`
}

// RunReport enumerates every node's final status for a single run.
type RunReport struct {
	Results []*NodeResult
	Outputs map[string]*NodeOutput
}

// Failed reports whether any node ended the run failed or blocked.
func (r *RunReport) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed || res.Status == StatusBlocked {
			return true
		}
	}
	return false
}

// Result returns the result for a node id, or nil.
func (r *RunReport) Result(id string) *NodeResult {
	for _, res := range r.Results {
		if res.ID == id {
			return res
		}
	}
	return nil
}
