package ir

// Node represents a single declared provisioning step, either a
// provider-native resource or a custom side-effecting operation.
type Node struct {
	ID         string         `pkl:"id"`
	Kind       string         `pkl:"kind"` // e.g. "aws:S3.Bucket", "aws:LakeFormation.AdminGrant"
	Handler    string         `pkl:"handler"`
	Version    string         `pkl:"version"`   // bump to force re-execution
	Timestamp  string         `pkl:"timestamp"` // recorded for audit, never hashed
	Timeout    string         `pkl:"timeout"`
	DependsOn  []string       `pkl:"dependsOn"`
	Properties map[string]any `pkl:"properties"`
}

// Deployment is the top-level declared graph input.
type Deployment struct {
	Name    string         `pkl:"name"`
	Region  string         `pkl:"region"`
	Nodes   []*Node        `pkl:"nodes"`
	Outputs map[string]any `pkl:"outputs"`
}

// Node returns the declared node with the given id, or nil.
func (d *Deployment) Node(id string) *Node {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
