package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lakekit-io/lakekit/internal/ir"
)

// CycleError means the declared dependencies do not form a DAG.
// It is a configuration-time error: no handler runs when it is returned.
type CycleError struct {
	Nodes []string // members of at least one cycle, in declaration order
}

func (e *CycleError) Error() string {
	if len(e.Nodes) == 0 {
		return "dependency cycle detected in node graph"
	}
	return "dependency cycle detected in node graph: " + strings.Join(e.Nodes, ", ")
}

// DAG is the directed acyclic graph of declared nodes.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (apply order)
	revOrder []string // reverse topological order (teardown order)
}

type dagNode struct {
	id       string
	index    int      // declaration position, used to break topological ties
	edges    []string // node ids this node depends on
	revEdges []string // node ids that depend on this node
}

// BuildDAG constructs the dependency graph from declared nodes. Edges come
// from explicit dependsOn entries and from implicit ref:// references in
// properties. Unknown dependency ids are a configuration error.
func BuildDAG(nodes []*ir.Node) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
	}

	for i, n := range nodes {
		if _, dup := dag.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node id: %s", n.ID)
		}
		dag.nodes[n.ID] = &dagNode{id: n.ID, index: i}
	}

	for _, n := range nodes {
		node := dag.nodes[n.ID]

		for _, dep := range n.DependsOn {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, fmt.Errorf("node %s depends on undeclared node %s", n.ID, dep)
			}
			node.edges = append(node.edges, dep)
		}

		// Implicit ref:// references in properties
		for _, ref := range extractRefs(n.Properties) {
			dep := refToNodeID(ref)
			if dep == "" || dep == n.ID {
				continue
			}
			if _, ok := dag.nodes[dep]; !ok {
				return nil, fmt.Errorf("node %s references undeclared node %s", n.ID, dep)
			}
			if !contains(node.edges, dep) {
				node.edges = append(node.edges, dep)
			}
		}
	}

	for id, node := range dag.nodes {
		for _, dep := range node.edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, id)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order

	dag.revOrder = make([]string, len(order))
	for i, id := range order {
		dag.revOrder[len(order)-1-i] = id
	}

	return dag, nil
}

// TopologicalOrder returns node ids such that every id appears after all
// ids it depends on. Ties are broken by declaration order, so identical
// input always yields an identical sequence.
func (d *DAG) TopologicalOrder() []string {
	return d.order
}

// ReverseOrder returns the exact reverse of TopologicalOrder, safe for
// teardown.
func (d *DAG) ReverseOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of a node id.
func (d *DAG) Dependencies(id string) []string {
	if node, ok := d.nodes[id]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the node ids that directly depend on id.
func (d *DAG) Dependents(id string) []string {
	if node, ok := d.nodes[id]; ok {
		return node.revEdges
	}
	return nil
}

// TransitiveDependents returns every node id that depends on id, directly
// or through other nodes.
func (d *DAG) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range d.Dependents(cur) {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool {
		return d.nodes[out[i]].index < d.nodes[out[j]].index
	})
	return out
}

// topoSort runs Kahn's algorithm. The ready set is always drained in
// declaration order, which makes the result stable across runs.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for id, node := range d.nodes {
		inDegree[id] = len(node.edges)
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	d.sortByDeclaration(ready)

	var sorted []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		sorted = append(sorted, id)

		var freed []string
		for _, dependent := range d.nodes[id].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		if len(freed) > 0 {
			ready = append(ready, freed...)
			d.sortByDeclaration(ready)
		}
	}

	if len(sorted) != len(d.nodes) {
		var remaining []string
		for id, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Slice(remaining, func(i, j int) bool {
			return d.nodes[remaining[i]].index < d.nodes[remaining[j]].index
		})
		return nil, &CycleError{Nodes: remaining}
	}

	return sorted, nil
}

func (d *DAG) sortByDeclaration(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return d.nodes[ids[i]].index < d.nodes[ids[j]].index
	})
}

// DOT exports the graph in Graphviz DOT format.
func (d *DAG) DOT() string {
	var b strings.Builder
	b.WriteString("digraph lakekit {\n")
	b.WriteString("  rankdir = \"BT\";\n")
	b.WriteString("  node [shape = rect];\n\n")

	for _, id := range d.order {
		fmt.Fprintf(&b, "  %q;\n", id)
	}
	b.WriteString("\n")
	for _, id := range d.order {
		for _, dep := range d.nodes[id].edges {
			fmt.Fprintf(&b, "  %q -> %q;\n", id, dep)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// extractRefs extracts all ref:// references from a property value.
func extractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "ref://") {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, extractRefs(v)...)
		}
	}
	return refs
}

// refToNodeID converts a ref:// reference to the node id it points at.
// ref://table-bucket/arn -> table-bucket
func refToNodeID(ref string) string {
	if !strings.HasPrefix(ref, "ref://") {
		return ""
	}
	path := ref[len("ref://"):]
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return ""
	}
	return parts[0]
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
