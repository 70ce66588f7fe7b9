package engine

import (
	"testing"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDAG_NoDependencies(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null"},
		{ID: "b", Handler: "null"},
		{ID: "c", Handler: "null"},
	}

	dag, err := BuildDAG(nodes)
	require.NoError(t, err)

	order := dag.TopologicalOrder()
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestBuildDAG_ExplicitDependsOn(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null", DependsOn: []string{"b"}},
		{ID: "b", Handler: "null"},
		{ID: "c", Handler: "null", DependsOn: []string{"a"}},
	}

	dag, err := BuildDAG(nodes)
	require.NoError(t, err)

	order := dag.TopologicalOrder()
	require.Len(t, order, 3)

	posB := indexOf(order, "b")
	posA := indexOf(order, "a")
	posC := indexOf(order, "c")

	assert.Less(t, posB, posA, "b should come before a")
	assert.Less(t, posA, posC, "a should come before c")
}

func TestBuildDAG_ImplicitRef(t *testing.T) {
	nodes := []*ir.Node{
		{
			ID:      "grant",
			Kind:    "aws:LakeFormation.AdminGrant",
			Handler: "aws",
			Properties: map[string]any{
				"principalArn": "ref://role/arn",
			},
		},
		{ID: "role", Kind: "aws:IAM.Role", Handler: "aws"},
	}

	dag, err := BuildDAG(nodes)
	require.NoError(t, err)

	order := dag.TopologicalOrder()
	require.Len(t, order, 2)

	assert.Less(t, indexOf(order, "role"), indexOf(order, "grant"),
		"role should be applied before the grant that references it")
}

func TestBuildDAG_DeterministicTieBreak(t *testing.T) {
	// b and c are both ready after a; declaration order decides.
	nodes := []*ir.Node{
		{ID: "c", Handler: "null", DependsOn: []string{"a"}},
		{ID: "b", Handler: "null", DependsOn: []string{"a"}},
		{ID: "a", Handler: "null"},
	}

	for i := 0; i < 10; i++ {
		dag, err := BuildDAG(nodes)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "b"}, dag.TopologicalOrder())
	}
}

func TestBuildDAG_CycleDetection(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null", DependsOn: []string{"b"}},
		{ID: "b", Handler: "null", DependsOn: []string{"a"}},
	}

	_, err := BuildDAG(nodes)
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Nodes)
}

func TestBuildDAG_SelfReferenceIsACycle(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null", DependsOn: []string{"a"}},
	}

	_, err := BuildDAG(nodes)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestBuildDAG_UndeclaredDependency(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null", DependsOn: []string{"ghost"}},
	}

	_, err := BuildDAG(nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared")
}

func TestBuildDAG_DuplicateID(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null"},
		{ID: "a", Handler: "null"},
	}

	_, err := BuildDAG(nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestReverseOrder(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null", DependsOn: []string{"b"}},
		{ID: "b", Handler: "null"},
	}

	dag, err := BuildDAG(nodes)
	require.NoError(t, err)

	revOrder := dag.ReverseOrder()
	require.Len(t, revOrder, 2)

	// a depends on b, so a is torn down first
	assert.Less(t, indexOf(revOrder, "a"), indexOf(revOrder, "b"))
}

func TestTransitiveDependents(t *testing.T) {
	nodes := []*ir.Node{
		{ID: "a", Handler: "null"},
		{ID: "b", Handler: "null", DependsOn: []string{"a"}},
		{ID: "c", Handler: "null", DependsOn: []string{"b"}},
		{ID: "d", Handler: "null"},
	}

	dag, err := BuildDAG(nodes)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, dag.TransitiveDependents("a"))
	assert.Empty(t, dag.TransitiveDependents("d"))
}

func TestRefToNodeID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"ref://table-bucket/arn", "table-bucket"},
		{"ref://role/physicalId", "role"},
		{"ref://role", "role"},
		{"not-a-ref", ""},
		{"ref://", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, refToNodeID(tt.ref))
		})
	}
}

func TestExtractRefs(t *testing.T) {
	props := map[string]any{
		"resourceArn": "ref://table-bucket/arn",
		"name":        "plain",
		"nested": map[string]any{
			"roleArn": "ref://role/arn",
		},
		"list": []any{
			"ref://queue/url",
			"plain-string",
		},
	}

	refs := extractRefs(props)
	assert.Len(t, refs, 3)
	assert.Contains(t, refs, "ref://table-bucket/arn")
	assert.Contains(t, refs, "ref://role/arn")
	assert.Contains(t, refs, "ref://queue/url")
}

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
