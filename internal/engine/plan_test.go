package engine

import (
	"context"
	"testing"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_FreshDeploymentIsAllCreates(t *testing.T) {
	eng, fake := newTestEngine(t)
	dep := &ir.Deployment{Nodes: []*ir.Node{node("a"), node("b", "a")}}

	changes, err := eng.Plan(context.Background(), dep)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "create", changes[0].Action)
	assert.Equal(t, "create", changes[1].Action)
	assert.Empty(t, fake.invocations(), "planning never invokes handlers")
}

func TestPlan_ReflectsRecordState(t *testing.T) {
	eng, fake := newTestEngine(t)
	a := node("a")
	b := node("b", "a")
	fake.fail["b"] = "boom"
	dep := &ir.Deployment{Nodes: []*ir.Node{a, b, node("c")}}

	_, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)

	a.Properties["extra"] = "changed"

	changes, err := eng.Plan(context.Background(), dep)
	require.NoError(t, err)
	require.Len(t, changes, 3)

	byID := make(map[string]*PlannedChange)
	for _, c := range changes {
		byID[c.NodeID] = c
	}
	assert.Equal(t, "update", byID["a"].Action)
	assert.Equal(t, "create", byID["b"].Action, "a failed node plans as create")
	assert.Contains(t, byID["b"].Details, "boom")
	assert.Equal(t, "noop", byID["c"].Action)
}
