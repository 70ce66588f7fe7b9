package null

import (
	"context"
	"testing"

	"github.com/lakekit-io/lakekit/pkg/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The null handler is the reference implementation of the contract: every
// verb succeeds, re-invocation is harmless, and outputs mirror the inputs.
func TestLifecycle(t *testing.T) {
	h := New()
	ctx := context.Background()

	create := &handler.Request{
		Type:          handler.RequestCreate,
		LogicalID:     "trigger",
		Kind:          "null:Trigger",
		NewProperties: map[string]any{"revision": "1"},
	}
	resp, err := h.Invoke(ctx, create)
	require.NoError(t, err)
	assert.Equal(t, handler.StatusSuccess, resp.Status)
	assert.Equal(t, "null-trigger", resp.PhysicalID)
	assert.Equal(t, "1", resp.Outputs["revision"])

	// Creates are idempotent: same input, same identity.
	again, err := h.Invoke(ctx, create)
	require.NoError(t, err)
	assert.Equal(t, resp.PhysicalID, again.PhysicalID)

	update := &handler.Request{
		Type:          handler.RequestUpdate,
		LogicalID:     "trigger",
		Kind:          "null:Trigger",
		PhysicalID:    resp.PhysicalID,
		OldProperties: map[string]any{"revision": "1"},
		NewProperties: map[string]any{"revision": "2"},
	}
	updated, err := h.Invoke(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, handler.StatusSuccess, updated.Status)
	assert.Equal(t, "2", updated.Outputs["revision"])

	del := &handler.Request{
		Type:          handler.RequestDelete,
		LogicalID:     "trigger",
		Kind:          "null:Trigger",
		PhysicalID:    resp.PhysicalID,
		OldProperties: map[string]any{"revision": "2"},
	}
	deleted, err := h.Invoke(ctx, del)
	require.NoError(t, err)
	assert.Equal(t, handler.StatusSuccess, deleted.Status)

	// Deleting again is still success.
	_, err = h.Invoke(ctx, del)
	require.NoError(t, err)
}

func TestUnknownVerb(t *testing.T) {
	h := New()
	_, err := h.Invoke(context.Background(), &handler.Request{Type: "Read"})
	assert.Error(t, err)
}
