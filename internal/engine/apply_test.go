package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/lakekit-io/lakekit/internal/registry"
	"github.com/lakekit-io/lakekit/internal/store"
	"github.com/lakekit-io/lakekit/pkg/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler records every invocation and can be told to fail specific
// nodes.
type fakeHandler struct {
	mu      sync.Mutex
	calls   []*handler.Request
	fail    map[string]string         // logical id -> failure reason
	outputs map[string]map[string]any // logical id -> extra outputs
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		fail:    make(map[string]string),
		outputs: make(map[string]map[string]any),
	}
}

func (f *fakeHandler) Invoke(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	if reason, ok := f.fail[req.LogicalID]; ok {
		return &handler.Response{Status: handler.StatusFailed, Reason: reason}, nil
	}
	if req.Type == handler.RequestDelete {
		return handler.Success(req.PhysicalID, nil), nil
	}
	return handler.Success("phys-"+req.LogicalID, f.outputs[req.LogicalID]), nil
}

func (f *fakeHandler) invocations() []*handler.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*handler.Request(nil), f.calls...)
}

func (f *fakeHandler) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeHandler) {
	t.Helper()
	fake := newFakeHandler()
	reg := registry.New()
	reg.Register("fake", fake)

	st := store.NewLocal(filepath.Join(t.TempDir(), "records.json"))
	eng := New(reg, st)
	eng.Retry = &RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return eng, fake
}

func node(id string, deps ...string) *ir.Node {
	return &ir.Node{
		ID:         id,
		Kind:       "test:Thing",
		Handler:    "fake",
		DependsOn:  deps,
		Properties: map[string]any{"name": id},
	}
}

func TestApply_CreatesInDependencyOrder(t *testing.T) {
	eng, fake := newTestEngine(t)
	dep := &ir.Deployment{Nodes: []*ir.Node{
		node("c", "b"),
		node("b", "a"),
		node("a"),
	}}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	calls := fake.invocations()
	require.Len(t, calls, 3)
	assert.Equal(t, "a", calls[0].LogicalID)
	assert.Equal(t, "b", calls[1].LogicalID)
	assert.Equal(t, "c", calls[2].LogicalID)
	for _, call := range calls {
		assert.Equal(t, handler.RequestCreate, call.Type)
	}

	for _, id := range []string{"a", "b", "c"} {
		res := report.Result(id)
		assert.Equal(t, ir.StatusApplied, res.Status)
		assert.Equal(t, "phys-"+id, res.PhysicalID)
	}
}

func TestApply_SecondRunInvokesNothing(t *testing.T) {
	eng, fake := newTestEngine(t)
	dep := &ir.Deployment{Nodes: []*ir.Node{node("a"), node("b", "a")}}

	_, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	fake.reset()

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)

	assert.Empty(t, fake.invocations(), "unchanged nodes must not reach the handler")
	assert.Equal(t, ir.StatusUpToDate, report.Result("a").Status)
	assert.Equal(t, ir.StatusUpToDate, report.Result("b").Status)

	// Outputs of skipped nodes are still published.
	assert.Equal(t, "phys-a", report.Outputs["a"].PhysicalID)
}

func TestApply_PropertyChangeTriggersUpdate(t *testing.T) {
	eng, fake := newTestEngine(t)
	a := node("a")
	dep := &ir.Deployment{Nodes: []*ir.Node{a, node("b", "a")}}

	_, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	fake.reset()

	a.Properties = map[string]any{"name": "a", "extra": "added"}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)

	calls := fake.invocations()
	require.Len(t, calls, 1, "only the changed node is re-applied")
	assert.Equal(t, "a", calls[0].LogicalID)
	assert.Equal(t, handler.RequestUpdate, calls[0].Type)
	assert.Equal(t, "phys-a", calls[0].PhysicalID)
	assert.Equal(t, map[string]any{"name": "a"}, calls[0].OldProperties)

	assert.Equal(t, ir.StatusApplied, report.Result("a").Status)
	assert.Equal(t, "update", report.Result("a").Action)
	assert.Equal(t, ir.StatusUpToDate, report.Result("b").Status)
}

func TestApply_VersionBumpForcesUpdate(t *testing.T) {
	eng, fake := newTestEngine(t)
	a := node("a")
	a.Version = "1"
	dep := &ir.Deployment{Nodes: []*ir.Node{a}}

	_, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	fake.reset()

	a.Version = "2"
	_, err = eng.Apply(context.Background(), dep)
	require.NoError(t, err)

	calls := fake.invocations()
	require.Len(t, calls, 1)
	assert.Equal(t, handler.RequestUpdate, calls[0].Type)
}

func TestApply_TimestampChangeDoesNotReapply(t *testing.T) {
	eng, fake := newTestEngine(t)
	a := node("a")
	a.Timestamp = "2026-08-29T10:00:00Z"
	dep := &ir.Deployment{Nodes: []*ir.Node{a}}

	_, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	fake.reset()

	a.Timestamp = "2026-08-30T10:00:00Z"
	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)

	assert.Empty(t, fake.invocations())
	assert.Equal(t, ir.StatusUpToDate, report.Result("a").Status)
}

func TestApply_FailureBlocksDependentsOnly(t *testing.T) {
	eng, fake := newTestEngine(t)
	fake.fail["a"] = "access denied"
	dep := &ir.Deployment{Nodes: []*ir.Node{
		node("a"),
		node("b", "a"),
		node("c"), // independent branch
	}}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err, "a handler failure is reported, not returned")
	assert.True(t, report.Failed())

	assert.Equal(t, ir.StatusFailed, report.Result("a").Status)
	assert.Equal(t, "access denied", report.Result("a").Reason)
	assert.Equal(t, ir.StatusBlocked, report.Result("b").Status)
	assert.Equal(t, ir.StatusApplied, report.Result("c").Status)

	// b never reached the handler.
	for _, call := range fake.invocations() {
		assert.NotEqual(t, "b", call.LogicalID)
	}
}

func TestApply_RerunRecoversAfterFailure(t *testing.T) {
	eng, fake := newTestEngine(t)
	fake.fail["a"] = "transient outage"
	dep := &ir.Deployment{Nodes: []*ir.Node{node("a"), node("b", "a")}}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	require.True(t, report.Failed())

	// The cause clears; the next run applies both a and b.
	delete(fake.fail, "a")
	fake.reset()

	report, err = eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	calls := fake.invocations()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].LogicalID)
	assert.Equal(t, handler.RequestCreate, calls[0].Type, "a failed node is retried as a create")
	assert.Equal(t, "b", calls[1].LogicalID)
}

func TestApply_ResolvesReferences(t *testing.T) {
	eng, fake := newTestEngine(t)
	fake.outputs["bucket"] = map[string]any{"arn": "arn:aws:s3:::data"}

	grant := &ir.Node{
		ID:      "grant",
		Kind:    "test:Grant",
		Handler: "fake",
		Properties: map[string]any{
			"resourceArn": "ref://bucket/arn",
			"bucketId":    "ref://bucket/physicalId",
		},
	}
	dep := &ir.Deployment{Nodes: []*ir.Node{
		{ID: "bucket", Kind: "test:Bucket", Handler: "fake", Properties: map[string]any{"name": "data"}},
		grant,
	}}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	calls := fake.invocations()
	require.Len(t, calls, 2)
	assert.Equal(t, "arn:aws:s3:::data", calls[1].NewProperties["resourceArn"])
	assert.Equal(t, "phys-bucket", calls[1].NewProperties["bucketId"])
}

func TestApply_CycleFailsBeforeAnyInvocation(t *testing.T) {
	eng, fake := newTestEngine(t)
	dep := &ir.Deployment{Nodes: []*ir.Node{
		node("a", "b"),
		node("b", "a"),
	}}

	_, err := eng.Apply(context.Background(), dep)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Empty(t, fake.invocations())
}

func TestApply_CancellationLeavesRemainingPending(t *testing.T) {
	eng, fake := newTestEngine(t)
	dep := &ir.Deployment{Nodes: []*ir.Node{node("a"), node("b", "a")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := eng.Apply(ctx, dep)
	require.Error(t, err)
	assert.Empty(t, fake.invocations())
	assert.Equal(t, ir.StatusPending, report.Result("a").Status)
	assert.Equal(t, ir.StatusPending, report.Result("b").Status)
}

// The bucket/role/grant/catalog pipeline: the grant fails, the catalog
// behind it is blocked, the independent resources still converge, and the
// re-run touches only what the failure left behind.
func TestApply_PipelineScenario(t *testing.T) {
	eng, fake := newTestEngine(t)
	fake.outputs["table-bucket"] = map[string]any{"arn": "arn:aws:s3tables:us-east-1:123456789012:bucket/demo"}
	fake.outputs["role"] = map[string]any{"arn": "arn:aws:iam::123456789012:role/etl"}
	fake.fail["grant"] = "insufficient lake formation permissions"

	dep := &ir.Deployment{Nodes: []*ir.Node{
		{ID: "table-bucket", Kind: "test:TableBucket", Handler: "fake", Properties: map[string]any{"name": "demo"}},
		{ID: "role", Kind: "test:Role", Handler: "fake", Properties: map[string]any{"roleName": "etl"}},
		{ID: "grant", Kind: "test:AdminGrant", Handler: "fake", Properties: map[string]any{
			"principalArn": "ref://role/arn",
		}},
		{ID: "catalog", Kind: "test:Catalog", Handler: "fake", DependsOn: []string{"grant"}, Properties: map[string]any{
			"identifier": "ref://table-bucket/arn",
		}},
	}}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	require.True(t, report.Failed())

	assert.Equal(t, ir.StatusApplied, report.Result("table-bucket").Status)
	assert.Equal(t, ir.StatusApplied, report.Result("role").Status)
	assert.Equal(t, ir.StatusFailed, report.Result("grant").Status)
	assert.Equal(t, ir.StatusBlocked, report.Result("catalog").Status)

	delete(fake.fail, "grant")
	fake.reset()

	report, err = eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	calls := fake.invocations()
	require.Len(t, calls, 2, "only the failed grant and the blocked catalog re-run")
	assert.Equal(t, "grant", calls[0].LogicalID)
	assert.Equal(t, "arn:aws:iam::123456789012:role/etl", calls[0].NewProperties["principalArn"],
		"references resolve from recorded outputs of up-to-date nodes")
	assert.Equal(t, "catalog", calls[1].LogicalID)
}

func TestApply_UpdateSeesResolvedOldProperties(t *testing.T) {
	eng, fake := newTestEngine(t)
	fake.outputs["app"] = map[string]any{"applicationId": "00f1234"}

	job := &ir.Node{
		ID:      "job",
		Kind:    "test:JobRun",
		Handler: "fake",
		Properties: map[string]any{
			"applicationId": "ref://app/applicationId",
		},
	}
	dep := &ir.Deployment{Nodes: []*ir.Node{
		{ID: "app", Kind: "test:Application", Handler: "fake", Properties: map[string]any{"name": "etl"}},
		job,
	}}

	_, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	fake.reset()

	job.Properties = map[string]any{
		"applicationId": "ref://app/applicationId",
		"entryPoint":    "s3://scripts/main.py",
	}

	_, err = eng.Apply(context.Background(), dep)
	require.NoError(t, err)

	calls := fake.invocations()
	require.Len(t, calls, 1)
	require.Equal(t, handler.RequestUpdate, calls[0].Type)
	assert.Equal(t, "00f1234", calls[0].OldProperties["applicationId"],
		"the record keeps resolved values, not placeholders")
}

// hangingHandler blocks until its context expires.
type hangingHandler struct{}

func (hangingHandler) Invoke(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestApply_TimeoutBecomesFailedRecord(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.registry.Register("hang", hangingHandler{})

	slow := node("slow")
	slow.Handler = "hang"
	slow.Timeout = "20ms"
	dep := &ir.Deployment{Nodes: []*ir.Node{slow}}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	require.True(t, report.Failed())
	assert.Equal(t, ir.StatusFailed, report.Result("slow").Status)
	assert.Equal(t, ReasonTimeout, report.Result("slow").Reason)

	rec, err := eng.store.Get(context.Background(), "slow")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ir.RecordFailed, rec.Status)
	assert.Equal(t, ReasonTimeout, rec.Reason)
}

// emptyResponseHandler violates the contract by returning neither a
// response nor an error.
type emptyResponseHandler struct{}

func (emptyResponseHandler) Invoke(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	return nil, nil
}

func TestApply_NilResponseIsFailure(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.registry.Register("empty", emptyResponseHandler{})

	a := node("a")
	a.Handler = "empty"
	dep := &ir.Deployment{Nodes: []*ir.Node{a}}

	report, err := eng.Apply(context.Background(), dep)
	require.NoError(t, err)
	assert.Equal(t, ir.StatusFailed, report.Result("a").Status)
	assert.Equal(t, "handler returned no response", report.Result("a").Reason)
}

// brokenStore fails every read to prove store errors abort the run.
type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, id string) (*ir.ApplyRecord, error) {
	return nil, &store.Error{Op: "read", Err: fmt.Errorf("disk on fire")}
}
func (brokenStore) Put(ctx context.Context, id string, rec *ir.ApplyRecord) error {
	return &store.Error{Op: "write", Err: fmt.Errorf("disk on fire")}
}
func (brokenStore) Delete(ctx context.Context, id string) error {
	return &store.Error{Op: "write", Err: fmt.Errorf("disk on fire")}
}
func (brokenStore) List(ctx context.Context) (map[string]*ir.ApplyRecord, error) {
	return nil, &store.Error{Op: "read", Err: fmt.Errorf("disk on fire")}
}
func (brokenStore) Lock() error   { return nil }
func (brokenStore) Unlock() error { return nil }

func TestApply_StoreErrorIsFatal(t *testing.T) {
	fake := newFakeHandler()
	reg := registry.New()
	reg.Register("fake", fake)
	eng := New(reg, brokenStore{})

	dep := &ir.Deployment{Nodes: []*ir.Node{node("a"), node("b")}}

	_, err := eng.Apply(context.Background(), dep)
	require.Error(t, err)

	var storeErr *store.Error
	assert.ErrorAs(t, err, &storeErr)
	assert.Empty(t, fake.invocations(), "no handler runs once the store is unavailable")
}
