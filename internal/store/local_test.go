package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *ir.ApplyRecord {
	return &ir.ApplyRecord{
		Fingerprint: "abc123",
		PhysicalID:  "phys-1",
		Inputs:      map[string]any{"name": "data"},
		Outputs:     map[string]any{"arn": "arn:aws:s3:::data"},
		Status:      ir.RecordApplied,
		AppliedAt:   "2026-08-30T10:00:00Z",
	}
}

func TestLocal_GetMissingReturnsNil(t *testing.T) {
	l := NewLocal(filepath.Join(t.TempDir(), "records.json"))

	rec, err := l.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLocal_PutGetRoundTrip(t *testing.T) {
	l := NewLocal(filepath.Join(t.TempDir(), "records.json"))
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "bucket", testRecord()))

	rec, err := l.Get(ctx, "bucket")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "abc123", rec.Fingerprint)
	assert.Equal(t, "phys-1", rec.PhysicalID)
	assert.Equal(t, ir.RecordApplied, rec.Status)
	assert.Equal(t, "arn:aws:s3:::data", rec.Outputs["arn"])
}

func TestLocal_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	ctx := context.Background()

	require.NoError(t, NewLocal(path).Put(ctx, "bucket", testRecord()))

	rec, err := NewLocal(path).Get(ctx, "bucket")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "phys-1", rec.PhysicalID)
}

func TestLocal_DeleteIsIdempotent(t *testing.T) {
	l := NewLocal(filepath.Join(t.TempDir(), "records.json"))
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "bucket", testRecord()))
	require.NoError(t, l.Delete(ctx, "bucket"))
	require.NoError(t, l.Delete(ctx, "bucket"), "deleting an absent record is not an error")

	rec, err := l.Get(ctx, "bucket")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLocal_List(t *testing.T) {
	l := NewLocal(filepath.Join(t.TempDir(), "records.json"))
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "a", testRecord()))
	require.NoError(t, l.Put(ctx, "b", testRecord()))

	records, err := l.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLocal_CorruptFileIsStoreError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewLocal(path).Get(context.Background(), "a")
	require.Error(t, err)

	var storeErr *Error
	assert.ErrorAs(t, err, &storeErr)
}

func TestLocal_LockBlocksSecondLocker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	l := NewLocal(path)

	require.NoError(t, l.Lock())
	assert.Error(t, NewLocal(path).Lock(), "a held lock must reject another process")
	require.NoError(t, l.Unlock())
	require.NoError(t, NewLocal(path).Lock(), "released lock can be reacquired")
}

func TestStoreFactory(t *testing.T) {
	st, err := New(&Config{Type: "local", Path: filepath.Join(t.TempDir(), "r.json")})
	require.NoError(t, err)
	assert.NotNil(t, st)

	_, err = New(&Config{Type: "local"})
	assert.Error(t, err, "local store requires a path")

	_, err = New(&Config{Type: "etcd"})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}
