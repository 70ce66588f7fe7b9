package aws

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/lakekit-io/lakekit/pkg/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropsSelectsByVerb(t *testing.T) {
	h := New()
	req := &handler.Request{
		Type:          handler.RequestDelete,
		OldProperties: map[string]any{"bucket": "old"},
		NewProperties: map[string]any{"bucket": "new"},
	}
	assert.Equal(t, "old", strProp(h.props(req), "bucket"))

	req.Type = handler.RequestCreate
	assert.Equal(t, "new", strProp(h.props(req), "bucket"))
}

func TestPropertyHelpers(t *testing.T) {
	props := map[string]any{
		"name":    "data",
		"count":   float64(7), // JSON numbers arrive as float64
		"enabled": true,
		"tags":    map[string]any{"env": "prod", "n": 1},
		"list":    []any{"a", "b", 3},
	}

	assert.Equal(t, "data", strProp(props, "name"))
	assert.Equal(t, "", strProp(props, "missing"))
	assert.Equal(t, 7, intProp(props, "count"))
	assert.Equal(t, 0, intProp(props, "missing"))
	assert.True(t, boolProp(props, "enabled"))
	assert.False(t, boolProp(props, "missing"))
	assert.Equal(t, []string{"a", "b"}, strSliceProp(props, "list"))
	assert.Equal(t, map[string]string{"env": "prod"}, strMapProp(props, "tags"))
}

func TestIsAPIError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou", Message: "owned"}

	assert.True(t, isAPIError(apiErr, "BucketAlreadyOwnedByYou"))
	assert.True(t, isAPIError(apiErr, "NoSuchBucket", "BucketAlreadyOwnedByYou"))
	assert.False(t, isAPIError(apiErr, "NoSuchBucket"))
	assert.False(t, isAPIError(errors.New("plain error"), "NoSuchBucket"))
	assert.False(t, isAPIError(nil, "NoSuchBucket"))
}

func TestObjectBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.py")
	require.NoError(t, os.WriteFile(path, []byte("print('hi')"), 0644))

	body, err := objectBody(map[string]any{"source": path})
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", body)

	body, err = objectBody(map[string]any{"content": "inline"})
	require.NoError(t, err)
	assert.Equal(t, "inline", body)

	body, err = objectBody(map[string]any{"contentBase64": "aGVsbG8="})
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	_, err = objectBody(map[string]any{})
	assert.Error(t, err)
}

// fakeVersionedBucket serves one page of versions and delete markers and
// records which (key, versionId) pairs get deleted.
type fakeVersionedBucket struct {
	versions []s3types.ObjectVersion
	markers  []s3types.DeleteMarkerEntry
	deleted  []string
}

func (f *fakeVersionedBucket) ListObjectVersions(ctx context.Context, in *s3.ListObjectVersionsInput, _ ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	return &s3.ListObjectVersionsOutput{
		Versions:      f.versions,
		DeleteMarkers: f.markers,
		IsTruncated:   aws.Bool(false),
	}, nil
}

func (f *fakeVersionedBucket) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key)+"@"+aws.ToString(in.VersionId))
	return &s3.DeleteObjectOutput{}, nil
}

func TestEmptyBucketDeletesEveryVersionAndMarker(t *testing.T) {
	bucket := &fakeVersionedBucket{
		versions: []s3types.ObjectVersion{
			{Key: aws.String("data/part-0"), VersionId: aws.String("v1")},
			{Key: aws.String("data/part-0"), VersionId: aws.String("v2")},
		},
		markers: []s3types.DeleteMarkerEntry{
			{Key: aws.String("data/part-1"), VersionId: aws.String("m1")},
		},
	}

	require.NoError(t, emptyBucket(context.Background(), bucket, "demo"))
	assert.Equal(t, []string{"data/part-0@v1", "data/part-0@v2", "data/part-1@m1"}, bucket.deleted)
}

func TestNameTag(t *testing.T) {
	spec := nameTag(ec2types.ResourceTypeSubnet, "ingest-subnet")

	assert.Equal(t, ec2types.ResourceTypeSubnet, spec.ResourceType)
	require.Len(t, spec.Tags, 1)
	assert.Equal(t, "Name", aws.ToString(spec.Tags[0].Key))
	assert.Equal(t, "ingest-subnet", aws.ToString(spec.Tags[0].Value))
}

func TestQueueAttributes(t *testing.T) {
	attrs := queueAttributes(map[string]any{
		"visibilityTimeout": float64(300),
		"retentionPeriod":   float64(86400),
	})
	assert.Equal(t, "300", attrs["VisibilityTimeout"])
	assert.Equal(t, "86400", attrs["MessageRetentionPeriod"])

	assert.Empty(t, queueAttributes(map[string]any{}))
}

func TestPolicyDocument(t *testing.T) {
	doc, err := policyDocument(map[string]any{
		"assumeRolePolicy": map[string]any{"Version": "2012-10-17"},
	}, "assumeRolePolicy")
	require.NoError(t, err)
	assert.Contains(t, doc, "2012-10-17")

	doc, err = policyDocument(map[string]any{"assumeRolePolicy": `{"Version":"2012-10-17"}`}, "assumeRolePolicy")
	require.NoError(t, err)
	assert.Contains(t, doc, "2012-10-17")

	_, err = policyDocument(map[string]any{}, "assumeRolePolicy")
	assert.Error(t, err)
}
