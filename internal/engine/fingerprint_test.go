package engine

import (
	"testing"

	"github.com/lakekit-io/lakekit/internal/ir"
	"github.com/stretchr/testify/assert"
)

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := &ir.Node{
		ID:   "grant",
		Kind: "aws:LakeFormation.AdminGrant",
		Properties: map[string]any{
			"principalArn": "arn:aws:iam::123456789012:role/etl",
			"region":       "us-east-1",
		},
	}
	b := &ir.Node{
		ID:   "grant",
		Kind: "aws:LakeFormation.AdminGrant",
		Properties: map[string]any{
			"region":       "us-east-1",
			"principalArn": "arn:aws:iam::123456789012:role/etl",
		},
	}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_ChangesWithProperties(t *testing.T) {
	node := &ir.Node{ID: "bucket", Properties: map[string]any{"bucket": "data"}}
	before := Fingerprint(node)

	node.Properties["bucket"] = "data-v2"
	assert.NotEqual(t, before, Fingerprint(node))
}

func TestFingerprint_VersionBumpForcesChange(t *testing.T) {
	node := &ir.Node{
		ID:         "grant",
		Version:    "1",
		Properties: map[string]any{"principalArn": "arn:aws:iam::123456789012:role/etl"},
	}
	before := Fingerprint(node)

	node.Version = "2"
	assert.NotEqual(t, before, Fingerprint(node))
}

func TestFingerprint_TimestampExcluded(t *testing.T) {
	node := &ir.Node{
		ID:         "grant",
		Version:    "1",
		Timestamp:  "2026-08-29T10:00:00Z",
		Properties: map[string]any{"principalArn": "arn:aws:iam::123456789012:role/etl"},
	}
	before := Fingerprint(node)

	node.Timestamp = "2026-08-30T10:00:00Z"
	assert.Equal(t, before, Fingerprint(node),
		"a timestamp-only change must not alter the fingerprint")
}

func TestFingerprint_NestedValues(t *testing.T) {
	a := &ir.Node{
		ID: "role",
		Properties: map[string]any{
			"assumeRolePolicy": map[string]any{
				"Version":   "2012-10-17",
				"Statement": []any{map[string]any{"Effect": "Allow"}},
			},
		},
	}
	b := &ir.Node{
		ID: "role",
		Properties: map[string]any{
			"assumeRolePolicy": map[any]any{
				"Statement": []any{map[any]any{"Effect": "Allow"}},
				"Version":   "2012-10-17",
			},
		},
	}

	// map[any]any and map[string]any shapes normalize to the same digest.
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}
