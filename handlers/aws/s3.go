package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyBucket manages an S3 bucket. Create is idempotent because
// BucketAlreadyOwnedByYou is treated as success.
func (h *Handler) applyBucket(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "bucket")
	if name == "" {
		name = req.PhysicalID
	}

	if req.Type == handler.RequestDelete {
		if name == "" {
			return handler.Success("", nil), nil
		}
		if boolProp(props, "forceDestroy") {
			if err := emptyBucket(ctx, h.s3Client, name); err != nil {
				return nil, err
			}
		}
		_, err := h.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
		if err != nil && !isAPIError(err, "NoSuchBucket", "NotFound") {
			return nil, fmt.Errorf("failed to delete bucket %s: %w", name, err)
		}
		return handler.Success(name, nil), nil
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if h.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(h.region),
		}
	}
	_, err := h.s3Client.CreateBucket(ctx, input)
	if err != nil && !isAPIError(err, "BucketAlreadyOwnedByYou") {
		return nil, fmt.Errorf("failed to create bucket %s: %w", name, err)
	}

	if boolProp(props, "versioned") {
		_, err := h.s3Client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
			Bucket: aws.String(name),
			VersioningConfiguration: &s3types.VersioningConfiguration{
				Status: s3types.BucketVersioningStatusEnabled,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enable versioning on %s: %w", name, err)
		}
	}

	return handler.Success(name, map[string]any{
		"arn":  fmt.Sprintf("arn:aws:s3:::%s", name),
		"name": name,
	}), nil
}

// bucketEmptier is the slice of the S3 client emptyBucket needs.
type bucketEmptier interface {
	ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// emptyBucket removes every object version and delete marker so the bucket
// can be deleted. Versioned buckets keep prior versions behind plain
// DeleteObject calls, so deletes are addressed by (key, versionId) pair.
// ListObjectVersions paginates by marker, not continuation token, so the
// page loop is manual.
func emptyBucket(ctx context.Context, client bucketEmptier, name string) error {
	input := &s3.ListObjectVersionsInput{Bucket: aws.String(name)}
	for {
		page, err := client.ListObjectVersions(ctx, input)
		if err != nil {
			if isAPIError(err, "NoSuchBucket", "NotFound") {
				return nil
			}
			return fmt.Errorf("failed to list object versions in %s: %w", name, err)
		}
		for _, version := range page.Versions {
			if err := deleteObjectVersion(ctx, client, name, version.Key, version.VersionId); err != nil {
				return err
			}
		}
		for _, marker := range page.DeleteMarkers {
			if err := deleteObjectVersion(ctx, client, name, marker.Key, marker.VersionId); err != nil {
				return err
			}
		}
		if !aws.ToBool(page.IsTruncated) {
			return nil
		}
		input.KeyMarker = page.NextKeyMarker
		input.VersionIdMarker = page.NextVersionIdMarker
	}
}

func deleteObjectVersion(ctx context.Context, client bucketEmptier, bucket string, key, versionID *string) error {
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(bucket),
		Key:       key,
		VersionId: versionID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, aws.ToString(key), err)
	}
	return nil
}

// applyObject uploads an artifact to S3, either from a local file (source)
// or from inline content. Uploads are naturally idempotent: a re-run
// overwrites the same key with the same bytes.
func (h *Handler) applyObject(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	bucket := strProp(props, "bucket")
	key := strProp(props, "key")
	physicalID := fmt.Sprintf("s3://%s/%s", bucket, key)

	if req.Type == handler.RequestDelete {
		_, err := h.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil && !isAPIError(err, "NoSuchBucket", "NoSuchKey", "NotFound") {
			return nil, fmt.Errorf("failed to delete object %s: %w", physicalID, err)
		}
		return handler.Success(physicalID, nil), nil
	}

	body, err := objectBody(props)
	if err != nil {
		return nil, err
	}

	_, err = h.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(body),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", physicalID, err)
	}

	return handler.Success(physicalID, map[string]any{
		"bucket": bucket,
		"key":    key,
		"uri":    physicalID,
	}), nil
}

func objectBody(props map[string]any) (string, error) {
	if source := strProp(props, "source"); source != "" {
		data, err := os.ReadFile(source)
		if err != nil {
			return "", fmt.Errorf("failed to read source file %s: %w", source, err)
		}
		return string(data), nil
	}
	if content := strProp(props, "content"); content != "" {
		return content, nil
	}
	if encoded := strProp(props, "contentBase64"); encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("failed to decode contentBase64: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("object requires one of source, content or contentBase64")
}

// applyBucketNotification wires bucket events to an SQS queue. The
// notification configuration is replaced wholesale, so create and update
// are the same call and delete writes an empty configuration.
func (h *Handler) applyBucketNotification(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	bucket := strProp(props, "bucket")
	physicalID := bucket + "/notification"

	if req.Type == handler.RequestDelete {
		_, err := h.s3Client.PutBucketNotificationConfiguration(ctx, &s3.PutBucketNotificationConfigurationInput{
			Bucket:                    aws.String(bucket),
			NotificationConfiguration: &s3types.NotificationConfiguration{},
		})
		if err != nil && !isAPIError(err, "NoSuchBucket", "NotFound") {
			return nil, fmt.Errorf("failed to clear notifications on %s: %w", bucket, err)
		}
		return handler.Success(physicalID, nil), nil
	}

	events := strSliceProp(props, "events")
	if len(events) == 0 {
		events = []string{"s3:ObjectCreated:*"}
	}
	eventTypes := make([]s3types.Event, len(events))
	for i, e := range events {
		eventTypes[i] = s3types.Event(e)
	}

	cfg := &s3types.NotificationConfiguration{
		QueueConfigurations: []s3types.QueueConfiguration{
			{
				QueueArn: aws.String(strProp(props, "queueArn")),
				Events:   eventTypes,
			},
		},
	}
	if prefix := strProp(props, "prefix"); prefix != "" {
		cfg.QueueConfigurations[0].Filter = &s3types.NotificationConfigurationFilter{
			Key: &s3types.S3KeyFilter{
				FilterRules: []s3types.FilterRule{
					{Name: s3types.FilterRuleNamePrefix, Value: aws.String(prefix)},
				},
			},
		}
	}

	_, err := h.s3Client.PutBucketNotificationConfiguration(ctx, &s3.PutBucketNotificationConfigurationInput{
		Bucket:                    aws.String(bucket),
		NotificationConfiguration: cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure notifications on %s: %w", bucket, err)
	}

	return handler.Success(physicalID, map[string]any{"bucket": bucket}), nil
}
