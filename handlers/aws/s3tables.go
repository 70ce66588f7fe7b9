package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3tables"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyTableBucket manages an S3 Tables table bucket. The bucket ARN is
// the physical id; a re-created bucket with the same name gets the same
// ARN shape, so conflict on create is resolved by looking the bucket up.
func (h *Handler) applyTableBucket(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "name")

	if req.Type == handler.RequestDelete {
		arn := req.PhysicalID
		if arn == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.s3tablesClient.DeleteTableBucket(ctx, &s3tables.DeleteTableBucketInput{
			TableBucketARN: aws.String(arn),
		})
		if err != nil && !isAPIError(err, "NotFoundException") {
			return nil, fmt.Errorf("failed to delete table bucket %s: %w", name, err)
		}
		return handler.Success(arn, nil), nil
	}

	out, err := h.s3tablesClient.CreateTableBucket(ctx, &s3tables.CreateTableBucketInput{
		Name: aws.String(name),
	})
	if err != nil {
		if !isAPIError(err, "ConflictException") {
			return nil, fmt.Errorf("failed to create table bucket %s: %w", name, err)
		}
		return h.lookupTableBucket(ctx, name)
	}

	return handler.Success(*out.Arn, map[string]any{
		"arn":  *out.Arn,
		"name": name,
	}), nil
}

func (h *Handler) lookupTableBucket(ctx context.Context, name string) (*handler.Response, error) {
	paginator := s3tables.NewListTableBucketsPaginator(h.s3tablesClient, &s3tables.ListTableBucketsInput{
		Prefix: aws.String(name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list table buckets: %w", err)
		}
		for _, tb := range page.TableBuckets {
			if *tb.Name == name {
				return handler.Success(*tb.Arn, map[string]any{
					"arn":  *tb.Arn,
					"name": name,
				}), nil
			}
		}
	}
	return nil, fmt.Errorf("table bucket %s exists but could not be found", name)
}
