package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyLogGroup manages a CloudWatch log group.
func (h *Handler) applyLogGroup(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "logGroupName")
	if name == "" {
		name = req.PhysicalID
	}

	if req.Type == handler.RequestDelete {
		if name == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.logsClient.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
			LogGroupName: aws.String(name),
		})
		if err != nil && !isAPIError(err, "ResourceNotFoundException") {
			return nil, fmt.Errorf("failed to delete log group %s: %w", name, err)
		}
		return handler.Success(name, nil), nil
	}

	_, err := h.logsClient.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
	})
	if err != nil && !isAPIError(err, "ResourceAlreadyExistsException") {
		return nil, fmt.Errorf("failed to create log group %s: %w", name, err)
	}

	if retention := intProp(props, "retentionDays"); retention > 0 {
		_, err := h.logsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(name),
			RetentionInDays: aws.Int32(int32(retention)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set retention on %s: %w", name, err)
		}
	}

	return handler.Success(name, map[string]any{"name": name}), nil
}
