package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyQueue manages an SQS queue. CreateQueue with identical attributes
// is idempotent; attribute changes go through SetQueueAttributes.
func (h *Handler) applyQueue(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "queueName")

	if req.Type == handler.RequestDelete {
		url := req.PhysicalID
		if url == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.sqsClient.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(url)})
		if err != nil && !isAPIError(err, "AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist") {
			return nil, fmt.Errorf("failed to delete queue %s: %w", name, err)
		}
		return handler.Success(url, nil), nil
	}

	attrs := queueAttributes(props)

	var url string
	out, err := h.sqsClient.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attrs,
	})
	if err != nil {
		if !isAPIError(err, "QueueAlreadyExists", "QueueNameExists") {
			return nil, fmt.Errorf("failed to create queue %s: %w", name, err)
		}
		// Attributes differ from the existing queue. Look it up and
		// converge the attributes in place.
		got, err := h.sqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
		if err != nil {
			return nil, fmt.Errorf("failed to look up queue %s: %w", name, err)
		}
		url = *got.QueueUrl
		if len(attrs) > 0 {
			_, err = h.sqsClient.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
				QueueUrl:   aws.String(url),
				Attributes: attrs,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to update queue %s: %w", name, err)
			}
		}
	} else {
		url = *out.QueueUrl
	}

	attrOut, err := h.sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read queue attributes for %s: %w", name, err)
	}

	return handler.Success(url, map[string]any{
		"arn":  attrOut.Attributes[string(sqstypes.QueueAttributeNameQueueArn)],
		"url":  url,
		"name": name,
	}), nil
}

func queueAttributes(props map[string]any) map[string]string {
	attrs := make(map[string]string)
	if v := intProp(props, "visibilityTimeout"); v > 0 {
		attrs[string(sqstypes.QueueAttributeNameVisibilityTimeout)] = strconv.Itoa(v)
	}
	if v := intProp(props, "retentionPeriod"); v > 0 {
		attrs[string(sqstypes.QueueAttributeNameMessageRetentionPeriod)] = strconv.Itoa(v)
	}
	if policy := mapProp(props, "policy"); policy != nil {
		data, _ := json.Marshal(policy)
		attrs[string(sqstypes.QueueAttributeNamePolicy)] = string(data)
	}
	return attrs
}
