package aws

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyInstance manages the data-generation EC2 instance. Create looks up
// a live instance by Name tag first so a re-run does not launch a second
// one.
func (h *Handler) applyInstance(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "name")
	if name == "" {
		name = req.LogicalID
	}

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: []string{req.PhysicalID},
		})
		if err != nil && !isAPIError(err, "InvalidInstanceID.NotFound") {
			return nil, fmt.Errorf("failed to terminate instance %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	if existing, err := h.findInstanceByName(ctx, name); err != nil {
		return nil, err
	} else if existing != "" {
		return handler.Success(existing, map[string]any{"instanceId": existing, "name": name}), nil
	}

	input := &ec2.RunInstancesInput{
		ImageId:           aws.String(strProp(props, "imageId")),
		InstanceType:      ec2types.InstanceType(strProp(props, "instanceType")),
		MinCount:          aws.Int32(1),
		MaxCount:          aws.Int32(1),
		TagSpecifications: []ec2types.TagSpecification{nameTag(ec2types.ResourceTypeInstance, name)},
	}
	if subnetID := strProp(props, "subnetId"); subnetID != "" {
		input.SubnetId = aws.String(subnetID)
	}
	if groups := strSliceProp(props, "securityGroupIds"); len(groups) > 0 {
		input.SecurityGroupIds = groups
	}
	if userData := strProp(props, "userData"); userData != "" {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(userData)))
	}
	if profile := strProp(props, "instanceProfile"); profile != "" {
		input.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{Name: aws.String(profile)}
	}

	out, err := h.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to launch instance %s: %w", name, err)
	}
	instanceID := *out.Instances[0].InstanceId

	return handler.Success(instanceID, map[string]any{"instanceId": instanceID, "name": name}), nil
}

func (h *Handler) findInstanceByName(ctx context.Context, name string) (string, error) {
	out, err := h.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{name}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe instances: %w", err)
	}
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			return *instance.InstanceId, nil
		}
	}
	return "", nil
}
