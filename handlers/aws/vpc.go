package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyVpc manages a VPC. EC2 generates ids, so idempotency on create
// relies on a Name tag lookup before creating.
func (h *Handler) applyVpc(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "name")
	if name == "" {
		name = req.LogicalID
	}

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(req.PhysicalID)})
		if err != nil && !isAPIError(err, "InvalidVpcID.NotFound") {
			return nil, fmt.Errorf("failed to delete vpc %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	if existing, err := h.findVpcByName(ctx, name); err != nil {
		return nil, err
	} else if existing != "" {
		return handler.Success(existing, map[string]any{"vpcId": existing, "name": name}), nil
	}

	out, err := h.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: aws.String(strProp(props, "cidrBlock")),
		TagSpecifications: []ec2types.TagSpecification{nameTag(ec2types.ResourceTypeVpc, name)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vpc %s: %w", name, err)
	}
	vpcID := *out.Vpc.VpcId

	if boolProp(props, "enableDnsSupport") || boolProp(props, "enableDnsHostnames") {
		_, err = h.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:            aws.String(vpcID),
			EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enable DNS support on %s: %w", vpcID, err)
		}
		_, err = h.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              aws.String(vpcID),
			EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enable DNS hostnames on %s: %w", vpcID, err)
		}
	}

	return handler.Success(vpcID, map[string]any{"vpcId": vpcID, "name": name}), nil
}

func (h *Handler) findVpcByName(ctx context.Context, name string) (string, error) {
	out, err := h.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe vpcs: %w", err)
	}
	if len(out.Vpcs) > 0 {
		return *out.Vpcs[0].VpcId, nil
	}
	return "", nil
}

// applySubnet manages a subnet. Like VPCs, create idempotency relies on a
// Name tag lookup scoped to the VPC.
func (h *Handler) applySubnet(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "name")
	if name == "" {
		name = req.LogicalID
	}

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(req.PhysicalID)})
		if err != nil && !isAPIError(err, "InvalidSubnetID.NotFound") {
			return nil, fmt.Errorf("failed to delete subnet %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	vpcID := strProp(props, "vpcId")

	existing, err := h.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{name}},
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe subnets: %w", err)
	}
	if len(existing.Subnets) > 0 {
		id := *existing.Subnets[0].SubnetId
		return handler.Success(id, map[string]any{"subnetId": id, "name": name}), nil
	}

	input := &ec2.CreateSubnetInput{
		VpcId:             aws.String(vpcID),
		CidrBlock:         aws.String(strProp(props, "cidrBlock")),
		TagSpecifications: []ec2types.TagSpecification{nameTag(ec2types.ResourceTypeSubnet, name)},
	}
	if az := strProp(props, "availabilityZone"); az != "" {
		input.AvailabilityZone = aws.String(az)
	}
	out, err := h.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnet %s: %w", name, err)
	}
	subnetID := *out.Subnet.SubnetId

	if boolProp(props, "mapPublicIpOnLaunch") {
		_, err = h.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(subnetID),
			MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enable public IPs on %s: %w", subnetID, err)
		}
	}

	return handler.Success(subnetID, map[string]any{"subnetId": subnetID, "name": name}), nil
}

// applySecurityGroup manages a security group, including the
// self-referencing ingress rule interface endpoints need.
func (h *Handler) applySecurityGroup(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "groupName")

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
			GroupId: aws.String(req.PhysicalID),
		})
		if err != nil && !isAPIError(err, "InvalidGroup.NotFound", "InvalidGroupId.NotFound") {
			return nil, fmt.Errorf("failed to delete security group %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	vpcID := strProp(props, "vpcId")

	var groupID string
	out, err := h.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(strProp(props, "description")),
		VpcId:       aws.String(vpcID),
	})
	if err != nil {
		if !isAPIError(err, "InvalidGroup.Duplicate") {
			return nil, fmt.Errorf("failed to create security group %s: %w", name, err)
		}
		got, err := h.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
			Filters: []ec2types.Filter{
				{Name: aws.String("group-name"), Values: []string{name}},
				{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			},
		})
		if err != nil || len(got.SecurityGroups) == 0 {
			return nil, fmt.Errorf("failed to look up security group %s: %w", name, err)
		}
		groupID = *got.SecurityGroups[0].GroupId
	} else {
		groupID = *out.GroupId
	}

	if boolProp(props, "allowSelfIngress") {
		_, err := h.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId: aws.String(groupID),
			IpPermissions: []ec2types.IpPermission{
				{
					IpProtocol: aws.String("-1"),
					UserIdGroupPairs: []ec2types.UserIdGroupPair{
						{GroupId: aws.String(groupID)},
					},
				},
			},
		})
		if err != nil && !isAPIError(err, "InvalidPermission.Duplicate") {
			return nil, fmt.Errorf("failed to authorize self ingress on %s: %w", groupID, err)
		}
	}

	return handler.Success(groupID, map[string]any{"groupId": groupID, "name": name}), nil
}

// applyVpcEndpoint manages an interface VPC endpoint.
func (h *Handler) applyVpcEndpoint(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.ec2Client.DeleteVpcEndpoints(ctx, &ec2.DeleteVpcEndpointsInput{
			VpcEndpointIds: []string{req.PhysicalID},
		})
		if err != nil && !isAPIError(err, "InvalidVpcEndpoint.NotFound", "InvalidVpcEndpointId.NotFound") {
			return nil, fmt.Errorf("failed to delete vpc endpoint %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	serviceName := strProp(props, "serviceName")
	vpcID := strProp(props, "vpcId")

	existing, err := h.ec2Client.DescribeVpcEndpoints(ctx, &ec2.DescribeVpcEndpointsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("service-name"), Values: []string{serviceName}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe vpc endpoints: %w", err)
	}
	if len(existing.VpcEndpoints) > 0 {
		id := *existing.VpcEndpoints[0].VpcEndpointId
		return handler.Success(id, map[string]any{"endpointId": id}), nil
	}

	out, err := h.ec2Client.CreateVpcEndpoint(ctx, &ec2.CreateVpcEndpointInput{
		VpcId:             aws.String(vpcID),
		ServiceName:       aws.String(serviceName),
		VpcEndpointType:   ec2types.VpcEndpointTypeInterface,
		SubnetIds:         strSliceProp(props, "subnetIds"),
		SecurityGroupIds:  strSliceProp(props, "securityGroupIds"),
		PrivateDnsEnabled: aws.Bool(boolProp(props, "privateDnsEnabled")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vpc endpoint for %s: %w", serviceName, err)
	}

	id := *out.VpcEndpoint.VpcEndpointId
	return handler.Success(id, map[string]any{"endpointId": id}), nil
}

func nameTag(resourceType ec2types.ResourceType, name string) ec2types.TagSpecification {
	return ec2types.TagSpecification{
		ResourceType: resourceType,
		Tags: []ec2types.Tag{
			{Key: aws.String("Name"), Value: aws.String(name)},
		},
	}
}
