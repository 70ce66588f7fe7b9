package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyRole manages an IAM role with inline policies and managed policy
// attachments. Update rewrites the assume-role document and re-puts every
// inline policy; PutRolePolicy is an upsert so this converges.
func (h *Handler) applyRole(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "roleName")
	if name == "" {
		name = req.PhysicalID
	}

	if req.Type == handler.RequestDelete {
		if name == "" {
			return handler.Success("", nil), nil
		}
		if err := h.detachRole(ctx, name); err != nil {
			return nil, err
		}
		_, err := h.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(name)})
		if err != nil && !isAPIError(err, "NoSuchEntity") {
			return nil, fmt.Errorf("failed to delete role %s: %w", name, err)
		}
		return handler.Success(name, nil), nil
	}

	assumeDoc, err := policyDocument(props, "assumeRolePolicy")
	if err != nil {
		return nil, err
	}

	createOut, err := h.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(assumeDoc),
	})
	var roleArn string
	if err != nil {
		if !isAPIError(err, "EntityAlreadyExists") {
			return nil, fmt.Errorf("failed to create role %s: %w", name, err)
		}
		got, err := h.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
		if err != nil {
			return nil, fmt.Errorf("failed to look up role %s: %w", name, err)
		}
		roleArn = *got.Role.Arn
		_, err = h.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(name),
			PolicyDocument: aws.String(assumeDoc),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update assume role policy for %s: %w", name, err)
		}
	} else {
		roleArn = *createOut.Role.Arn
	}

	for policyName, doc := range mapProp(props, "inlinePolicies") {
		docJSON, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("invalid inline policy %s: %w", policyName, err)
		}
		_, err = h.iamClient.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(name),
			PolicyName:     aws.String(policyName),
			PolicyDocument: aws.String(string(docJSON)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to put inline policy %s on %s: %w", policyName, name, err)
		}
	}

	for _, policyArn := range strSliceProp(props, "managedPolicyArns") {
		_, err := h.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: aws.String(policyArn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to attach policy %s to %s: %w", policyArn, name, err)
		}
	}

	return handler.Success(name, map[string]any{
		"arn":  roleArn,
		"name": name,
	}), nil
}

// detachRole removes inline policies and managed attachments so the role
// can be deleted.
func (h *Handler) detachRole(ctx context.Context, name string) error {
	inline, err := h.iamClient.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{RoleName: aws.String(name)})
	if err != nil {
		if isAPIError(err, "NoSuchEntity") {
			return nil
		}
		return fmt.Errorf("failed to list inline policies for %s: %w", name, err)
	}
	for _, policyName := range inline.PolicyNames {
		_, err := h.iamClient.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(name),
			PolicyName: aws.String(policyName),
		})
		if err != nil && !isAPIError(err, "NoSuchEntity") {
			return fmt.Errorf("failed to delete inline policy %s from %s: %w", policyName, name, err)
		}
	}

	attached, err := h.iamClient.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
	if err != nil {
		if isAPIError(err, "NoSuchEntity") {
			return nil
		}
		return fmt.Errorf("failed to list attached policies for %s: %w", name, err)
	}
	for _, policy := range attached.AttachedPolicies {
		_, err := h.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: policy.PolicyArn,
		})
		if err != nil && !isAPIError(err, "NoSuchEntity") {
			return fmt.Errorf("failed to detach policy %s from %s: %w", *policy.PolicyArn, name, err)
		}
	}
	return nil
}

// policyDocument renders a declared policy map as a JSON document string.
func policyDocument(props map[string]any, key string) (string, error) {
	doc := mapProp(props, key)
	if doc == nil {
		if s := strProp(props, key); s != "" {
			return s, nil
		}
		return "", fmt.Errorf("missing required property %s", key)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("invalid policy document %s: %w", key, err)
	}
	return string(data), nil
}
