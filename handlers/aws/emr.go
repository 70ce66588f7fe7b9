package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emrserverless"
	emrtypes "github.com/aws/aws-sdk-go-v2/service/emrserverless/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyApplication manages an EMR Serverless application. Applications
// must be stopped before deletion.
func (h *Handler) applyApplication(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "name")

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.emrClient.StopApplication(ctx, &emrserverless.StopApplicationInput{
			ApplicationId: aws.String(req.PhysicalID),
		})
		if err != nil && !isAPIError(err, "ResourceNotFoundException") {
			return nil, fmt.Errorf("failed to stop application %s: %w", req.PhysicalID, err)
		}
		_, err = h.emrClient.DeleteApplication(ctx, &emrserverless.DeleteApplicationInput{
			ApplicationId: aws.String(req.PhysicalID),
		})
		if err != nil && !isAPIError(err, "ResourceNotFoundException") {
			return nil, fmt.Errorf("failed to delete application %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	if req.Type == handler.RequestUpdate && req.PhysicalID != "" {
		input := &emrserverless.UpdateApplicationInput{
			ApplicationId: aws.String(req.PhysicalID),
			ReleaseLabel:  aws.String(strProp(props, "releaseLabel")),
		}
		if netCfg := networkConfiguration(props); netCfg != nil {
			input.NetworkConfiguration = netCfg
		}
		out, err := h.emrClient.UpdateApplication(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to update application %s: %w", req.PhysicalID, err)
		}
		return handler.Success(*out.Application.ApplicationId, map[string]any{
			"applicationId": *out.Application.ApplicationId,
			"arn":           *out.Application.Arn,
		}), nil
	}

	if existing, err := h.findApplicationByName(ctx, name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	input := &emrserverless.CreateApplicationInput{
		Name:         aws.String(name),
		ReleaseLabel: aws.String(strProp(props, "releaseLabel")),
		Type:         aws.String(strProp(props, "type")),
	}
	if netCfg := networkConfiguration(props); netCfg != nil {
		input.NetworkConfiguration = netCfg
	}
	if maxCap := maximumCapacity(props); maxCap != nil {
		input.MaximumCapacity = maxCap
	}

	out, err := h.emrClient.CreateApplication(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create application %s: %w", name, err)
	}

	return handler.Success(*out.ApplicationId, map[string]any{
		"applicationId": *out.ApplicationId,
		"arn":           *out.Arn,
	}), nil
}

func networkConfiguration(props map[string]any) *emrtypes.NetworkConfiguration {
	subnets := strSliceProp(props, "subnetIds")
	groups := strSliceProp(props, "securityGroupIds")
	if len(subnets) == 0 && len(groups) == 0 {
		return nil
	}
	return &emrtypes.NetworkConfiguration{
		SubnetIds:        subnets,
		SecurityGroupIds: groups,
	}
}

func maximumCapacity(props map[string]any) *emrtypes.MaximumAllowedResources {
	capacity := mapProp(props, "maximumCapacity")
	if capacity == nil {
		return nil
	}
	out := &emrtypes.MaximumAllowedResources{
		Cpu:    aws.String(strProp(capacity, "cpu")),
		Memory: aws.String(strProp(capacity, "memory")),
	}
	if disk := strProp(capacity, "disk"); disk != "" {
		out.Disk = aws.String(disk)
	}
	return out
}

func (h *Handler) findApplicationByName(ctx context.Context, name string) (*handler.Response, error) {
	paginator := emrserverless.NewListApplicationsPaginator(h.emrClient, &emrserverless.ListApplicationsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list applications: %w", err)
		}
		for _, app := range page.Applications {
			if app.Name != nil && *app.Name == name {
				return handler.Success(*app.Id, map[string]any{
					"applicationId": *app.Id,
					"arn":           *app.Arn,
				}), nil
			}
		}
	}
	return nil, nil
}

// applyJobRun starts an EMR Serverless job. This is a one-shot operation:
// create and update both start a fresh run, delete cancels a still-active
// run and is otherwise a no-op.
func (h *Handler) applyJobRun(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	applicationID := strProp(props, "applicationId")

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.emrClient.CancelJobRun(ctx, &emrserverless.CancelJobRunInput{
			ApplicationId: aws.String(applicationID),
			JobRunId:      aws.String(req.PhysicalID),
		})
		if err != nil && !isAPIError(err, "ResourceNotFoundException", "ValidationException") {
			return nil, fmt.Errorf("failed to cancel job run %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	driver := &emrtypes.JobDriverMemberSparkSubmit{
		Value: emrtypes.SparkSubmit{
			EntryPoint: aws.String(strProp(props, "entryPoint")),
		},
	}
	if args := strSliceProp(props, "entryPointArguments"); len(args) > 0 {
		driver.Value.EntryPointArguments = args
	}
	if params := strProp(props, "sparkSubmitParameters"); params != "" {
		driver.Value.SparkSubmitParameters = aws.String(params)
	}

	out, err := h.emrClient.StartJobRun(ctx, &emrserverless.StartJobRunInput{
		ApplicationId:    aws.String(applicationID),
		ExecutionRoleArn: aws.String(strProp(props, "executionRoleArn")),
		Name:             aws.String(req.LogicalID),
		JobDriver:        driver,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start job run on %s: %w", applicationID, err)
	}

	return handler.Success(*out.JobRunId, map[string]any{
		"jobRunId":      *out.JobRunId,
		"applicationId": applicationID,
	}), nil
}
