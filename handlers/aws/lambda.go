package aws

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyFunction manages a Lambda function. An existing function on create
// is converged through the update path, so half-finished prior attempts
// heal on re-run.
func (h *Handler) applyFunction(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "functionName")
	if name == "" {
		name = req.PhysicalID
	}

	if req.Type == handler.RequestDelete {
		if name == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.lambdaClient.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
			FunctionName: aws.String(name),
		})
		if err != nil && !isAPIError(err, "ResourceNotFoundException") {
			return nil, fmt.Errorf("failed to delete function %s: %w", name, err)
		}
		return handler.Success(name, nil), nil
	}

	code, err := os.ReadFile(strProp(props, "codePath"))
	if err != nil {
		return nil, fmt.Errorf("failed to read function code: %w", err)
	}

	env := &lambdatypes.Environment{Variables: strMapProp(props, "environment")}
	timeout := int32(intProp(props, "timeout"))
	if timeout == 0 {
		timeout = 60
	}
	memory := int32(intProp(props, "memorySize"))
	if memory == 0 {
		memory = 128
	}

	var layers []string
	layers = append(layers, strSliceProp(props, "layers")...)

	exists := req.Type == handler.RequestUpdate
	if !exists {
		createOut, err := h.lambdaClient.CreateFunction(ctx, &lambda.CreateFunctionInput{
			FunctionName: aws.String(name),
			Runtime:      lambdatypes.Runtime(strProp(props, "runtime")),
			Handler:      aws.String(strProp(props, "handler")),
			Role:         aws.String(strProp(props, "roleArn")),
			Code:         &lambdatypes.FunctionCode{ZipFile: code},
			Environment:  env,
			Timeout:      aws.Int32(timeout),
			MemorySize:   aws.Int32(memory),
			Layers:       layers,
		})
		if err == nil {
			return handler.Success(name, map[string]any{
				"arn":  *createOut.FunctionArn,
				"name": name,
			}), nil
		}
		if !isAPIError(err, "ResourceConflictException") {
			return nil, fmt.Errorf("failed to create function %s: %w", name, err)
		}
	}

	_, err = h.lambdaClient.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(name),
		ZipFile:      code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update code for %s: %w", name, err)
	}

	waiter := lambda.NewFunctionUpdatedV2Waiter(h.lambdaClient)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)}, defaultWaitTimeout(ctx)); err != nil {
		return nil, fmt.Errorf("function %s did not settle after code update: %w", name, err)
	}

	confOut, err := h.lambdaClient.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(name),
		Runtime:      lambdatypes.Runtime(strProp(props, "runtime")),
		Handler:      aws.String(strProp(props, "handler")),
		Role:         aws.String(strProp(props, "roleArn")),
		Environment:  env,
		Timeout:      aws.Int32(timeout),
		MemorySize:   aws.Int32(memory),
		Layers:       layers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update configuration for %s: %w", name, err)
	}

	return handler.Success(name, map[string]any{
		"arn":  *confOut.FunctionArn,
		"name": name,
	}), nil
}

// applyLayerVersion publishes a Lambda layer version. Publishing is
// append-only; delete removes the recorded version.
func (h *Handler) applyLayerVersion(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "layerName")

	if req.Type == handler.RequestDelete {
		version := int64(intProp(req.OldProperties, "publishedVersion"))
		if version == 0 {
			// The version number lives in the outputs of the create;
			// without it there is nothing precise to remove.
			return handler.Success(req.PhysicalID, nil), nil
		}
		_, err := h.lambdaClient.DeleteLayerVersion(ctx, &lambda.DeleteLayerVersionInput{
			LayerName:     aws.String(name),
			VersionNumber: aws.Int64(version),
		})
		if err != nil && !isAPIError(err, "ResourceNotFoundException") {
			return nil, fmt.Errorf("failed to delete layer version %s:%d: %w", name, version, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	code, err := os.ReadFile(strProp(props, "codePath"))
	if err != nil {
		return nil, fmt.Errorf("failed to read layer code: %w", err)
	}

	var runtimes []lambdatypes.Runtime
	for _, r := range strSliceProp(props, "compatibleRuntimes") {
		runtimes = append(runtimes, lambdatypes.Runtime(r))
	}

	out, err := h.lambdaClient.PublishLayerVersion(ctx, &lambda.PublishLayerVersionInput{
		LayerName:          aws.String(name),
		Content:            &lambdatypes.LayerVersionContentInput{ZipFile: code},
		CompatibleRuntimes: runtimes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish layer %s: %w", name, err)
	}

	return handler.Success(*out.LayerVersionArn, map[string]any{
		"arn":     *out.LayerVersionArn,
		"version": out.Version,
	}), nil
}

// applyEventSourceMapping connects an event source (an SQS queue) to a
// function. The mapping UUID is the physical id.
func (h *Handler) applyEventSourceMapping(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)

	if req.Type == handler.RequestDelete {
		if req.PhysicalID == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.lambdaClient.DeleteEventSourceMapping(ctx, &lambda.DeleteEventSourceMappingInput{
			UUID: aws.String(req.PhysicalID),
		})
		if err != nil && !isAPIError(err, "ResourceNotFoundException") {
			return nil, fmt.Errorf("failed to delete event source mapping %s: %w", req.PhysicalID, err)
		}
		return handler.Success(req.PhysicalID, nil), nil
	}

	batchSize := int32(intProp(props, "batchSize"))
	if batchSize == 0 {
		batchSize = 10
	}

	if req.Type == handler.RequestUpdate && req.PhysicalID != "" {
		out, err := h.lambdaClient.UpdateEventSourceMapping(ctx, &lambda.UpdateEventSourceMappingInput{
			UUID:      aws.String(req.PhysicalID),
			BatchSize: aws.Int32(batchSize),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update event source mapping %s: %w", req.PhysicalID, err)
		}
		return handler.Success(*out.UUID, map[string]any{"uuid": *out.UUID}), nil
	}

	out, err := h.lambdaClient.CreateEventSourceMapping(ctx, &lambda.CreateEventSourceMappingInput{
		EventSourceArn: aws.String(strProp(props, "eventSourceArn")),
		FunctionName:   aws.String(strProp(props, "functionName")),
		BatchSize:      aws.Int32(batchSize),
	})
	if err != nil {
		if !isAPIError(err, "ResourceConflictException") {
			return nil, fmt.Errorf("failed to create event source mapping: %w", err)
		}
		return h.lookupEventSourceMapping(ctx, props)
	}

	return handler.Success(*out.UUID, map[string]any{"uuid": *out.UUID}), nil
}

func (h *Handler) lookupEventSourceMapping(ctx context.Context, props map[string]any) (*handler.Response, error) {
	out, err := h.lambdaClient.ListEventSourceMappings(ctx, &lambda.ListEventSourceMappingsInput{
		EventSourceArn: aws.String(strProp(props, "eventSourceArn")),
		FunctionName:   aws.String(strProp(props, "functionName")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list event source mappings: %w", err)
	}
	if len(out.EventSourceMappings) == 0 {
		return nil, fmt.Errorf("event source mapping exists but could not be found")
	}
	uuid := *out.EventSourceMappings[0].UUID
	return handler.Success(uuid, map[string]any{"uuid": uuid}), nil
}
