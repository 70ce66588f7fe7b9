package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	lftypes "github.com/aws/aws-sdk-go-v2/service/lakeformation/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyAdminGrant adds a principal to the Lake Formation data lake
// administrators. The settings are read-modify-write; re-running with the
// principal already present is a no-op.
func (h *Handler) applyAdminGrant(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	principal := strProp(props, "principalArn")
	physicalID := "admin-grant/" + principal

	settings, err := h.lakeformationClient.GetDataLakeSettings(ctx, &lakeformation.GetDataLakeSettingsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to read data lake settings: %w", err)
	}

	admins := settings.DataLakeSettings.DataLakeAdmins
	var kept []lftypes.DataLakePrincipal
	present := false
	for _, admin := range admins {
		if admin.DataLakePrincipalIdentifier != nil && *admin.DataLakePrincipalIdentifier == principal {
			present = true
			continue
		}
		kept = append(kept, admin)
	}

	switch req.Type {
	case handler.RequestDelete:
		if !present {
			return handler.Success(physicalID, nil), nil
		}
		settings.DataLakeSettings.DataLakeAdmins = kept
	default:
		if present {
			return handler.Success(physicalID, map[string]any{"principalArn": principal}), nil
		}
		settings.DataLakeSettings.DataLakeAdmins = append(admins, lftypes.DataLakePrincipal{
			DataLakePrincipalIdentifier: aws.String(principal),
		})
	}

	_, err = h.lakeformationClient.PutDataLakeSettings(ctx, &lakeformation.PutDataLakeSettingsInput{
		DataLakeSettings: settings.DataLakeSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write data lake settings: %w", err)
	}

	return handler.Success(physicalID, map[string]any{"principalArn": principal}), nil
}

// applyResourceRegistration registers a storage location with Lake
// Formation so it can govern access to it.
func (h *Handler) applyResourceRegistration(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	resourceArn := strProp(props, "resourceArn")
	if req.Type == handler.RequestDelete && resourceArn == "" {
		resourceArn = req.PhysicalID
	}

	if req.Type == handler.RequestDelete {
		if resourceArn == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.lakeformationClient.DeregisterResource(ctx, &lakeformation.DeregisterResourceInput{
			ResourceArn: aws.String(resourceArn),
		})
		if err != nil && !isAPIError(err, "EntityNotFoundException") {
			return nil, fmt.Errorf("failed to deregister resource %s: %w", resourceArn, err)
		}
		return handler.Success(resourceArn, nil), nil
	}

	input := &lakeformation.RegisterResourceInput{
		ResourceArn:          aws.String(resourceArn),
		WithFederation:       aws.Bool(boolProp(props, "withFederation")),
		UseServiceLinkedRole: aws.Bool(boolProp(props, "useServiceLinkedRole")),
	}
	if roleArn := strProp(props, "roleArn"); roleArn != "" {
		input.RoleArn = aws.String(roleArn)
		input.UseServiceLinkedRole = aws.Bool(false)
	}

	_, err := h.lakeformationClient.RegisterResource(ctx, input)
	if err != nil && !isAPIError(err, "AlreadyExistsException") {
		return nil, fmt.Errorf("failed to register resource %s: %w", resourceArn, err)
	}

	return handler.Success(resourceArn, map[string]any{"resourceArn": resourceArn}), nil
}
