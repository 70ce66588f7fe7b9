package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

// applyDatabase manages a Glue database.
func (h *Handler) applyDatabase(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "databaseName")
	if name == "" {
		name = req.PhysicalID
	}

	if req.Type == handler.RequestDelete {
		if name == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.glueClient.DeleteDatabase(ctx, &glue.DeleteDatabaseInput{Name: aws.String(name)})
		if err != nil && !isAPIError(err, "EntityNotFoundException") {
			return nil, fmt.Errorf("failed to delete database %s: %w", name, err)
		}
		return handler.Success(name, nil), nil
	}

	input := &gluetypes.DatabaseInput{Name: aws.String(name)}
	if desc := strProp(props, "description"); desc != "" {
		input.Description = aws.String(desc)
	}
	if loc := strProp(props, "locationUri"); loc != "" {
		input.LocationUri = aws.String(loc)
	}

	_, err := h.glueClient.CreateDatabase(ctx, &glue.CreateDatabaseInput{DatabaseInput: input})
	if err != nil {
		if !isAPIError(err, "AlreadyExistsException") {
			return nil, fmt.Errorf("failed to create database %s: %w", name, err)
		}
		_, err = h.glueClient.UpdateDatabase(ctx, &glue.UpdateDatabaseInput{
			Name:          aws.String(name),
			DatabaseInput: input,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update database %s: %w", name, err)
		}
	}

	return handler.Success(name, map[string]any{"name": name}), nil
}

// applyFederatedCatalog creates a Glue catalog federated to an S3 Tables
// bucket, which makes Iceberg tables in the bucket queryable through the
// Glue Data Catalog.
func (h *Handler) applyFederatedCatalog(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	props := h.props(req)
	name := strProp(props, "catalogName")
	if name == "" {
		name = req.PhysicalID
	}

	if req.Type == handler.RequestDelete {
		if name == "" {
			return handler.Success("", nil), nil
		}
		_, err := h.glueClient.DeleteCatalog(ctx, &glue.DeleteCatalogInput{CatalogId: aws.String(name)})
		if err != nil && !isAPIError(err, "EntityNotFoundException") {
			return nil, fmt.Errorf("failed to delete catalog %s: %w", name, err)
		}
		return handler.Success(name, nil), nil
	}

	account, err := h.account(ctx)
	if err != nil {
		return nil, err
	}

	connection := strProp(props, "connectionName")
	if connection == "" {
		connection = "aws:s3tables"
	}
	identifier := strProp(props, "identifier")
	if identifier == "" {
		identifier = fmt.Sprintf("arn:aws:s3tables:%s:%s:bucket/%s", h.region, account, strProp(props, "tableBucketName"))
	}

	input := &gluetypes.CatalogInput{
		FederatedCatalog: &gluetypes.FederatedCatalog{
			ConnectionName: aws.String(connection),
			Identifier:     aws.String(identifier),
		},
		CreateDatabaseDefaultPermissions: []gluetypes.PrincipalPermissions{},
		CreateTableDefaultPermissions:    []gluetypes.PrincipalPermissions{},
	}

	_, err = h.glueClient.CreateCatalog(ctx, &glue.CreateCatalogInput{
		Name:         aws.String(name),
		CatalogInput: input,
	})
	if err != nil && !isAPIError(err, "AlreadyExistsException") {
		return nil, fmt.Errorf("failed to create federated catalog %s: %w", name, err)
	}

	return handler.Success(name, map[string]any{
		"name":       name,
		"identifier": identifier,
	}), nil
}
