// Package aws implements the built-in handler for AWS-backed node kinds.
// Every operation is written to be safely re-invokable: creates tolerate
// an existing resource, deletes treat already-gone as success.
package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/emrserverless"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3tables"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/lakekit-io/lakekit/pkg/handler"
)

type Handler struct {
	s3Client            *s3.Client
	s3tablesClient      *s3tables.Client
	sqsClient           *sqs.Client
	lambdaClient        *lambda.Client
	ec2Client           *ec2.Client
	iamClient           *iam.Client
	glueClient          *glue.Client
	emrClient           *emrserverless.Client
	lakeformationClient *lakeformation.Client
	logsClient          *cloudwatchlogs.Client
	stsClient           *sts.Client

	region    string
	accountID string
}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) ensureClients(ctx context.Context, region string) error {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	if h.s3Client != nil && h.region == region {
		return nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	h.s3Client = s3.NewFromConfig(cfg)
	h.s3tablesClient = s3tables.NewFromConfig(cfg)
	h.sqsClient = sqs.NewFromConfig(cfg)
	h.lambdaClient = lambda.NewFromConfig(cfg)
	h.ec2Client = ec2.NewFromConfig(cfg)
	h.iamClient = iam.NewFromConfig(cfg)
	h.glueClient = glue.NewFromConfig(cfg)
	h.emrClient = emrserverless.NewFromConfig(cfg)
	h.lakeformationClient = lakeformation.NewFromConfig(cfg)
	h.logsClient = cloudwatchlogs.NewFromConfig(cfg)
	h.stsClient = sts.NewFromConfig(cfg)
	h.region = region

	return nil
}

// account resolves and caches the caller's account id. Several catalog and
// grant operations need it to build ARNs.
func (h *Handler) account(ctx context.Context) (string, error) {
	if h.accountID != "" {
		return h.accountID, nil
	}
	out, err := h.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	h.accountID = *out.Account
	return h.accountID, nil
}

func (h *Handler) Invoke(ctx context.Context, req *handler.Request) (*handler.Response, error) {
	region := strProp(h.props(req), "region")
	if err := h.ensureClients(ctx, region); err != nil {
		return nil, err
	}

	switch req.Kind {
	case "aws:S3.Bucket":
		return h.applyBucket(ctx, req)
	case "aws:S3.Object":
		return h.applyObject(ctx, req)
	case "aws:S3.BucketNotification":
		return h.applyBucketNotification(ctx, req)
	case "aws:S3Tables.TableBucket":
		return h.applyTableBucket(ctx, req)
	case "aws:SQS.Queue":
		return h.applyQueue(ctx, req)
	case "aws:Lambda.Function":
		return h.applyFunction(ctx, req)
	case "aws:Lambda.LayerVersion":
		return h.applyLayerVersion(ctx, req)
	case "aws:Lambda.EventSourceMapping":
		return h.applyEventSourceMapping(ctx, req)
	case "aws:EC2.Vpc":
		return h.applyVpc(ctx, req)
	case "aws:EC2.Subnet":
		return h.applySubnet(ctx, req)
	case "aws:EC2.SecurityGroup":
		return h.applySecurityGroup(ctx, req)
	case "aws:EC2.VpcEndpoint":
		return h.applyVpcEndpoint(ctx, req)
	case "aws:EC2.Instance":
		return h.applyInstance(ctx, req)
	case "aws:IAM.Role":
		return h.applyRole(ctx, req)
	case "aws:Glue.Database":
		return h.applyDatabase(ctx, req)
	case "aws:Glue.FederatedCatalog":
		return h.applyFederatedCatalog(ctx, req)
	case "aws:EMRServerless.Application":
		return h.applyApplication(ctx, req)
	case "aws:EMRServerless.JobRun":
		return h.applyJobRun(ctx, req)
	case "aws:LakeFormation.AdminGrant":
		return h.applyAdminGrant(ctx, req)
	case "aws:LakeFormation.ResourceRegistration":
		return h.applyResourceRegistration(ctx, req)
	case "aws:Logs.LogGroup":
		return h.applyLogGroup(ctx, req)
	}

	return nil, fmt.Errorf("unknown node kind: %s", req.Kind)
}

// props returns the property set relevant to the request verb: the declared
// properties for create and update, the recorded ones for delete.
func (h *Handler) props(req *handler.Request) map[string]any {
	if req.Type == handler.RequestDelete {
		return req.OldProperties
	}
	return req.NewProperties
}

// defaultWaitTimeout bounds SDK waiters by the remaining request deadline,
// falling back to five minutes when the context has none.
func defaultWaitTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
	}
	return 5 * time.Minute
}

// isAPIError reports whether err is a smithy API error with one of the
// given codes.
func isAPIError(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, code := range codes {
		if ae.ErrorCode() == code {
			return true
		}
	}
	return false
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func boolProp(props map[string]any, key string) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return false
}

func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func mapProp(props map[string]any, key string) map[string]any {
	if v, ok := props[key].(map[string]any); ok {
		return v
	}
	return nil
}

func strSliceProp(props map[string]any, key string) []string {
	var out []string
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func strMapProp(props map[string]any, key string) map[string]string {
	out := make(map[string]string)
	for k, v := range mapProp(props, key) {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
