package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/lakekit-io/lakekit/internal/ir"
)

// s3Store keeps the record set in an S3 object, with optional DynamoDB
// conditional-put locking.
type s3Store struct {
	bucket        string
	key           string
	region        string
	dynamoDBTable string
	encrypt       bool
	profile       string

	s3Client *s3.Client
	dbClient *dynamodb.Client
	lockID   string
}

func newS3Store(config map[string]string) (Store, error) {
	bucket := config["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 store requires 'bucket' configuration")
	}

	key := config["key"]
	if key == "" {
		key = "lakekit/records.json"
	}

	region := config["region"]
	if region == "" {
		region = "us-east-1"
	}

	s := &s3Store{
		bucket:        bucket,
		key:           key,
		region:        region,
		dynamoDBTable: config["dynamodb_table"],
		encrypt:       config["encrypt"] == "true",
		profile:       config["profile"],
	}

	if err := s.initClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}

	return s, nil
}

func (s *s3Store) initClients() error {
	ctx := context.Background()

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(s.region))
	if s.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}

	s.s3Client = s3.NewFromConfig(cfg)

	if s.dynamoDBTable != "" {
		s.dbClient = dynamodb.NewFromConfig(cfg)
	}

	return nil
}

func (s *s3Store) Get(ctx context.Context, id string) (*ir.ApplyRecord, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return records[id], nil
}

func (s *s3Store) Put(ctx context.Context, id string, rec *ir.ApplyRecord) error {
	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	records[id] = rec
	return s.save(ctx, records)
}

func (s *s3Store) Delete(ctx context.Context, id string) error {
	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	delete(records, id)
	return s.save(ctx, records)
}

func (s *s3Store) List(ctx context.Context) (map[string]*ir.ApplyRecord, error) {
	return s.load(ctx)
}

func (s *s3Store) load(ctx context.Context) (map[string]*ir.ApplyRecord, error) {
	result, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return make(map[string]*ir.ApplyRecord), nil
		}
		// Some S3 API variations surface the miss differently.
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return make(map[string]*ir.ApplyRecord), nil
		}
		return nil, &Error{Op: "read", Err: fmt.Errorf("s3://%s/%s: %w", s.bucket, s.key, err)}
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, &Error{Op: "read", Err: err}
	}
	content := buf.Bytes()

	if IsEncrypted(content) {
		content, err = DecryptRecords(content)
		if err != nil {
			return nil, &Error{Op: "decrypt", Err: err}
		}
	}

	var f recordFile
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, &Error{Op: "parse", Err: err}
	}
	if f.Records == nil {
		f.Records = make(map[string]*ir.ApplyRecord)
	}
	return f.Records, nil
}

func (s *s3Store) save(ctx context.Context, records map[string]*ir.ApplyRecord) error {
	content, err := json.MarshalIndent(recordFile{Version: 1, Records: records}, "", "  ")
	if err != nil {
		return &Error{Op: "serialize", Err: err}
	}

	encrypted, err := EncryptRecords(content)
	if err != nil {
		return &Error{Op: "encrypt", Err: err}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   bytes.NewReader(encrypted),
	}
	if s.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return &Error{Op: "write", Err: fmt.Errorf("s3://%s/%s: %w", s.bucket, s.key, err)}
	}

	return nil
}

func (s *s3Store) Lock() error {
	if s.dynamoDBTable == "" {
		return nil // no locking without DynamoDB
	}

	s.lockID = fmt.Sprintf("lakekit-%d-%d", os.Getpid(), time.Now().UnixNano())

	_, err := s.dbClient.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(s.dynamoDBTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: s.key},
			"Info":    &dbtypes.AttributeValueMemberS{Value: s.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		if strings.Contains(err.Error(), "ConditionalCheckFailedException") {
			return fmt.Errorf("records are locked by another process. If this is an error, "+
				"manually delete the lock item with LockID=%q from DynamoDB table %q", s.key, s.dynamoDBTable)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	return nil
}

func (s *s3Store) Unlock() error {
	if s.dynamoDBTable == "" {
		return nil
	}

	_, err := s.dbClient.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
		TableName: aws.String(s.dynamoDBTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: s.key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
