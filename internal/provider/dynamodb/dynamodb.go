// Package dynamodb implements the Store interface using a single AWS DynamoDB table.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*DynamoDBProvider)(nil)

const defaultRetentionTTL = 90 * 24 * time.Hour

// DDBAPI is the subset of the DynamoDB client the provider uses.
type DDBAPI interface {
	PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, input *dynamodb.UpdateTimeToLiveInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// DynamoDBProvider implements the Store interface backed by DynamoDB.
type DynamoDBProvider struct {
	client       DDBAPI
	tableName    string
	logger       *slog.Logger
	retentionTTL time.Duration
	createTable  bool
}

// New creates a new DynamoDBProvider.
func New(cfg *types.DynamoDBConfig) (*DynamoDBProvider, error) {
	if cfg == nil || cfg.TableName == "" {
		return nil, errors.New("dynamodb tableName is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	// For DynamoDB Local: use static credentials and custom endpoint.
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	retentionTTL := defaultRetentionTTL
	if cfg.RetentionTTL != "" {
		if d, err := time.ParseDuration(cfg.RetentionTTL); err == nil && d > 0 {
			retentionTTL = d
		}
	}

	return &DynamoDBProvider{
		client:       dynamodb.NewFromConfig(awsCfg, clientOpts...),
		tableName:    cfg.TableName,
		logger:       slog.Default(),
		retentionTTL: retentionTTL,
		createTable:  cfg.CreateTable,
	}, nil
}

// NewFromClient creates a DynamoDBProvider over an existing client (useful for testing).
func NewFromClient(client DDBAPI, tableName string, retentionTTL time.Duration) *DynamoDBProvider {
	return &DynamoDBProvider{
		client:       client,
		tableName:    tableName,
		logger:       slog.Default(),
		retentionTTL: retentionTTL,
	}
}

// Start initializes the provider: optionally creates the table, then pings DynamoDB.
func (p *DynamoDBProvider) Start(ctx context.Context) error {
	if p.createTable {
		if err := p.ensureTable(ctx); err != nil {
			return err
		}
	}
	return p.Ping(ctx)
}

// Stop is a no-op for DynamoDB (no persistent connections to close).
func (p *DynamoDBProvider) Stop(_ context.Context) error {
	return nil
}

// Ping checks connectivity by describing the table.
func (p *DynamoDBProvider) Ping(ctx context.Context) error {
	_, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: &p.tableName,
	})
	if err != nil {
		return fmt.Errorf("dynamodb ping failed: %w", err)
	}
	return nil
}

func (p *DynamoDBProvider) ensureTable(ctx context.Context) error {
	_, err := p.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &p.tableName,
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: ddbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		BillingMode: ddbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		var riue *ddbtypes.ResourceInUseException
		if errors.As(err, &riue) {
			return nil // table already exists
		}
		return fmt.Errorf("creating table: %w", err)
	}

	// Enable TTL on the "ttl" attribute.
	_, err = p.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: &p.tableName,
		TimeToLiveSpecification: &ddbtypes.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String("ttl"),
		},
	})
	if err != nil {
		p.logger.Warn("failed to enable TTL (may already be enabled)", "error", err)
	}
	return nil
}
