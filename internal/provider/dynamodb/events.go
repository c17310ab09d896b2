package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

type attemptItem struct {
	PK      string            `dynamodbav:"PK"`
	SK      string            `dynamodbav:"SK"`
	Attempt types.SortAttempt `dynamodbav:"attempt"`
	TTL     int64             `dynamodbav:"ttl,omitempty"`
}

type statusItem struct {
	PK     string          `dynamodbav:"PK"`
	SK     string          `dynamodbav:"SK"`
	Status types.BinStatus `dynamodbav:"status"`
}

type alertItem struct {
	PK    string      `dynamodbav:"PK"`
	SK    string      `dynamodbav:"SK"`
	Alert types.Alert `dynamodbav:"alert"`
	TTL   int64       `dynamodbav:"ttl,omitempty"`
}

// RecordAttempt writes a sort attempt under the bin's partition.
func (p *DynamoDBProvider) RecordAttempt(ctx context.Context, attempt types.SortAttempt) error {
	item := attemptItem{
		PK:      binPK(attempt.BinID),
		SK:      attemptSK(attempt.StartedAt, attempt.AttemptID),
		Attempt: attempt,
	}
	if p.retentionTTL > 0 {
		item.TTL = ttlEpoch(p.retentionTTL)
	}
	return p.put(ctx, item)
}

// ListAttempts returns recent attempts for a bin, newest first.
func (p *DynamoDBProvider) ListAttempts(ctx context.Context, binID string, limit int) ([]types.SortAttempt, error) {
	items, err := p.queryPrefix(ctx, binPK(binID), prefixAttempt, limit)
	if err != nil {
		return nil, err
	}
	var rows []attemptItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling attempts: %w", err)
	}
	out := make([]types.SortAttempt, len(rows))
	for i, r := range rows {
		out[i] = r.Attempt
	}
	return out, nil
}

// UpdateBinStatus replaces the bin's status item.
func (p *DynamoDBProvider) UpdateBinStatus(ctx context.Context, status types.BinStatus) error {
	return p.put(ctx, statusItem{
		PK:     binPK(status.BinID),
		SK:     statusSK(),
		Status: status,
	})
}

// GetBinStatus reads the bin's status item.
func (p *DynamoDBProvider) GetBinStatus(ctx context.Context, binID string) (*types.BinStatus, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: binPK(binID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: statusSK()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var row statusItem
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("unmarshaling bin status: %w", err)
	}
	return &row.Status, nil
}

// CreateAlert writes an alert under the bin's partition.
func (p *DynamoDBProvider) CreateAlert(ctx context.Context, alert types.Alert) error {
	item := alertItem{
		PK:    binPK(alert.BinID),
		SK:    alertSK(alert.Timestamp),
		Alert: alert,
	}
	if p.retentionTTL > 0 {
		item.TTL = ttlEpoch(p.retentionTTL)
	}
	return p.put(ctx, item)
}

// ListAlerts returns recent alerts for a bin, newest first.
func (p *DynamoDBProvider) ListAlerts(ctx context.Context, binID string, limit int) ([]types.Alert, error) {
	items, err := p.queryPrefix(ctx, binPK(binID), prefixAlert, limit)
	if err != nil {
		return nil, err
	}
	var rows []alertItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling alerts: %w", err)
	}
	out := make([]types.Alert, len(rows))
	for i, r := range rows {
		out[i] = r.Alert
	}
	return out, nil
}

func (p *DynamoDBProvider) put(ctx context.Context, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item:      av,
	})
	return err
}

// queryPrefix returns items in pk whose SK starts with prefix, newest first.
func (p *DynamoDBProvider) queryPrefix(ctx context.Context, pk, prefix string, limit int) ([]map[string]ddbtypes.AttributeValue, error) {
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefix},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(provider.Limit(limit))),
	})
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}
