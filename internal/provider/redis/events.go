package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// RecordAttempt appends a sort attempt to the bin's attempt stream.
func (p *RedisProvider) RecordAttempt(ctx context.Context, attempt types.SortAttempt) error {
	return p.appendJSON(ctx, p.attemptsKey(attempt.BinID), attempt)
}

// ListAttempts returns recent attempts for a bin, newest first.
func (p *RedisProvider) ListAttempts(ctx context.Context, binID string, limit int) ([]types.SortAttempt, error) {
	msgs, err := p.client.XRevRangeN(ctx, p.attemptsKey(binID), "+", "-", int64(provider.Limit(limit))).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.SortAttempt, 0, len(msgs))
	for _, msg := range msgs {
		var a types.SortAttempt
		if decodeMessage(msg, &a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateAlert appends an alert to the bin's alert stream.
func (p *RedisProvider) CreateAlert(ctx context.Context, alert types.Alert) error {
	return p.appendJSON(ctx, p.alertsKey(alert.BinID), alert)
}

// ListAlerts returns recent alerts for a bin, newest first.
func (p *RedisProvider) ListAlerts(ctx context.Context, binID string, limit int) ([]types.Alert, error) {
	msgs, err := p.client.XRevRangeN(ctx, p.alertsKey(binID), "+", "-", int64(provider.Limit(limit))).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.Alert, 0, len(msgs))
	for _, msg := range msgs {
		var a types.Alert
		if decodeMessage(msg, &a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// UpdateBinStatus overwrites the bin's status hash.
func (p *RedisProvider) UpdateBinStatus(ctx context.Context, status types.BinStatus) error {
	return p.client.HSet(ctx, p.statusKey(status.BinID), map[string]interface{}{
		"bin_id":                         status.BinID,
		"state":                          string(status.State),
		"state_since":                    status.StateSince.UTC().Format(time.RFC3339Nano),
		"last_update":                    status.LastUpdate.UTC().Format(time.RFC3339Nano),
		"last_category":                  string(status.LastCategory),
		"last_outcome":                   string(status.LastOutcome),
		"consecutive_actuation_failures": status.ConsecutiveActuationFailures,
	}).Err()
}

// GetBinStatus reads the bin's status hash.
func (p *RedisProvider) GetBinStatus(ctx context.Context, binID string) (*types.BinStatus, error) {
	fields, err := p.client.HGetAll(ctx, p.statusKey(binID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	status := &types.BinStatus{
		BinID:        fields["bin_id"],
		State:        types.State(fields["state"]),
		LastCategory: types.WasteCategory(fields["last_category"]),
		LastOutcome:  types.Outcome(fields["last_outcome"]),
	}
	for name, dst := range map[string]*time.Time{"last_update": &status.LastUpdate, "state_since": &status.StateSince} {
		v := fields[name]
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = ts
	}
	if v := fields["consecutive_actuation_failures"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing consecutive_actuation_failures: %w", err)
		}
		status.ConsecutiveActuationFailures = n
	}
	return status, nil
}

func (p *RedisProvider) appendJSON(ctx context.Context, stream string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: p.streamMax,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
}

func decodeMessage(msg goredis.XMessage, v interface{}) bool {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(data), v) == nil
}
