// Package provider defines the event store interface for sortimate.
package provider

import (
	"context"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// DefaultListLimit caps list queries when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Store is the durable backend for sort events, bin status and alerts.
// Firestore mirrors the original bin software's collections; DynamoDB and
// Redis serve AWS and edge deployments.
type Store interface {
	// Sort events, newest first on read.
	RecordAttempt(ctx context.Context, attempt types.SortAttempt) error
	ListAttempts(ctx context.Context, binID string, limit int) ([]types.SortAttempt, error)

	// Latest bin status. GetBinStatus returns nil, nil for an unknown bin.
	UpdateBinStatus(ctx context.Context, status types.BinStatus) error
	GetBinStatus(ctx context.Context, binID string) (*types.BinStatus, error)

	// Operator alerts, newest first on read.
	CreateAlert(ctx context.Context, alert types.Alert) error
	ListAlerts(ctx context.Context, binID string, limit int) ([]types.Alert, error)

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Limit returns limit, or DefaultListLimit when limit is not positive.
func Limit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
