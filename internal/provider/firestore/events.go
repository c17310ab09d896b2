package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// RecordAttempt writes a waste_events document keyed by the attempt ID.
func (p *FirestoreProvider) RecordAttempt(ctx context.Context, attempt types.SortAttempt) error {
	_, err := p.events().Doc(attempt.AttemptID).Set(ctx, eventDoc(attempt))
	return err
}

// ListAttempts returns recent attempts for a bin, newest first.
func (p *FirestoreProvider) ListAttempts(ctx context.Context, binID string, limit int) ([]types.SortAttempt, error) {
	iter := p.events().
		Where("bin_id", "==", binID).
		OrderBy("timestamp", firestore.Desc).
		Limit(provider.Limit(limit)).
		Documents(ctx)
	defer iter.Stop()

	var out []types.SortAttempt
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc wasteEventDoc
		if err := snap.DataTo(&doc); err != nil {
			p.logger.Warn("skipping corrupt waste event", "id", snap.Ref.ID, "error", err)
			continue
		}
		out = append(out, doc.attempt())
	}
	return out, nil
}

// UpdateBinStatus merges the status fields into the bin document.
func (p *FirestoreProvider) UpdateBinStatus(ctx context.Context, status types.BinStatus) error {
	_, err := p.bins().Doc(status.BinID).Set(ctx, statusDoc(status), firestore.MergeAll)
	return err
}

// GetBinStatus reads the bin document. A missing bin returns nil.
func (p *FirestoreProvider) GetBinStatus(ctx context.Context, binID string) (*types.BinStatus, error) {
	snap, err := p.bins().Doc(binID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc binDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	status := doc.status()
	return &status, nil
}

// CreateAlert adds an alerts document.
func (p *FirestoreProvider) CreateAlert(ctx context.Context, alert types.Alert) error {
	_, _, err := p.alerts().Add(ctx, newAlertDoc(alert))
	return err
}

// ListAlerts returns recent alerts for a bin, newest first.
func (p *FirestoreProvider) ListAlerts(ctx context.Context, binID string, limit int) ([]types.Alert, error) {
	iter := p.alerts().
		Where("bin_id", "==", binID).
		OrderBy("created_at", firestore.Desc).
		Limit(provider.Limit(limit)).
		Documents(ctx)
	defer iter.Stop()

	var out []types.Alert
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc alertDoc
		if err := snap.DataTo(&doc); err != nil {
			p.logger.Warn("skipping corrupt alert", "id", snap.Ref.ID, "error", err)
			continue
		}
		out = append(out, doc.alert())
	}
	return out, nil
}
