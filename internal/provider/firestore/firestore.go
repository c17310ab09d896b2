// Package firestore implements the Store interface using Google Cloud Firestore Native Mode.
//
// Documents follow the collections the bin fleet dashboards already read:
// waste_events (one per attempt), bins (one per bin, merged) and alerts.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*FirestoreProvider)(nil)

// Collection names.
const (
	collEvents = "waste_events"
	collBins   = "bins"
	collAlerts = "alerts"
)

// FirestoreProvider implements the Store interface backed by Firestore Native Mode.
type FirestoreProvider struct {
	client *firestore.Client
	prefix string
	logger *slog.Logger
}

// New creates a new FirestoreProvider.
func New(cfg *types.FirestoreConfig) (*FirestoreProvider, error) {
	if cfg == nil {
		return nil, errors.New("firestore config is required")
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore projectId is required")
	}

	// Support the Firestore emulator via FIRESTORE_EMULATOR_HOST or config.
	if cfg.Emulator != "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.Emulator)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" && cfg.Emulator == "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(context.Background(), cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Firestore client: %w", err)
	}
	return NewFromClient(client, ""), nil
}

// NewFromClient creates a FirestoreProvider over an existing client. A
// non-empty prefix is prepended to every collection name.
func NewFromClient(client *firestore.Client, prefix string) *FirestoreProvider {
	return &FirestoreProvider{
		client: client,
		prefix: prefix,
		logger: slog.Default(),
	}
}

func (p *FirestoreProvider) events() *firestore.CollectionRef {
	return p.client.Collection(p.prefix + collEvents)
}

func (p *FirestoreProvider) bins() *firestore.CollectionRef {
	return p.client.Collection(p.prefix + collBins)
}

func (p *FirestoreProvider) alerts() *firestore.CollectionRef {
	return p.client.Collection(p.prefix + collAlerts)
}

// Start initializes the provider.
func (p *FirestoreProvider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the Firestore client.
func (p *FirestoreProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity by reading a non-existent document.
func (p *FirestoreProvider) Ping(ctx context.Context) error {
	_, err := p.bins().Doc("__ping__").Get(ctx)
	if isNotFound(err) {
		return nil
	}
	return err
}
