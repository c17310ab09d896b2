// Package commands implements the CLI subcommands for the sortimate binary.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dwsmith1983/sortimate/internal/provider"
	ddbprov "github.com/dwsmith1983/sortimate/internal/provider/dynamodb"
	fsprov "github.com/dwsmith1983/sortimate/internal/provider/firestore"
	"github.com/dwsmith1983/sortimate/internal/provider/redis"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// newStore creates the configured event store. It returns nil when no
// provider is configured.
func newStore(cfg *types.ProjectConfig) (provider.Store, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case types.ProviderRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when provider is redis")
		}
		return redis.New(cfg.Redis), nil
	case types.ProviderDynamoDB:
		p, err := ddbprov.New(cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		return p, nil
	case types.ProviderFirestore:
		p, err := fsprov.New(cfg.Firestore)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(lc *types.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "text"
	if lc != nil {
		switch strings.ToLower(lc.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		if lc.Format != "" {
			format = lc.Format
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// serverAddr returns the control server address and API key.
func serverAddr(cfg *types.ProjectConfig) (string, string) {
	if cfg.Server == nil {
		return "", ""
	}
	return cfg.Server.Addr, cfg.Server.APIKey
}
