package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const resetTimeout = 5 * time.Second

// NewResetCmd creates the reset command.
func NewResetCmd() *cobra.Command {
	var (
		addr   string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a fault on a running bin",
		Long:  "Asks a running bin's control server to leave the FAULTED state once the jam has been cleared.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReset(cmd.Context(), addr, apiKey)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:3000", "Control server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Control server API key")
	return cmd
}

func runReset(ctx context.Context, addr, apiKey string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	url := strings.TrimRight(addr, "/") + "/api/reset"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting bin: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		color.Green("  ✓ Reset requested")
		return nil
	case http.StatusConflict:
		color.Yellow("  → Bin is not faulted, nothing to reset")
		return nil
	default:
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("reset failed: %s %s", resp.Status, body["error"])
	}
}
