package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/sortimate/internal/config"
	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		dir   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the bin's recorded status, recent attempts and alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), dir, limit)
		},
	}

	cmd.Flags().StringVarP(&dir, "config-dir", "c", ".", "Directory containing "+config.FileName)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent attempts to show")
	return cmd
}

func runStatus(ctx context.Context, dir string, limit int) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if store == nil {
		return errors.New("no provider configured; status is only available from the control server")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("connecting to provider: %w", err)
	}
	defer func() { _ = store.Stop(context.Background()) }()

	return printStatus(ctx, color.Output, store, cfg.BinID, limit)
}

func printStatus(ctx context.Context, w io.Writer, store provider.Store, binID string, limit int) error {
	status, err := store.GetBinStatus(ctx, binID)
	if err != nil {
		return fmt.Errorf("reading bin status: %w", err)
	}

	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Bin: %s\n", binID)
	if status == nil {
		_, _ = fmt.Fprintln(w, "  No status recorded yet.")
	} else {
		_, _ = fmt.Fprintf(w, "  State:        %s\n", stateString(status.State))
		_, _ = fmt.Fprintf(w, "  Last update:  %s\n", status.LastUpdate.Format(time.RFC3339))
		if status.LastOutcome != "" {
			_, _ = fmt.Fprintf(w, "  Last outcome: %s (%s)\n", outcomeString(status.LastOutcome), categoryString(status.LastCategory))
		}
		if status.ConsecutiveActuationFailures > 0 {
			_, _ = fmt.Fprintf(w, "  Actuation failures in a row: %d\n", status.ConsecutiveActuationFailures)
		}
	}

	attempts, err := store.ListAttempts(ctx, binID, limit)
	if err != nil {
		return fmt.Errorf("listing attempts: %w", err)
	}
	if len(attempts) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = bold.Fprintln(w, "  Recent Attempts:")
		for _, a := range attempts {
			_, _ = fmt.Fprintf(w, "    %s  %-22s %-8s %-12s %.2f  %dms\n",
				a.StartedAt.Format(time.RFC3339), outcomeString(a.Outcome), categoryString(a.Category), a.Label, a.Confidence, a.LatencyMS)
		}
	}

	alerts, err := store.ListAlerts(ctx, binID, 5)
	if err != nil {
		return fmt.Errorf("listing alerts: %w", err)
	}
	if len(alerts) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = bold.Fprintln(w, "  Recent Alerts:")
		for _, a := range alerts {
			_, _ = fmt.Fprintf(w, "    %s  [%s] %s\n", a.Timestamp.Format(time.RFC3339), a.Level, a.Message)
		}
	}

	_, _ = fmt.Fprintln(w)
	return nil
}

func stateString(s types.State) string {
	switch s {
	case types.StateFaulted:
		return color.RedString(string(s))
	case types.StateIdle:
		return color.GreenString(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func outcomeString(o types.Outcome) string {
	switch o {
	case types.OutcomeSuccess:
		return color.GreenString(string(o))
	case types.OutcomeActuationFailed:
		return color.RedString(string(o))
	default:
		return color.YellowString(string(o))
	}
}

func categoryString(c types.WasteCategory) string {
	if c == types.CategoryNone {
		return "-"
	}
	return string(c)
}
