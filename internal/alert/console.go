package alert

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// ConsoleSink writes alerts to the terminal with color.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a new console alert sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: color.Output}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes an alert to the terminal with color-coded severity.
func (s *ConsoleSink) Send(_ context.Context, alert types.Alert) error {
	var prefix string
	switch alert.Level {
	case types.AlertLevelCritical:
		prefix = color.New(color.FgRed, color.Bold).Sprint("[CRITICAL]")
	case types.AlertLevelError:
		prefix = color.RedString("[ERROR]")
	case types.AlertLevelWarning:
		prefix = color.YellowString("[WARN]")
	default:
		prefix = color.CyanString("[INFO]")
	}

	ts := alert.Timestamp.Format("15:04:05")
	if alert.Type != "" {
		_, err := fmt.Fprintf(s.out, "%s %s [%s] %s: %s\n", ts, prefix, alert.BinID, alert.Type, alert.Message)
		return err
	}
	_, err := fmt.Fprintf(s.out, "%s %s [%s] %s\n", ts, prefix, alert.BinID, alert.Message)
	return err
}
