package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/sortimate/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "sortimate",
		Short: "Controller for a self-sorting waste bin",
		Long: `Sortimate drives a smart bin: a light-beam sensor detects each item dropped
into the chamber, a camera and classifier decide what it is, and a servo
gate tips it into the plastic, glass, metal, paper or other compartment.
Every attempt is recorded to Firestore, DynamoDB or Redis.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewRunCmd(),
		commands.NewStatusCmd(),
		commands.NewResetCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
