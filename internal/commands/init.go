package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/fatih/color"
	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/sortimate/internal/config"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var (
		binID        string
		providerName string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter " + config.FileName,
		Long:  "Scaffolds a bin configuration with reference pins, servo angles and timeouts.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(dir, binID, types.ProviderType(providerName), force)
		},
	}

	cmd.Flags().StringVar(&binID, "bin-id", "bin-01", "Identifier of this bin")
	cmd.Flags().StringVar(&providerName, "provider", string(types.ProviderFirestore), "Event store: firestore, dynamodb or redis")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	return cmd
}

var configTemplate = template.Must(template.New(config.FileName).Parse(`binId: {{.BinID}}
provider: {{.Provider}}
{{- if eq .Provider "firestore"}}
firestore:
  projectId: my-gcp-project
  # credentialsFile: /etc/sortimate/service-account.json
{{- else if eq .Provider "dynamodb"}}
dynamodb:
  tableName: sortimate
  region: us-east-1
  retentionTtl: 2160h
  createTable: true
{{- else if eq .Provider "redis"}}
redis:
  addr: localhost:6379
  keyPrefix: "sortimate:"
{{- end}}

sensor:
  driver: gpio
  laserPin: 27
  receiverPin: 17
  pollInterval: 100ms
  holdTime: 200ms
  clearTime: 200ms

actuator:
  driver: firmata
  port: /dev/ttyACM0
  rotationChannel: 0
  gateChannel: 1
  homeAngle: 90
  gateClosedAngle: 0
  gateOpenAngle: 90
  settle: 500ms
  dwell: 1s
  destinations:
    plastic: 0
    glass: 45
    metal: 90
    paper: 135
    other: 180

camera:
  url: http://localhost:8081/snapshot
  snapshotDir: /var/lib/sortimate

classifier:
  url: http://localhost:8000/classify
  breaker:
    failThreshold: 5
    cooldown: 30s

routing:
  fallback: other

orchestrator:
  captureTimeout: 2s
  classifyTimeout: 3s
  actuationTimeout: 10s
  telemetryTimeout: 1s
  homeTimeout: 5s
  faultThreshold: 3

watchdog:
  interval: 10s
  blockedAfter: 1m
  unattendedAfter: 15m

alerts:
  - type: console

server:
  addr: ":3000"

logging:
  level: info
  format: text
`))

func runInit(dir, binID string, prov types.ProviderType, force bool) error {
	switch prov {
	case types.ProviderFirestore, types.ProviderDynamoDB, types.ProviderRedis:
	default:
		return fmt.Errorf("unsupported provider %q", prov)
	}

	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, struct {
		BinID    string
		Provider types.ProviderType
	}{binID, prov}); err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.Green("  ✓ Wrote %s", path)
	fmt.Println()
	_, _ = color.New(color.Bold).Println("Next steps:")
	fmt.Println("  edit pins, servo angles and service URLs for your bin")
	fmt.Printf("  sortimate run -c %s\n", dir)
	return nil
}
