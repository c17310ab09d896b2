// Package config handles loading and validation of sortimate.yaml bin configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/sortimate/internal/routing"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// FileName is the configuration file looked up by Load.
const FileName = "sortimate.yaml"

// Environment overrides.
const (
	EnvBinID               = "BIN_ID"
	EnvFirebaseCredentials = "FIREBASE_CREDENTIALS"
)

// Load reads and parses sortimate.yaml from the given directory, applies
// environment overrides and validates the result.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, overrides and validates a configuration document.
func Parse(data []byte) (*types.ProjectConfig, error) {
	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *types.ProjectConfig) {
	if v := os.Getenv(EnvBinID); v != "" {
		cfg.BinID = v
	}
	if v := os.Getenv(EnvFirebaseCredentials); v != "" && cfg.Provider == types.ProviderFirestore {
		if cfg.Firestore == nil {
			cfg.Firestore = &types.FirestoreConfig{}
		}
		cfg.Firestore.CredentialsFile = v
	}
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Sensor.Driver == "" {
		cfg.Sensor.Driver = "gpio"
	}
	if cfg.Actuator.Driver == "" {
		cfg.Actuator.Driver = "firmata"
	}
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.BinID == "" {
		return fmt.Errorf("binId is required (or set %s)", EnvBinID)
	}

	if err := validateProvider(cfg); err != nil {
		return err
	}

	if cfg.Sensor.Driver != "gpio" {
		return fmt.Errorf("unsupported sensor driver %q", cfg.Sensor.Driver)
	}
	if cfg.Sensor.ReceiverPin <= 0 {
		return errors.New("sensor.receiverPin is required")
	}

	if err := validateActuator(&cfg.Actuator); err != nil {
		return err
	}

	if cfg.Camera.URL == "" {
		return errors.New("camera.url is required")
	}
	if cfg.Classifier.URL == "" {
		return errors.New("classifier.url is required")
	}
	if _, err := routing.New(cfg.Routing); err != nil {
		return fmt.Errorf("routing: %w", err)
	}

	if err := validateDurations(cfg); err != nil {
		return err
	}

	for i, a := range cfg.Alerts {
		switch a.Type {
		case types.AlertConsole, types.AlertFile, types.AlertWebhook, types.AlertSNS, types.AlertPubSub:
		default:
			return fmt.Errorf("alerts[%d]: unknown alert type %q", i, a.Type)
		}
	}

	if cfg.Logging != nil {
		switch cfg.Logging.Format {
		case "", "text", "json":
		default:
			return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
		}
		switch cfg.Logging.Level {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("unknown logging.level %q", cfg.Logging.Level)
		}
	}
	return nil
}

func validateProvider(cfg *types.ProjectConfig) error {
	switch cfg.Provider {
	case "":
		// Attempts are only logged.
	case types.ProviderFirestore:
		if cfg.Firestore == nil || cfg.Firestore.ProjectID == "" {
			return errors.New("firestore.projectId is required when provider is firestore")
		}
	case types.ProviderDynamoDB:
		if cfg.DynamoDB == nil || cfg.DynamoDB.TableName == "" {
			return errors.New("dynamodb.tableName is required when provider is dynamodb")
		}
	case types.ProviderRedis:
		if cfg.Redis == nil || cfg.Redis.Addr == "" {
			return errors.New("redis.addr is required when provider is redis")
		}
	default:
		return fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
	return nil
}

func validateActuator(ac *types.ActuatorConfig) error {
	if ac.Driver != "firmata" {
		return fmt.Errorf("unsupported actuator driver %q", ac.Driver)
	}
	if ac.Port == "" {
		return errors.New("actuator.port is required")
	}
	if ac.RotationChannel == ac.GateChannel {
		return errors.New("actuator.rotationChannel and actuator.gateChannel must differ")
	}
	for name, angle := range map[string]uint8{
		"homeAngle":       ac.HomeAngle,
		"gateClosedAngle": ac.GateClosedAngle,
		"gateOpenAngle":   ac.GateOpenAngle,
	} {
		if angle > 180 {
			return fmt.Errorf("actuator.%s %d out of range 0..180", name, angle)
		}
	}
	for _, c := range types.Categories() {
		angle, ok := ac.Destinations[c]
		if !ok {
			return fmt.Errorf("actuator.destinations is missing %q", c)
		}
		if angle < 0 || angle > 180 {
			return fmt.Errorf("actuator.destinations.%s %d out of range 0..180", c, angle)
		}
	}
	for c := range ac.Destinations {
		if !c.Valid() {
			return fmt.Errorf("actuator.destinations has unknown category %q", c)
		}
	}
	return nil
}

func validateDurations(cfg *types.ProjectConfig) error {
	fields := map[string]string{
		"sensor.pollInterval": cfg.Sensor.PollInterval,
		"sensor.holdTime":     cfg.Sensor.HoldTime,
		"sensor.clearTime":    cfg.Sensor.ClearTime,
		"actuator.settle":     cfg.Actuator.Settle,
		"actuator.dwell":      cfg.Actuator.Dwell,
	}
	if oc := cfg.Orchestrator; oc != nil {
		fields["orchestrator.captureTimeout"] = oc.CaptureTimeout
		fields["orchestrator.classifyTimeout"] = oc.ClassifyTimeout
		fields["orchestrator.actuationTimeout"] = oc.ActuationTimeout
		fields["orchestrator.telemetryTimeout"] = oc.TelemetryTimeout
		fields["orchestrator.homeTimeout"] = oc.HomeTimeout
		if oc.FaultThreshold < 0 {
			return errors.New("orchestrator.faultThreshold must not be negative")
		}
	}
	if w := cfg.Watchdog; w != nil {
		fields["watchdog.interval"] = w.Interval
		fields["watchdog.blockedAfter"] = w.BlockedAfter
		fields["watchdog.unattendedAfter"] = w.UnattendedAfter
	}
	if b := cfg.Classifier.Breaker; b != nil {
		fields["classifier.breaker.cooldown"] = b.Cooldown
	}
	if d := cfg.DynamoDB; d != nil {
		fields["dynamodb.retentionTtl"] = d.RetentionTTL
	}
	for name, v := range fields {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
