package types

// SensorConfig configures the break-beam sensor and its debounce.
type SensorConfig struct {
	Driver       string `yaml:"driver" json:"driver"` // "gpio"
	LaserPin     int    `yaml:"laserPin,omitempty" json:"laserPin,omitempty"`
	ReceiverPin  int    `yaml:"receiverPin" json:"receiverPin"`
	ActiveLow    bool   `yaml:"activeLow,omitempty" json:"activeLow,omitempty"`
	PollInterval string `yaml:"pollInterval,omitempty" json:"pollInterval,omitempty"` // default "100ms"
	HoldTime     string `yaml:"holdTime,omitempty" json:"holdTime,omitempty"`         // default "200ms"
	ClearTime    string `yaml:"clearTime,omitempty" json:"clearTime,omitempty"`       // default "200ms"
}

// ActuatorConfig configures the rotation and gate servos.
type ActuatorConfig struct {
	Driver          string                `yaml:"driver" json:"driver"` // "firmata"
	Port            string                `yaml:"port" json:"port"`
	Baud            int                   `yaml:"baud,omitempty" json:"baud,omitempty"`
	BoardAddr       uint8                 `yaml:"boardAddr,omitempty" json:"boardAddr,omitempty"`
	RotationChannel uint8                 `yaml:"rotationChannel" json:"rotationChannel"`
	GateChannel     uint8                 `yaml:"gateChannel" json:"gateChannel"`
	HomeAngle       uint8                 `yaml:"homeAngle" json:"homeAngle"`
	GateClosedAngle uint8                 `yaml:"gateClosedAngle" json:"gateClosedAngle"`
	GateOpenAngle   uint8                 `yaml:"gateOpenAngle" json:"gateOpenAngle"`
	Settle          string                `yaml:"settle,omitempty" json:"settle,omitempty"` // default "500ms"
	Dwell           string                `yaml:"dwell,omitempty" json:"dwell,omitempty"`   // default "1s"
	Destinations    map[WasteCategory]int `yaml:"destinations" json:"destinations"`         // rotation angle per category
}

// CameraConfig configures the snapshot camera.
type CameraConfig struct {
	URL         string `yaml:"url" json:"url"`
	SnapshotDir string `yaml:"snapshotDir,omitempty" json:"snapshotDir,omitempty"`
}

// BreakerConfig configures the circuit breaker around the classifier.
type BreakerConfig struct {
	FailThreshold int    `yaml:"failThreshold,omitempty" json:"failThreshold,omitempty"` // default 5
	Cooldown      string `yaml:"cooldown,omitempty" json:"cooldown,omitempty"`           // default "30s"
}

// ClassifierConfig configures the model service client.
type ClassifierConfig struct {
	URL     string         `yaml:"url" json:"url"`
	Breaker *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// RoutingConfig overrides the label to category mapping.
type RoutingConfig struct {
	Fallback WasteCategory            `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Labels   map[string]WasteCategory `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// OrchestratorConfig holds the timeouts and thresholds of the control loop.
type OrchestratorConfig struct {
	CaptureTimeout   string `yaml:"captureTimeout,omitempty" json:"captureTimeout,omitempty"`     // default "2s"
	ClassifyTimeout  string `yaml:"classifyTimeout,omitempty" json:"classifyTimeout,omitempty"`   // default "3s"
	ActuationTimeout string `yaml:"actuationTimeout,omitempty" json:"actuationTimeout,omitempty"` // default "10s"
	TelemetryTimeout string `yaml:"telemetryTimeout,omitempty" json:"telemetryTimeout,omitempty"` // default "1s"
	HomeTimeout      string `yaml:"homeTimeout,omitempty" json:"homeTimeout,omitempty"`           // default "5s"
	FaultThreshold   int    `yaml:"faultThreshold,omitempty" json:"faultThreshold,omitempty"`     // default 3
}

// WatchdogConfig configures the background checks on a stalled bin.
type WatchdogConfig struct {
	Disabled        bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Interval        string `yaml:"interval,omitempty" json:"interval,omitempty"`               // default "10s"
	BlockedAfter    string `yaml:"blockedAfter,omitempty" json:"blockedAfter,omitempty"`       // default "1m"
	UnattendedAfter string `yaml:"unattendedAfter,omitempty" json:"unattendedAfter,omitempty"` // default "15m"
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type      AlertType `yaml:"type" json:"type"`
	URL       string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path      string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN  string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	ProjectID string    `yaml:"projectId,omitempty" json:"projectId,omitempty"`
	TopicID   string    `yaml:"topicId,omitempty" json:"topicId,omitempty"`
}

// FirestoreConfig holds Firestore connection settings.
type FirestoreConfig struct {
	ProjectID       string `yaml:"projectId" json:"projectId"`
	CredentialsFile string `yaml:"credentialsFile,omitempty" json:"credentialsFile,omitempty"`
	Emulator        string `yaml:"emulator,omitempty" json:"emulator,omitempty"`
}

// DynamoDBConfig holds DynamoDB connection and table settings.
type DynamoDBConfig struct {
	TableName    string `yaml:"tableName" json:"tableName"`
	Region       string `yaml:"region" json:"region"`
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	RetentionTTL string `yaml:"retentionTtl,omitempty" json:"retentionTtl,omitempty"` // default "2160h" (90 days)
	CreateTable  bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// RedisConfig holds Redis/Valkey connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix"`
	StreamMax int64  `yaml:"streamMax,omitempty" json:"streamMax,omitempty"`
}

// ServerConfig holds control server settings.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // text or json
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Insecure bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// ProjectConfig represents the top-level sortimate.yaml configuration.
type ProjectConfig struct {
	BinID        string              `yaml:"binId"`
	Provider     ProviderType        `yaml:"provider"`
	Firestore    *FirestoreConfig    `yaml:"firestore,omitempty"`
	DynamoDB     *DynamoDBConfig     `yaml:"dynamodb,omitempty"`
	Redis        *RedisConfig        `yaml:"redis,omitempty"`
	Sensor       SensorConfig        `yaml:"sensor"`
	Actuator     ActuatorConfig      `yaml:"actuator"`
	Camera       CameraConfig        `yaml:"camera"`
	Classifier   ClassifierConfig    `yaml:"classifier"`
	Routing      *RoutingConfig      `yaml:"routing,omitempty"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Watchdog     *WatchdogConfig     `yaml:"watchdog,omitempty"`
	Alerts       []AlertConfig       `yaml:"alerts,omitempty"`
	Server       *ServerConfig       `yaml:"server,omitempty"`
	Logging      *LoggingConfig      `yaml:"logging,omitempty"`
	Tracing      *TracingConfig      `yaml:"tracing,omitempty"`
}
