// Package types defines the public domain types for the sortimate waste-sorting bin.
package types

// WasteCategory is a destination compartment of the bin.
type WasteCategory string

// WasteCategory values enumerate the closed set of compartments.
const (
	CategoryPlastic WasteCategory = "plastic"
	CategoryGlass   WasteCategory = "glass"
	CategoryMetal   WasteCategory = "metal"
	CategoryPaper   WasteCategory = "paper"
	CategoryOther   WasteCategory = "other"

	// CategoryNone marks an attempt that never resolved a category.
	CategoryNone WasteCategory = ""
)

// DefaultFallbackCategory receives anything the classifier cannot place.
const DefaultFallbackCategory = CategoryOther

// Categories returns every routable category in a stable order.
func Categories() []WasteCategory {
	return []WasteCategory{CategoryPlastic, CategoryGlass, CategoryMetal, CategoryPaper, CategoryOther}
}

// Valid reports whether c is one of the routable categories.
func (c WasteCategory) Valid() bool {
	switch c {
	case CategoryPlastic, CategoryGlass, CategoryMetal, CategoryPaper, CategoryOther:
		return true
	}
	return false
}

// Outcome is the terminal result of one sort attempt.
type Outcome string

// Outcome values enumerate how a cycle can end.
const (
	OutcomeSuccess              Outcome = "SUCCESS"
	OutcomeClassificationFailed Outcome = "CLASSIFICATION_FAILED"
	OutcomeActuationFailed      Outcome = "ACTUATION_FAILED"
	OutcomeTimeout              Outcome = "TIMEOUT"
)

// IsError reports whether the outcome should be flagged as an error in the event log.
func (o Outcome) IsError() bool {
	return o != OutcomeSuccess
}

// State is a state of the orchestrator control loop.
type State string

// State values of the sorting state machine.
const (
	StateIdle        State = "IDLE"
	StateTriggered   State = "TRIGGERED"
	StateCapturing   State = "CAPTURING"
	StateClassifying State = "CLASSIFYING"
	StateActuating   State = "ACTUATING"
	StateSettling    State = "SETTLING"
	StateFaulted     State = "FAULTED"
)

// SensorState is the debounced presence state of the beam sensor.
type SensorState string

// SensorState values.
const (
	SensorIdle    SensorState = "IDLE"
	SensorPresent SensorState = "PRESENT"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
	AlertPubSub  AlertType = "pubsub"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelError    AlertLevel = "error"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelInfo     AlertLevel = "info"
)

// ProviderType selects the event store backend.
type ProviderType string

// ProviderType values enumerate the supported event stores.
const (
	ProviderFirestore ProviderType = "firestore"
	ProviderDynamoDB  ProviderType = "dynamodb"
	ProviderRedis     ProviderType = "redis"
)
