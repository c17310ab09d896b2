package firestore

import (
	"time"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// wasteEventDoc is the waste_events document shape.
type wasteEventDoc struct {
	EventID      string    `firestore:"event_id"`
	BinID        string    `firestore:"bin_id"`
	Timestamp    time.Time `firestore:"timestamp"`
	CompletedAt  time.Time `firestore:"completed_at"`
	WasteType    string    `firestore:"waste_type,omitempty"`
	Label        string    `firestore:"label,omitempty"`
	Outcome      string    `firestore:"outcome"`
	IsError      bool      `firestore:"is_error"`
	ErrorMessage string    `firestore:"error_message,omitempty"`
	LatencyMS    int64     `firestore:"latency_ms"`
	Confidence   float64   `firestore:"confidence,omitempty"`
	RawImagePath string    `firestore:"raw_image_path,omitempty"`
}

func eventDoc(a types.SortAttempt) wasteEventDoc {
	return wasteEventDoc{
		EventID:      a.AttemptID,
		BinID:        a.BinID,
		Timestamp:    a.StartedAt,
		CompletedAt:  a.CompletedAt,
		WasteType:    string(a.Category),
		Label:        a.Label,
		Outcome:      string(a.Outcome),
		IsError:      a.Outcome.IsError(),
		ErrorMessage: a.Error,
		LatencyMS:    a.LatencyMS,
		Confidence:   a.Confidence,
		RawImagePath: a.ImagePath,
	}
}

func (d wasteEventDoc) attempt() types.SortAttempt {
	return types.SortAttempt{
		BinID:       d.BinID,
		AttemptID:   d.EventID,
		StartedAt:   d.Timestamp,
		CompletedAt: d.CompletedAt,
		Label:       d.Label,
		Confidence:  d.Confidence,
		Category:    types.WasteCategory(d.WasteType),
		LatencyMS:   d.LatencyMS,
		Outcome:     types.Outcome(d.Outcome),
		Error:       d.ErrorMessage,
		ImagePath:   d.RawImagePath,
	}
}

// binDoc is the bins document shape. Category flags live under the "alerts"
// map and are set by statusDoc with a merge, so earlier flags survive.
type binDoc struct {
	BinID                        string    `firestore:"bin_id"`
	State                        string    `firestore:"state"`
	StateSince                   time.Time `firestore:"state_since"`
	LastUpdate                   time.Time `firestore:"last_update"`
	LastCategory                 string    `firestore:"last_category"`
	LastOutcome                  string    `firestore:"last_outcome"`
	ConsecutiveActuationFailures int       `firestore:"consecutive_actuation_failures"`
}

// statusDoc is the merge payload for the bins document. The category just
// sorted is flagged under alerts.<category>, as the dashboard reads it.
func statusDoc(s types.BinStatus) map[string]interface{} {
	doc := map[string]interface{}{
		"bin_id":                         s.BinID,
		"state":                          string(s.State),
		"state_since":                    s.StateSince,
		"last_update":                    s.LastUpdate,
		"last_category":                  string(s.LastCategory),
		"last_outcome":                   string(s.LastOutcome),
		"consecutive_actuation_failures": s.ConsecutiveActuationFailures,
	}
	if s.LastCategory != types.CategoryNone {
		doc["alerts"] = map[string]interface{}{string(s.LastCategory): true}
	}
	return doc
}

func (d binDoc) status() types.BinStatus {
	return types.BinStatus{
		BinID:                        d.BinID,
		State:                        types.State(d.State),
		StateSince:                   d.StateSince,
		LastUpdate:                   d.LastUpdate,
		LastCategory:                 types.WasteCategory(d.LastCategory),
		LastOutcome:                  types.Outcome(d.LastOutcome),
		ConsecutiveActuationFailures: d.ConsecutiveActuationFailures,
	}
}

// alertDoc is the alerts document shape.
type alertDoc struct {
	BinID     string    `firestore:"bin_id"`
	CreatedAt time.Time `firestore:"created_at"`
	Level     string    `firestore:"level"`
	Message   string    `firestore:"message"`
	Resolved  bool      `firestore:"resolved"`
	Type      string    `firestore:"type"`
}

func newAlertDoc(a types.Alert) alertDoc {
	return alertDoc{
		BinID:     a.BinID,
		CreatedAt: a.Timestamp,
		Level:     string(a.Level),
		Message:   a.Message,
		Resolved:  a.Resolved,
		Type:      a.Type,
	}
}

func (d alertDoc) alert() types.Alert {
	return types.Alert{
		BinID:     d.BinID,
		Level:     types.AlertLevel(d.Level),
		Type:      d.Type,
		Message:   d.Message,
		Timestamp: d.CreatedAt,
		Resolved:  d.Resolved,
	}
}
