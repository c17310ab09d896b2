package types

import "time"

// Image is a single captured frame.
type Image struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"contentType"`
	CapturedAt  time.Time `json:"capturedAt"`
	// Path is set when the frame was also persisted to disk.
	Path string `json:"path,omitempty"`
}

// Prediction is one candidate label returned by the classifier.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SortAttempt is the record of one full sorting cycle. It is created when
// presence is detected, finalised when the cycle ends and then handed to the
// event sink.
type SortAttempt struct {
	BinID       string        `json:"binId"`
	AttemptID   string        `json:"attemptId"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Label       string        `json:"label,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	Category    WasteCategory `json:"category,omitempty"`
	LatencyMS   int64         `json:"latencyMs"`
	Outcome     Outcome       `json:"outcome"`
	Error       string        `json:"error,omitempty"`
	ImagePath   string        `json:"imagePath,omitempty"`
}

// BinStatus is the latest known status of a bin.
type BinStatus struct {
	BinID                        string        `json:"binId"`
	State                        State         `json:"state"`
	StateSince                   time.Time     `json:"stateSince"`
	LastUpdate                   time.Time     `json:"lastUpdate"`
	LastCategory                 WasteCategory `json:"lastCategory,omitempty"`
	LastOutcome                  Outcome       `json:"lastOutcome,omitempty"`
	ConsecutiveActuationFailures int           `json:"consecutiveActuationFailures"`
}

// Alert is a notification about the bin that needs an operator's attention.
type Alert struct {
	BinID     string     `json:"binId"`
	Level     AlertLevel `json:"level"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Resolved  bool       `json:"resolved"`
}

// ActuatorPose is the last commanded-and-confirmed position of the actuator.
// Known is false after a move that failed or was interrupted.
type ActuatorPose struct {
	Home     bool
	Category WasteCategory
	Known    bool
}

// HomePose is the neutral position every destination move starts from.
var HomePose = ActuatorPose{Home: true, Known: true}

// UnknownPose is the pose after a move that was not confirmed.
var UnknownPose = ActuatorPose{}

// PoseAt returns the confirmed pose at a category's destination.
func PoseAt(c WasteCategory) ActuatorPose {
	return ActuatorPose{Category: c, Known: true}
}

// String returns a human-readable pose.
func (p ActuatorPose) String() string {
	switch {
	case !p.Known:
		return "unknown"
	case p.Home:
		return "home"
	default:
		return string(p.Category)
	}
}
