package telemetry

import (
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"

	"github.com/casualjim/llmux/messages"
)

// Operation names the provider call being reported.
type Operation string

const (
	OpSend   Operation = "send"
	OpStream Operation = "stream"
)

// Status is the phase of a request.
type Status string

const (
	Started   Status = "started"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// Event describes one phase of a provider request.
type Event struct {
	RequestID  string
	SessionID  string
	Provider   string
	Model      string
	Operation  Operation
	Status     Status
	Stage      string
	StopReason string
	Usage      messages.Usage
	Duration   time.Duration
	Error      string
	Timestamp  strfmt.DateTime
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	data := []byte(`{}`)
	fields := []struct {
		path  string
		value string
	}{
		{"request_id", e.RequestID},
		{"session_id", e.SessionID},
		{"provider", e.Provider},
		{"model", e.Model},
		{"operation", string(e.Operation)},
		{"status", string(e.Status)},
		{"stage", e.Stage},
		{"stop_reason", e.StopReason},
		{"error", e.Error},
	}
	var err error
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if data, err = sjson.SetBytes(data, f.path, f.value); err != nil {
			return nil, err
		}
	}
	if e.Status != Started {
		usage, err := json.Marshal(e.Usage)
		if err != nil {
			return nil, err
		}
		if data, err = sjson.SetRawBytes(data, "usage", usage); err != nil {
			return nil, err
		}
		if data, err = sjson.SetBytes(data, "duration_ms", e.Duration.Milliseconds()); err != nil {
			return nil, err
		}
	}
	if !e.Timestamp.IsZero() {
		if data, err = sjson.SetBytes(data, "timestamp", e.Timestamp.String()); err != nil {
			return nil, err
		}
	}
	return data, nil
}
