package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmarlin/focusd/internal/mentalstate"
	"github.com/jmarlin/focusd/internal/types"
)

// Frame is the wire format collectors send, over the websocket or POSTed to
// /events. One frame carries exactly one input.
type Frame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// type=activity
	AppName     string `json:"app_name,omitempty"`
	WindowTitle string `json:"window_title,omitempty"`
	PageURL     string `json:"page_url,omitempty"`
	PageSnippet string `json:"page_snippet,omitempty"`

	// type=metrics, raw headset payload in either wire shape
	Metrics json.RawMessage `json:"metrics,omitempty"`

	// type=command
	Action string  `json:"action,omitempty"`
	Power  float64 `json:"power,omitempty"`
}

// Input is a decoded frame. Exactly one field is set.
type Input struct {
	Activity *types.ActivityEvent
	Metrics  *types.MetricSample
	Command  *types.MentalCommand
}

// DecodeFrame validates and converts one wire frame. Frames without a
// timestamp are stamped with arrival time; collectors on flaky clocks send
// none and take ours.
func DecodeFrame(data []byte, arrived time.Time) (*Input, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	ts := f.Timestamp
	if ts.IsZero() {
		ts = arrived
	}

	switch f.Type {
	case "activity":
		if f.AppName == "" {
			return nil, fmt.Errorf("activity frame missing app_name")
		}
		return &Input{Activity: &types.ActivityEvent{
			Timestamp:   ts,
			AppName:     f.AppName,
			WindowTitle: f.WindowTitle,
			PageURL:     f.PageURL,
			PageSnippet: f.PageSnippet,
		}}, nil

	case "metrics":
		if len(f.Metrics) == 0 {
			return nil, fmt.Errorf("metrics frame missing metrics")
		}
		var raw any
		if err := json.Unmarshal(f.Metrics, &raw); err != nil {
			return nil, fmt.Errorf("malformed metrics: %w", err)
		}
		sample, err := mentalstate.ParseMetrics(ts, raw)
		if err != nil {
			return nil, err
		}
		return &Input{Metrics: sample}, nil

	case "command":
		if f.Action == "" {
			return nil, fmt.Errorf("command frame missing action")
		}
		return &Input{Command: &types.MentalCommand{
			Timestamp: ts,
			Action:    f.Action,
			Power:     f.Power,
		}}, nil

	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
