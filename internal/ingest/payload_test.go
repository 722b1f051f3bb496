package ingest

import (
	"testing"
	"time"
)

var arrived = time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

func TestDecodeActivityFrame(t *testing.T) {
	data := []byte(`{"type":"activity","timestamp":"2026-08-24T08:59:00Z","app_name":"Cursor","window_title":"a.go - focusd","page_url":""}`)
	in, err := DecodeFrame(data, arrived)
	if err != nil {
		t.Fatal(err)
	}
	if in.Activity == nil || in.Activity.AppName != "Cursor" {
		t.Fatalf("decoded = %+v", in)
	}
	if !in.Activity.Timestamp.Equal(time.Date(2026, 8, 24, 8, 59, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v, want frame's own", in.Activity.Timestamp)
	}
}

func TestDecodeStampsMissingTimestamp(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"type":"activity","app_name":"Cursor"}`), arrived)
	if err != nil {
		t.Fatal(err)
	}
	if !in.Activity.Timestamp.Equal(arrived) {
		t.Errorf("timestamp = %v, want arrival time", in.Activity.Timestamp)
	}
}

func TestDecodeMetricsMapFrame(t *testing.T) {
	data := []byte(`{"type":"metrics","metrics":{"foc":0.7,"str":0.3,"eng":0.6,"rel":0.5}}`)
	in, err := DecodeFrame(data, arrived)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := in.Metrics.Get("attention"); !ok || v != 0.7 {
		t.Errorf("attention = %v, %v", v, ok)
	}
}

func TestDecodeMetricsArrayFrame(t *testing.T) {
	data := []byte(`{"type":"metrics","metrics":[true,0.8,true,0.3]}`)
	in, err := DecodeFrame(data, arrived)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := in.Metrics.Get("cognitiveStress"); v != 0.3 {
		t.Errorf("cognitiveStress = %v, want 0.3", v)
	}
}

func TestDecodeCommandFrame(t *testing.T) {
	in, err := DecodeFrame([]byte(`{"type":"command","action":"push","power":0.85}`), arrived)
	if err != nil {
		t.Fatal(err)
	}
	if in.Command.Action != "push" || in.Command.Power != 0.85 {
		t.Errorf("command = %+v", in.Command)
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	bad := []string{
		`not json`,
		`{"type":"activity"}`,                 // no app_name
		`{"type":"metrics"}`,                  // no metrics
		`{"type":"metrics","metrics":"x"}`,    // wrong shape
		`{"type":"command","power":0.9}`,      // no action
		`{"type":"telemetry","app_name":"x"}`, // unknown type
	}
	for _, s := range bad {
		if _, err := DecodeFrame([]byte(s), arrived); err == nil {
			t.Errorf("frame %q decoded without error", s)
		}
	}
}
