package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmarlin/focusd/internal/types"
)

func TestAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	l.AppendActivity(&types.ActivityEvent{Timestamp: ts, AppName: "Cursor", WindowTitle: "a.go"})
	l.AppendMetrics(&types.MetricSample{Timestamp: ts.Add(time.Second), Metrics: map[string]float64{"attention": 0.7}})
	l.AppendCommand(&types.MentalCommand{Timestamp: ts.Add(2 * time.Second), Action: "push", Power: 0.8})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	if entries[0].Type != TypeActivity || entries[0].Activity.AppName != "Cursor" {
		t.Errorf("entry 0 = %+v, want activity", entries[0])
	}
	if entries[1].Type != TypeMetrics || entries[1].Metrics.Metrics["attention"] != 0.7 {
		t.Errorf("entry 1 = %+v, want metrics", entries[1])
	}
	if entries[2].Type != TypeCommand || entries[2].Command.Action != "push" {
		t.Errorf("entry 2 = %+v, want command", entries[2])
	}
}

func TestAppendIsAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")

	l, _ := Open(path)
	l.AppendActivity(&types.ActivityEvent{Timestamp: time.Now(), AppName: "A"})
	l.Close()

	l2, _ := Open(path)
	l2.AppendActivity(&types.ActivityEvent{Timestamp: time.Now(), AppName: "B"})
	l2.Close()

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 after reopen", len(entries))
	}
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	data := `{"type":"activity","timestamp":"2026-08-24T09:00:00Z","activity":{"timestamp":"2026-08-24T09:00:00Z","app_name":"Cursor","window_title":"a.go"}}
not json at all
{"type":"command","timestamp":"2026-08-24T09:01:00Z","command":{"timestamp":"2026-08-24T09:01:00Z","action":"push","power":0.9}}
{"truncated`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 with malformed lines skipped", len(entries))
	}
}
