package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/types"
)

// Entry types in the capture log.
const (
	TypeActivity = "activity"
	TypeMetrics  = "metrics"
	TypeCommand  = "command"
)

// Entry is one captured input, exactly as it arrived. The log is the raw
// material for offline replay and threshold tuning.
type Entry struct {
	Type      string               `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Activity  *types.ActivityEvent `json:"activity,omitempty"`
	Metrics   *types.MetricSample  `json:"metrics,omitempty"`
	Command   *types.MentalCommand `json:"command,omitempty"`
}

// Log is an append-only JSONL capture of everything the daemon ingests.
// One line per entry; a partial final line from a crash is skipped on read.
type Log struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	logging.Info("eventlog", "capturing to %s", path)
	return &Log{file: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one entry. Failures are logged, not returned; capture is
// best-effort and must never stall ingestion.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		logging.Debug("eventlog", "marshal failed: %v", err)
		return
	}
	if _, err := l.w.Write(append(data, '\n')); err != nil {
		logging.Warn("eventlog", "write failed: %v", err)
	}
}

// AppendActivity, AppendMetrics and AppendCommand wrap Append for the three
// input kinds.
func (l *Log) AppendActivity(ev *types.ActivityEvent) {
	l.Append(Entry{Type: TypeActivity, Timestamp: ev.Timestamp, Activity: ev})
}

func (l *Log) AppendMetrics(s *types.MetricSample) {
	l.Append(Entry{Type: TypeMetrics, Timestamp: s.Timestamp, Metrics: s})
}

func (l *Log) AppendCommand(c *types.MentalCommand) {
	l.Append(Entry{Type: TypeCommand, Timestamp: c.Timestamp, Command: c})
}

// Flush forces buffered entries to disk.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Flush()
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// ReadAll loads a capture file for replay. Malformed lines are counted and
// skipped so a crashed capture still replays.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	var entries []Entry
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if skipped > 0 {
		logging.Info("eventlog", "skipped %d malformed lines in %s", skipped, path)
	}
	return entries, sc.Err()
}
