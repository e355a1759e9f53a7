// Package rawlog keeps the profiler's raw output, one NDJSON line per sample,
// in daily files under the output directory.
package rawlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ja7ad/ecotrace/pkg/profiler"
)

const (
	filePrefix = "ecofloc-"
	fileSuffix = ".ndjson"
	dayLayout  = "2006-01-02"
)

type Logger struct {
	dir  string
	now  func() time.Time
	mu   sync.Mutex
	file *os.File
	date string
}

type Entry struct {
	Timestamp   string                  `json:"timestamp"`
	CycleID     string                  `json:"cycle_id"`
	PID         int                     `json:"pid"`
	ProcessName string                  `json:"process_name"`
	Resource    string                  `json:"resource"`
	OK          bool                    `json:"ok"`
	Error       string                  `json:"error,omitempty"`
	ElapsedMs   int64                   `json:"elapsed_ms"`
	Metrics     []profiler.MetricRecord `json:"metrics"`
	RawOutput   string                  `json:"raw_output"`
}

func NewLogger(dir string) (*Logger, error) {
	return newLogger(dir, time.Now)
}

func newLogger(dir string, now func() time.Time) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	l := &Logger{dir: dir, now: now}
	if err := l.rotateIfNeeded(); err != nil {
		return nil, err
	}
	return l, nil
}

// Write appends one outcome, successful or not.
func (l *Logger) Write(out profiler.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}

	ts := out.StartedAt
	if ts.IsZero() {
		ts = l.now()
	}
	entry := Entry{
		Timestamp:   ts.UTC().Format(time.RFC3339Nano),
		CycleID:     out.CycleID.String(),
		PID:         out.PID,
		ProcessName: out.ProcessName,
		Resource:    string(out.Resource),
		OK:          out.OK(),
		Error:       out.ErrString(),
		ElapsedMs:   out.Elapsed.Milliseconds(),
		Metrics:     out.Metrics,
		RawOutput:   out.RawOutput,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal raw entry: %w", err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write raw entry: %w", err)
	}
	return nil
}

func (l *Logger) rotateIfNeeded() error {
	today := l.now().UTC().Format(dayLayout)
	if l.file != nil && l.date == today {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
	}

	name := filepath.Join(l.dir, filePrefix+today+fileSuffix)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open raw log: %w", err)
	}
	l.file = f
	l.date = today
	return nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
