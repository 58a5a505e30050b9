// Package trace records an ordered, timestamped ledger of pipeline events
// for audit. The ledger is append-only in memory during a run and persisted
// as a JSON document; the on-disk history of earlier runs is preserved across
// flushes.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level classifies the severity of a ledger entry.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Entry is one ledger record. Entries are ordered by emission, not by
// completion, across concurrent tasks.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Agent     string         `json:"agent"`
	Event     string         `json:"event"`
	Level     Level          `json:"level"`
	ElapsedMS int64          `json:"elapsed_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// Ledger collects entries for one run. Record is safe for concurrent use;
// the mutex is the single-writer discipline that serializes emission order
// among fan-out tasks.
type Ledger struct {
	mu       sync.Mutex
	path     string
	runStart time.Time
	entries  []Entry

	// prior holds what was on disk before this run's first flush, so that
	// repeated flushes rewrite the same merged document instead of
	// appending blindly.
	prior       []Entry
	priorLoaded bool
}

// NewLedger creates a ledger that persists to path. The elapsed delta on
// every entry is measured from this call.
func NewLedger(path string) *Ledger {
	return &Ledger{
		path:     path,
		runStart: time.Now(),
	}
}

// Record appends one entry. It never fails and never blocks on I/O.
func (l *Ledger) Record(agent, event string, level Level, details map[string]any) {
	if l == nil {
		return
	}
	now := time.Now()
	l.mu.Lock()
	l.entries = append(l.entries, Entry{
		Timestamp: now.Format(time.RFC3339Nano),
		Agent:     agent,
		Event:     event,
		Level:     level,
		ElapsedMS: now.Sub(l.runStart).Milliseconds(),
		Details:   details,
	})
	l.mu.Unlock()
}

// Snapshot returns a copy of this run's entries in emission order.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// wrapped is the canonical on-disk form.
type wrapped struct {
	Logs []Entry `json:"logs"`
}

// Flush persists the full ledger. It merges entries already on disk from
// earlier runs with everything recorded so far, and is safe to call multiple
// times (success path and crash path both flush).
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.priorLoaded {
		prior, err := ReadFile(l.path)
		if err != nil {
			// A corrupt trace file must not take the run down; start over
			// with this run's entries only.
			prior = nil
		}
		l.prior = prior
		l.priorLoaded = true
	}

	merged := make([]Entry, 0, len(l.prior)+len(l.entries))
	merged = append(merged, l.prior...)
	merged = append(merged, l.entries...)

	data, err := json.MarshalIndent(wrapped{Logs: merged}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize trace: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create trace directory: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to persist trace file: %w", err)
	}
	return nil
}

// ReadFile loads a trace file, accepting either a bare JSON array of entries
// or an object wrapping one under a "logs" key. The shape is normalized here
// at the read boundary; nothing else branches on it. A missing file is an
// empty ledger, not an error.
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	var bare []Entry
	if err := json.Unmarshal(data, &bare); err == nil {
		return bare, nil
	}

	var w wrapped
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unrecognized trace file shape: %w", err)
	}
	return w.Logs, nil
}
