// Package events keeps the append-only JSONL journal of a run's decisions.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxSize triggers rotation into archive/ once exceeded.
	DefaultMaxSize = 32 * 1024 * 1024
	FileName       = "events.jsonl"
	ArchiveDir     = "archive"
)

// Event types written by the batch runner.
const (
	TypeRunStart    = "run_start"
	TypeRunEnd      = "run_end"
	TypeFileSkipped = "file_skipped"
	TypeAttempt     = "attempt"
	TypeRateLimited = "rate_limited"
	TypeSucceeded   = "succeeded"
	TypeFatal       = "fatal"
	TypeExhausted   = "exhausted"
)

// Entry is one journal line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	File      string         `json:"file,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Journal appends entries to a JSONL file, rotating it by size.
type Journal struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	currentSize int64
	maxSize     int64
	rotations   int
	now         func() time.Time
}

// Open creates or appends to the journal at path.
func Open(path string, maxSize int64) (*Journal, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	j := &Journal{path: path, maxSize: maxSize, now: time.Now}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) open() error {
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat journal: %w", err)
	}
	j.file = f
	j.currentSize = stat.Size()
	return nil
}

// Path returns the active journal path.
func (j *Journal) Path() string { return j.path }

// Record writes one entry. A nil Journal is a no-op.
func (j *Journal) Record(eventType, file, agent string, details map[string]any) error {
	if j == nil {
		return nil
	}
	return j.Write(Entry{EventType: eventType, File: file, Agent: agent, Details: details})
}

// Write appends e, stamping it when Timestamp is zero.
func (j *Journal) Write(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return fmt.Errorf("journal closed")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = j.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	if j.currentSize > 0 && j.currentSize+int64(len(data)) > j.maxSize {
		if err := j.rotate(); err != nil {
			return fmt.Errorf("rotate journal: %w", err)
		}
	}

	n, err := j.file.Write(data)
	if err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	j.currentSize += int64(n)
	return nil
}

func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	archiveDir := filepath.Join(filepath.Dir(j.path), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	j.rotations++
	base := strings.TrimSuffix(filepath.Base(j.path), filepath.Ext(j.path))
	name := fmt.Sprintf("%s.%s.%d%s", base, j.now().Format("20060102_150405"), j.rotations, filepath.Ext(j.path))
	if err := os.Rename(j.path, filepath.Join(archiveDir, name)); err != nil {
		return fmt.Errorf("archive journal: %w", err)
	}
	return j.open()
}

// Close syncs and closes the journal. A nil Journal is a no-op.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	f := j.file
	j.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadAll decodes every entry in the journal at path, skipping malformed lines.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var out []Entry
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			break
		}
		out = append(out, e)
	}
	return out, nil
}
