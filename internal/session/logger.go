package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal receives lifecycle events.
type Journal interface {
	Log(event Event) error
	Close() error
}

// JSONJournal appends events to a file as NDJSON.
type JSONJournal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

// NewJSONJournal opens path for appending, creating parent directories.
func NewJSONJournal(path string) (*JSONJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	return &JSONJournal{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
	}, nil
}

// Log writes a single event as one JSON line.
func (j *JSONJournal) Log(event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(event)
}

// Close closes the journal file.
func (j *JSONJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Path returns the journal file path.
func (j *JSONJournal) Path() string {
	return j.path
}

// NopJournal discards all events.
type NopJournal struct{}

func (NopJournal) Log(Event) error { return nil }

func (NopJournal) Close() error { return nil }

// journalSuffix marks journal files inside a directory.
const journalSuffix = "-journal.jsonl"

// DefaultPath returns a timestamped journal path inside dir.
func DefaultPath(dir string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	return filepath.Join(dir, ts+journalSuffix)
}
