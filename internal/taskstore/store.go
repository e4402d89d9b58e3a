// Package taskstore maps a task identifier to the directory holding its
// transcript files:
//
//	<root>/<task-id>/api_conversation_history.json
//	<root>/<task-id>/ui_messages.json
package taskstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/utils"
)

// File names inside a task directory.
const (
	APIHistoryFile = "api_conversation_history.json"
	UIMessagesFile = "ui_messages.json"

	// legacyMessagesFile is written by older hosts. It is never read, only
	// removed together with the task.
	legacyMessagesFile = "claude_messages.json"
)

// ErrTaskNotFound is returned when a task has no api history on disk.
var ErrTaskNotFound = errors.New("task not found")

// Store reads and writes task transcripts under a root directory.
type Store struct {
	root string
}

// New creates a Store rooted at root. The directory is created lazily.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the directory that holds one subdirectory per task.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory for a task.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// APIHistoryPath returns the api history file for a task.
func (s *Store) APIHistoryPath(id string) string {
	return filepath.Join(s.Dir(id), APIHistoryFile)
}

// UIMessagesPath returns the ui messages file for a task.
func (s *Store) UIMessagesPath(id string) string {
	return filepath.Join(s.Dir(id), UIMessagesFile)
}

// LoadAPIHistory returns the task's provider conversation. A missing or
// unparseable file yields ErrTaskNotFound.
func (s *Store) LoadAPIHistory(id string) ([]models.APIMessage, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var history []models.APIMessage
	if err := readJSON(s.APIHistoryPath(id), &history); err != nil {
		if errors.Is(err, os.ErrNotExist) || isSyntaxError(err) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("reading api history for %s: %w", id, err)
	}
	if history == nil {
		history = []models.APIMessage{}
	}
	return history, nil
}

// LoadUIMessages returns the task's UI transcript. A missing or unparseable
// file yields an empty transcript.
func (s *Store) LoadUIMessages(id string) ([]models.UIMessage, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	var messages []models.UIMessage
	if err := readJSON(s.UIMessagesPath(id), &messages); err != nil {
		if errors.Is(err, os.ErrNotExist) || isSyntaxError(err) {
			return []models.UIMessage{}, nil
		}
		return nil, fmt.Errorf("reading ui messages for %s: %w", id, err)
	}
	if messages == nil {
		messages = []models.UIMessage{}
	}
	return messages, nil
}

// SaveAPIHistory replaces the task's api history file.
func (s *Store) SaveAPIHistory(id string, history []models.APIMessage) error {
	if err := validateID(id); err != nil {
		return err
	}
	if history == nil {
		history = []models.APIMessage{}
	}
	return writeJSON(s.APIHistoryPath(id), history)
}

// SaveUIMessages replaces the task's ui messages file.
func (s *Store) SaveUIMessages(id string, messages []models.UIMessage) error {
	if err := validateID(id); err != nil {
		return err
	}
	if messages == nil {
		messages = []models.UIMessage{}
	}
	return writeJSON(s.UIMessagesPath(id), messages)
}

// Exists reports whether the task's api history file is present.
func (s *Store) Exists(id string) bool {
	if validateID(id) != nil {
		return false
	}
	_, err := os.Stat(s.APIHistoryPath(id))
	return err == nil
}

// DeleteAll removes every known transcript file of the task and then its
// directory. Files or directories that are already gone are not an error.
func (s *Store) DeleteAll(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	dir := s.Dir(id)
	for _, name := range []string{APIHistoryFile, UIMessagesFile, legacyMessagesFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s for task %s: %w", name, id, err)
		}
	}

	// Leftover temp files from an interrupted write.
	if leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp.*")); err == nil {
		for _, p := range leftovers {
			_ = os.Remove(p)
		}
	}

	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing task directory %s: %w", dir, err)
	}
	return nil
}

// ListIDs returns the IDs of every task directory on disk.
func (s *Store) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading task root: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// validateID rejects identifiers that would escape the root directory.
func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("task id is required")
	}
	if id != filepath.Base(id) || id == "." || id == ".." {
		return fmt.Errorf("invalid task id %q", id)
	}
	return nil
}

func isSyntaxError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
