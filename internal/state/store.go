// Package state is the host's process-wide key/value persistence. Plain
// settings and global state are stored as JSON values in SQLite; secrets are
// kept in the OS keyring.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/jmoiron/sqlx"
	"github.com/xamun-dev/xamun/internal/models"
	_ "modernc.org/sqlite"
)

// Global state keys that are not part of the API configuration schema.
const (
	KeyCustomInstructions      = "customInstructions"
	KeyAlwaysAllowReadOnly     = "alwaysAllowReadOnly"
	KeyTaskHistory             = "taskHistory"
	KeyLastShownAnnouncementID = "lastShownAnnouncementId"
	KeyIsDebugMode             = "isDebugMode"
)

// Store persists plain settings in SQLite and secrets in a keyring.
type Store struct {
	db      *sqlx.DB
	secrets keyring.Keyring
}

// Open opens (or creates) the state database at dbPath and runs pending
// migrations. Use ":memory:" for an ephemeral store.
func Open(dbPath string, secrets keyring.Keyring) (*Store, error) {
	if secrets == nil {
		return nil, errors.New("secret store is required")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes
	// writers from every session surface in the process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, secrets: secrets}
	if err := s.runMigrations(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetGlobal decodes the value stored under key into dst. It reports false
// when the key is unset.
func (s *Store) GetGlobal(ctx context.Context, key string, dst any) (bool, error) {
	return getGlobal(ctx, s.db, key, dst)
}

// UpdateGlobal stores value under key. A nil value removes the key.
func (s *Store) UpdateGlobal(ctx context.Context, key string, value any) error {
	return updateGlobal(ctx, s.db, key, value)
}

func getGlobal(ctx context.Context, q queryer, key string, dst any) (bool, error) {
	var raw string
	err := q.GetContext(ctx, &raw, "SELECT value FROM global_state WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func updateGlobal(ctx context.Context, q queryer, key string, value any) error {
	if value == nil {
		if _, err := q.ExecContext(ctx, "DELETE FROM global_state WHERE key = ?", key); err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	const query = `
		INSERT INTO global_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := q.ExecContext(ctx, query, key, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// GetSecret returns the secret stored under key, or "" when unset.
func (s *Store) GetSecret(key string) (string, error) {
	item, err := s.secrets.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", key, err)
	}
	return string(item.Data), nil
}

// StoreSecret saves value under key. An empty value removes the secret.
func (s *Store) StoreSecret(key, value string) error {
	if value == "" {
		if err := s.secrets.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting secret %q: %w", key, err)
		}
		return nil
	}
	if err := s.secrets.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting secret %q: %w", key, err)
	}
	return nil
}

// SetConfigValue routes an API configuration key to the secret store or the
// global state according to models.ConfigSchema.
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	field, ok := models.LookupConfigField(key)
	if !ok {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	if field.Class == models.KeySecret {
		return s.StoreSecret(key, value)
	}
	if value == "" {
		return s.UpdateGlobal(ctx, key, nil)
	}
	return s.UpdateGlobal(ctx, key, value)
}

// GetAPIConfiguration assembles the API configuration from both stores.
func (s *Store) GetAPIConfiguration(ctx context.Context) (models.APIConfiguration, error) {
	var cfg models.APIConfiguration
	for _, f := range models.ConfigSchema {
		var v string
		if f.Class == models.KeySecret {
			secret, err := s.GetSecret(f.Key)
			if err != nil {
				return cfg, err
			}
			v = secret
		} else if _, err := s.GetGlobal(ctx, f.Key, &v); err != nil {
			return cfg, err
		}
		f.Set(&cfg, v)
	}
	return cfg, nil
}

// GetState reads the full host state.
func (s *Store) GetState(ctx context.Context) (*models.HostState, error) {
	cfg, err := s.GetAPIConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	st := &models.HostState{APIConfiguration: cfg}
	reads := []struct {
		key string
		dst any
	}{
		{KeyCustomInstructions, &st.CustomInstructions},
		{KeyAlwaysAllowReadOnly, &st.AlwaysAllowReadOnly},
		{KeyTaskHistory, &st.TaskHistory},
		{KeyLastShownAnnouncementID, &st.LastShownAnnouncementID},
		{KeyIsDebugMode, &st.IsDebugMode},
	}
	for _, r := range reads {
		if _, err := s.GetGlobal(ctx, r.key, r.dst); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// TaskHistory returns the stored history index in insertion order.
func (s *Store) TaskHistory(ctx context.Context) ([]models.HistoryItem, error) {
	var items []models.HistoryItem
	if _, err := s.GetGlobal(ctx, KeyTaskHistory, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateTaskHistory applies fn to the history index inside a transaction and
// stores the result.
func (s *Store) UpdateTaskHistory(ctx context.Context, fn func([]models.HistoryItem) []models.HistoryItem) ([]models.HistoryItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var items []models.HistoryItem
	if _, err := getGlobal(ctx, tx, KeyTaskHistory, &items); err != nil {
		return nil, err
	}

	items = fn(items)
	if items == nil {
		items = []models.HistoryItem{}
	}
	if err := updateGlobal(ctx, tx, KeyTaskHistory, items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing task history: %w", err)
	}
	return items, nil
}

// Reset clears every global key and every secret named in the schema.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM global_state"); err != nil {
		return fmt.Errorf("clearing global state: %w", err)
	}

	var errs []error
	for _, f := range models.ConfigSchema {
		if f.Class != models.KeySecret {
			continue
		}
		if err := s.StoreSecret(f.Key, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
