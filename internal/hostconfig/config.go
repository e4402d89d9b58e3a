// Package hostconfig provides the HostConfig struct and loader for
// .xamun.yaml host-level configuration files.
package hostconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xamun-dev/xamun/internal/utils"
	"github.com/xamun-dev/xamun/internal/validation"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up from the working directory.
const FileName = ".xamun.yaml"

// Default values for host configuration. New() references them and no other
// code should duplicate them.
const (
	DefaultStorageDir = "~/.xamun"

	DefaultRegistryURL    = "https://openrouter.ai/api/v1/models"
	DefaultLocalModelsURL = "http://localhost:11434"

	DefaultAnnouncementID = "oct-9-2024"
	DefaultAbortTimeoutMs = 3000

	DefaultEngine = "copilot"
	DefaultModel  = "claude-sonnet-4.6"

	DefaultKeyringService = "xamun"

	DefaultExportDir  = "."
	DefaultJournalDir = "journal"
)

// StorageConfig says where persisted state lives.
type StorageConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// RegistryConfig holds the remote and local model registry endpoints.
type RegistryConfig struct {
	URL            string `yaml:"url,omitempty"`
	LocalModelsURL string `yaml:"local_models_url,omitempty"`
}

// HostSettings holds orchestrator behaviour settings.
type HostSettings struct {
	AnnouncementID string `yaml:"announcement_id,omitempty"`
	AbortTimeoutMs int    `yaml:"abort_timeout_ms,omitempty"`
	// Theme ("dark" or "light") is sent to front ends on launch.
	Theme string `yaml:"theme,omitempty"`
}

// DefaultsConfig holds the provider defaults used before the user configures one.
type DefaultsConfig struct {
	Engine string `yaml:"engine,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// KeyringConfig selects the secret backend.
type KeyringConfig struct {
	Service string `yaml:"service,omitempty"`
	// Backend forces a single backend ("file", "keychain", "secret-service",
	// "wincred", "pass"). Empty lets the platform choose.
	Backend string `yaml:"backend,omitempty"`
	FileDir string `yaml:"file_dir,omitempty"`
}

// ExportConfig holds task export settings.
type ExportConfig struct {
	Dir  string `yaml:"dir,omitempty"`
	HTML *bool  `yaml:"html,omitempty"`
}

// JournalConfig holds task lifecycle journal settings.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// HostConfig is the top-level configuration loaded from .xamun.yaml.
type HostConfig struct {
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Registry RegistryConfig `yaml:"registry,omitempty"`
	Host     HostSettings   `yaml:"host,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Keyring  KeyringConfig  `yaml:"keyring,omitempty"`
	Export   ExportConfig   `yaml:"export,omitempty"`
	Journal  JournalConfig  `yaml:"journal,omitempty"`
}

// New returns a HostConfig with all hard-coded defaults populated.
func New() *HostConfig {
	return &HostConfig{
		Storage: StorageConfig{
			Dir: DefaultStorageDir,
		},
		Registry: RegistryConfig{
			URL:            DefaultRegistryURL,
			LocalModelsURL: DefaultLocalModelsURL,
		},
		Host: HostSettings{
			AnnouncementID: DefaultAnnouncementID,
			AbortTimeoutMs: DefaultAbortTimeoutMs,
		},
		Defaults: DefaultsConfig{
			Engine: DefaultEngine,
			Model:  DefaultModel,
		},
		Keyring: KeyringConfig{
			Service: DefaultKeyringService,
		},
		Export: ExportConfig{
			Dir:  DefaultExportDir,
			HTML: boolPtr(false),
		},
		Journal: JournalConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultJournalDir,
		},
	}
}

// Load finds .xamun.yaml by walking up from startDir (max 10 levels),
// unmarshals and validates it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*HostConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg HostConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if errs := validation.ValidateHostConfigBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid %s:\n  %s", FileName, strings.Join(errs, "\n  "))
	}

	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// StorageRoot returns the absolute storage directory with a leading "~"
// expanded to the user's home directory.
func (c *HostConfig) StorageRoot() (string, error) {
	return utils.ExpandHome(c.Storage.Dir)
}

// JournalRoot returns the journal directory. Relative directories are
// resolved against the storage root.
func (c *HostConfig) JournalRoot() (string, error) {
	dir, err := utils.ExpandTilde(c.Journal.Dir)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}
	root, err := c.StorageRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, dir), nil
}

// AbortTimeout returns the cancellation wait bound.
func (c *HostConfig) AbortTimeout() time.Duration {
	return time.Duration(c.Host.AbortTimeoutMs) * time.Millisecond
}

// findConfigFile walks up from dir looking for .xamun.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *HostConfig) {
	if src.Storage.Dir != "" {
		dst.Storage.Dir = src.Storage.Dir
	}

	if src.Registry.URL != "" {
		dst.Registry.URL = src.Registry.URL
	}
	if src.Registry.LocalModelsURL != "" {
		dst.Registry.LocalModelsURL = src.Registry.LocalModelsURL
	}

	if src.Host.AnnouncementID != "" {
		dst.Host.AnnouncementID = src.Host.AnnouncementID
	}
	if src.Host.AbortTimeoutMs != 0 {
		dst.Host.AbortTimeoutMs = src.Host.AbortTimeoutMs
	}
	if src.Host.Theme != "" {
		dst.Host.Theme = src.Host.Theme
	}

	if src.Defaults.Engine != "" {
		dst.Defaults.Engine = src.Defaults.Engine
	}
	if src.Defaults.Model != "" {
		dst.Defaults.Model = src.Defaults.Model
	}

	if src.Keyring.Service != "" {
		dst.Keyring.Service = src.Keyring.Service
	}
	if src.Keyring.Backend != "" {
		dst.Keyring.Backend = src.Keyring.Backend
	}
	if src.Keyring.FileDir != "" {
		dst.Keyring.FileDir = src.Keyring.FileDir
	}

	if src.Export.Dir != "" {
		dst.Export.Dir = src.Export.Dir
	}
	if src.Export.HTML != nil {
		dst.Export.HTML = src.Export.HTML
	}

	if src.Journal.Enabled != nil {
		dst.Journal.Enabled = src.Journal.Enabled
	}
	if src.Journal.Dir != "" {
		dst.Journal.Dir = src.Journal.Dir
	}
}

func boolPtr(b bool) *bool {
	return &b
}
