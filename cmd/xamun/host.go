package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/xamun-dev/xamun/internal/catalog"
	"github.com/xamun-dev/xamun/internal/desktop"
	"github.com/xamun-dev/xamun/internal/execution"
	"github.com/xamun-dev/xamun/internal/export"
	"github.com/xamun-dev/xamun/internal/hostconfig"
	"github.com/xamun-dev/xamun/internal/localmodels"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/openrouter"
	"github.com/xamun-dev/xamun/internal/orchestrator"
	"github.com/xamun-dev/xamun/internal/session"
	"github.com/xamun-dev/xamun/internal/state"
	"github.com/xamun-dev/xamun/internal/taskstore"
	"github.com/xamun-dev/xamun/internal/utils"
)

// Layout of the storage directory.
const (
	stateDBFile = "state.db"
	tasksDir    = "tasks"
	cacheDir    = "cache"
)

// openSecrets opens the secret store for cfg. Tests swap in an in-memory
// keyring.
var openSecrets = func(cfg *hostconfig.HostConfig) (keyring.Keyring, error) {
	return state.OpenKeyring(state.KeyringOptions{
		Service: cfg.Keyring.Service,
		Backend: cfg.Keyring.Backend,
		FileDir: cfg.Keyring.FileDir,
	})
}

// host bundles the stores every command works against.
type host struct {
	cfg     *hostconfig.HostConfig
	root    string
	store   *state.Store
	tasks   *taskstore.Store
	catalog *catalog.Cache
	journal session.Journal
	logger  *slog.Logger
}

func (o *rootOptions) loadConfig() (*hostconfig.HostConfig, error) {
	cfg, err := hostconfig.Load(o.dir)
	if err != nil {
		return nil, err
	}
	if o.storage != "" {
		cfg.Storage.Dir = o.storage
	}
	return cfg, nil
}

func (o *rootOptions) openHost() (*host, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	root, err := cfg.StorageRoot()
	if err != nil {
		return nil, fmt.Errorf("resolving storage directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	secrets, err := openSecrets(cfg)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(filepath.Join(root, stateDBFile), secrets)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	return &host{
		cfg:     cfg,
		root:    root,
		store:   store,
		tasks:   taskstore.New(filepath.Join(root, tasksDir)),
		catalog: catalog.New(filepath.Join(root, cacheDir), cfg.Registry.URL, catalog.WithLogger(logger)),
		journal: session.NopJournal{},
		logger:  logger,
	}, nil
}

// enableJournal starts recording lifecycle events when forced or enabled in
// the config file.
func (h *host) enableJournal(force bool) error {
	if !force && (h.cfg.Journal.Enabled == nil || !*h.cfg.Journal.Enabled) {
		return nil
	}
	dir, err := h.cfg.JournalRoot()
	if err != nil {
		return err
	}
	j, err := session.NewJSONJournal(session.DefaultPath(dir))
	if err != nil {
		return err
	}
	h.journal = j
	h.logger.Info("recording journal", "path", j.Path())
	return nil
}

func (h *host) newOrchestrator(executors orchestrator.ExecutorFactory, notifier orchestrator.Notifier, engine string) (*orchestrator.Orchestrator, error) {
	exportDir, err := utils.ExpandHome(h.cfg.Export.Dir)
	if err != nil {
		return nil, err
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Config{
		Version:        version,
		AnnouncementID: h.cfg.Host.AnnouncementID,
		Engine:         engine,
		Theme:          h.cfg.Host.Theme,
		AbortTimeout:   h.cfg.AbortTimeout(),
	}, orchestrator.Deps{
		Store:       h.store,
		Tasks:       h.tasks,
		Executors:   executors,
		Notifier:    notifier,
		Catalog:     h.catalog,
		LocalModels: &localRegistry{registry: localmodels.NewRegistry(nil, h.logger), baseURL: h.cfg.Registry.LocalModelsURL},
		Exporter:    export.New(exportDir, h.cfg.Export.HTML != nil && *h.cfg.Export.HTML),
		Desktop:     desktop.New(workDir, nil, h.logger),
		OpenRouter:  openrouter.NewKeyExchanger("", nil),
		Journal:     h.journal,
		Logger:      h.logger,
	})
}

func (h *host) Close() error {
	return errors.Join(h.journal.Close(), h.store.Close())
}

// newEngines wires the executor backends. The copilot client starts on the
// first task.
func newEngines(engine, model string, logger *slog.Logger) (*execution.Engines, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	copilot := execution.NewCopilotBackend(model, &execution.CopilotBackendOptions{
		WorkingDirectory: workDir,
		Logger:           logger,
	})
	return execution.NewEngines(engine, map[string]execution.Backend{
		execution.ProviderMock:    execution.NewMockBackend(0),
		execution.ProviderCopilot: copilot,
	}), nil
}

// localRegistry queries the configured registry when a request names none.
type localRegistry struct {
	registry *localmodels.Registry
	baseURL  string
}

func (r *localRegistry) List(ctx context.Context, baseURL string) []string {
	if baseURL == "" {
		baseURL = r.baseURL
	}
	return r.registry.List(ctx, baseURL)
}

// noExecutors backs orchestrators used by one-shot commands, which never
// start tasks.
type noExecutors struct{}

func (noExecutors) NewExecutor(context.Context, execution.Options) (execution.TaskExecutor, error) {
	return nil, errors.New("tasks can only run under xamun serve")
}

// discardNotifier drops notifications for one-shot commands.
type discardNotifier struct{}

func (discardNotifier) Notify(models.OutboundType, any) {}

// oneShot builds an orchestrator for commands that inspect or edit stored
// state without running tasks.
func (h *host) oneShot() (*orchestrator.Orchestrator, error) {
	return h.newOrchestrator(noExecutors{}, discardNotifier{}, h.cfg.Defaults.Engine)
}
