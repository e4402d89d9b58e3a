// Package orchestrator owns the host's single active task and the persistent
// state around it. Every transition of the active task goes through an
// Orchestrator method; commands are serialized so that at most one executor
// is ever held.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xamun-dev/xamun/internal/execution"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/session"
	"github.com/xamun-dev/xamun/internal/state"
	"github.com/xamun-dev/xamun/internal/taskstore"
)

// DefaultAbortTimeout bounds how long CancelActiveTask waits for an aborted
// executor to unwind before resuming the task anyway.
const DefaultAbortTimeout = 3000 * time.Millisecond

// ErrTaskNotFound is returned when a task id has no stored transcript.
var ErrTaskNotFound = taskstore.ErrTaskNotFound

// Store is the persistent configuration and global state.
type Store interface {
	GetState(ctx context.Context) (*models.HostState, error)
	GetAPIConfiguration(ctx context.Context) (models.APIConfiguration, error)
	SetConfigValue(ctx context.Context, key, value string) error
	UpdateGlobal(ctx context.Context, key string, value any) error
	TaskHistory(ctx context.Context) ([]models.HistoryItem, error)
	UpdateTaskHistory(ctx context.Context, fn func([]models.HistoryItem) []models.HistoryItem) ([]models.HistoryItem, error)
	Reset(ctx context.Context) error
}

// ExecutorFactory builds task executors.
type ExecutorFactory interface {
	NewExecutor(ctx context.Context, opts execution.Options) (execution.TaskExecutor, error)
}

// Notifier delivers outbound notifications to the presentation layer.
// Notify must not block.
type Notifier interface {
	Notify(kind models.OutboundType, payload any)
}

// Catalog is the model catalog cache.
type Catalog interface {
	Read() (models.Catalog, bool)
	Refresh(ctx context.Context) (models.Catalog, error)
}

// LocalModels lists the models served by a local registry.
type LocalModels interface {
	List(ctx context.Context, baseURL string) []string
}

// Exporter writes a task transcript somewhere the user can read it.
type Exporter interface {
	Export(ts int64, history []models.APIMessage) (string, error)
}

// KeyExchanger trades an OAuth authorization code for a provider API key.
type KeyExchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

// Desktop opens files and links with the platform's handlers.
type Desktop interface {
	OpenFile(path string) error
	OpenImage(image string) error
	OpenMention(mention string) error
	SelectImages() []string
}

// Config holds the orchestrator's fixed settings.
type Config struct {
	Version        string
	AnnouncementID string

	// Engine names the default executor provider, for the journal.
	Engine string

	// Theme is sent to the presentation layer on launch when set.
	Theme string

	// AbortTimeout defaults to DefaultAbortTimeout.
	AbortTimeout time.Duration
}

// Deps are the orchestrator's collaborators. Store, Tasks, Executors and
// Notifier are required.
type Deps struct {
	Store       Store
	Tasks       *taskstore.Store
	Executors   ExecutorFactory
	Notifier    Notifier
	Catalog     Catalog
	LocalModels LocalModels
	Exporter    Exporter
	Desktop     Desktop
	OpenRouter  KeyExchanger
	Journal     session.Journal
	Logger      *slog.Logger
}

// TaskRecord is a task's index entry together with its api history.
type TaskRecord struct {
	Item       models.HistoryItem
	APIHistory []models.APIMessage
}

// Orchestrator coordinates the active task, the stores and the notifier.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	// cmdMu serializes operations that change the active task.
	cmdMu sync.Mutex

	// mu guards active, activeGen and nextGen. Transcript writes from the
	// active executor happen under mu so they cannot interleave with a
	// delete of the same task.
	mu        sync.Mutex
	active    execution.TaskExecutor
	activeGen uint64
	nextGen   uint64

	// postMu orders snapshot publication: a snapshot is built and handed to
	// the notifier before the next one is built.
	postMu sync.Mutex

	bgMu     sync.Mutex
	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
	closed   bool
}

// New creates an Orchestrator. It does nothing until Open is called.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case deps.Tasks == nil:
		return nil, errors.New("orchestrator: task storage is required")
	case deps.Executors == nil:
		return nil, errors.New("orchestrator: executor factory is required")
	case deps.Notifier == nil:
		return nil, errors.New("orchestrator: notifier is required")
	}
	if cfg.AbortTimeout <= 0 {
		cfg.AbortTimeout = DefaultAbortTimeout
	}
	if deps.Journal == nil {
		deps.Journal = session.NopJournal{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

// Open broadcasts the cached model catalog, or starts a refresh when there is
// no usable cache.
func (o *Orchestrator) Open(ctx context.Context) error {
	o.journal(session.EventHostOpen, session.HostOpenData(o.cfg.Version, o.cfg.Engine, o.deps.Tasks.Root()))

	if o.deps.Catalog == nil {
		return nil
	}
	if cat, ok := o.deps.Catalog.Read(); ok {
		o.deps.Notifier.Notify(models.OutCatalog, models.CatalogPayload{Entries: cat})
		return nil
	}
	o.RefreshCatalog()
	return nil
}

// Close stops the active executor and waits for background work to finish.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.cmdMu.Lock()
	o.clearActive()
	o.cmdMu.Unlock()

	o.bgMu.Lock()
	o.closed = true
	o.bgMu.Unlock()
	o.bgCancel()

	done := make(chan struct{})
	go func() {
		o.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.journal(session.EventHostClose, nil)
	return nil
}

// StartNewTask replaces the active task with a new one. If no executor can
// be built the host stays idle and the failure is only logged.
func (o *Orchestrator) StartNewTask(ctx context.Context, text string, images []string) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	return o.startNewTask(ctx, text, images)
}

func (o *Orchestrator) startNewTask(ctx context.Context, text string, images []string) error {
	o.clearActive()

	st, err := o.deps.Store.GetState(ctx)
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}

	ts := time.Now().UnixMilli()
	item := models.HistoryItem{ID: newTaskID(), Ts: ts, Task: text}
	api := []models.APIMessage{models.NewTextMessage(models.RoleUser, text)}
	ui := []models.UIMessage{{
		Ts:     ts,
		Type:   models.UIMessageSay,
		Say:    models.SayTask,
		Text:   text,
		Images: images,
	}}

	gen := o.reserveGen()
	exec, err := o.deps.Executors.NewExecutor(ctx, execution.Options{
		Task:                item,
		Prompt:              text,
		Images:              images,
		APIHistory:          api,
		UIMessages:          ui,
		APIConfiguration:    st.APIConfiguration,
		CustomInstructions:  st.CustomInstructions,
		AlwaysAllowReadOnly: st.AlwaysAllowReadOnly,
		Sink:                &executorSink{o: o, gen: gen},
		Logger:              o.log,
	})
	if err != nil {
		o.log.Error("failed to start task", "error", err)
		o.journal(session.EventError, session.ErrorData("failed to start task", map[string]any{"error": err.Error()}))
		return nil
	}

	o.mu.Lock()
	o.install(exec, gen)
	item = exec.HistoryItem()
	o.writeTranscriptLocked(item.ID, api, ui)
	o.upsertHistoryLocked(ctx, item)
	o.mu.Unlock()

	o.journal(session.EventTaskStart, session.TaskData(item.ID, item.Task))
	o.PostState(ctx)
	exec.Start()
	return nil
}

// ResumeTask makes item the active task, seeded with its stored transcript.
func (o *Orchestrator) ResumeTask(ctx context.Context, item models.HistoryItem) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	return o.resumeTask(ctx, item)
}

func (o *Orchestrator) resumeTask(ctx context.Context, item models.HistoryItem) error {
	o.clearActive()

	rec, err := o.getTaskWithID(ctx, item.ID)
	if err != nil {
		return err
	}
	ui, err := o.deps.Tasks.LoadUIMessages(item.ID)
	if err != nil {
		o.log.Warn("failed to read ui messages", "task", item.ID, "error", err)
		ui = nil
	}

	st, err := o.deps.Store.GetState(ctx)
	if err != nil {
		return fmt.Errorf("reading state: %w", err)
	}

	gen := o.reserveGen()
	exec, err := o.deps.Executors.NewExecutor(ctx, execution.Options{
		Task:                item,
		Resume:              true,
		APIHistory:          rec.APIHistory,
		UIMessages:          ui,
		APIConfiguration:    st.APIConfiguration,
		CustomInstructions:  st.CustomInstructions,
		AlwaysAllowReadOnly: st.AlwaysAllowReadOnly,
		Sink:                &executorSink{o: o, gen: gen},
		Logger:              o.log,
	})
	if err != nil {
		o.log.Error("failed to resume task", "task", item.ID, "error", err)
		o.journal(session.EventError, session.ErrorData("failed to resume task", map[string]any{"task": item.ID, "error": err.Error()}))
		return nil
	}

	o.mu.Lock()
	o.install(exec, gen)
	if resumed := exec.HistoryItem(); resumed != item {
		o.upsertHistoryLocked(ctx, resumed)
	}
	o.mu.Unlock()

	o.journal(session.EventTaskResume, session.TaskData(item.ID, item.Task))
	o.PostState(ctx)
	exec.Start()
	return nil
}

// CancelActiveTask aborts the active task and resumes it from its stored
// transcript, so the same task is active afterwards. It waits for the abort
// to be acknowledged for at most the configured timeout.
func (o *Orchestrator) CancelActiveTask(ctx context.Context) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	exec := o.activeExecutor()
	if exec == nil {
		return nil
	}

	rec, err := o.getTaskWithID(ctx, exec.TaskID())
	if err != nil {
		return err
	}
	if current := exec.HistoryItem(); current.SessionID != "" {
		rec.Item.SessionID = current.SessionID
	}

	start := time.Now()
	exec.Abort()

	timer := time.NewTimer(o.cfg.AbortTimeout)
	defer timer.Stop()

	acknowledged := false
	select {
	case <-exec.Aborted():
		acknowledged = true
	case <-timer.C:
		o.log.Warn("task did not finish aborting in time", "task", rec.Item.ID, "timeout", o.cfg.AbortTimeout)
	case <-ctx.Done():
		o.log.Warn("stopped waiting for task to abort", "task", rec.Item.ID, "error", ctx.Err())
	}
	o.journal(session.EventTaskCancel, session.TaskCancelData(rec.Item.ID, acknowledged, time.Since(start).Milliseconds()))

	return o.resumeTask(context.WithoutCancel(ctx), rec.Item)
}

// ClearActiveTask aborts the active task without waiting and leaves the
// host idle.
func (o *Orchestrator) ClearActiveTask() {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()
	o.clearActive()
}

// DeleteTask removes a task's index entry and its stored files. Deleting a
// task that is already gone is not an error.
func (o *Orchestrator) DeleteTask(ctx context.Context, id string) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	if _, err := o.getTaskWithID(ctx, id); err != nil && !errors.Is(err, ErrTaskNotFound) {
		return err
	}

	o.mu.Lock()
	if o.active != nil && o.active.TaskID() == id {
		o.dropActiveLocked()
	}
	_, err := o.deps.Store.UpdateTaskHistory(ctx, func(items []models.HistoryItem) []models.HistoryItem {
		return models.RemoveHistory(items, id)
	})
	if err == nil {
		if derr := o.deps.Tasks.DeleteAll(id); derr != nil {
			o.log.Warn("failed to delete task files", "task", id, "error", derr)
		}
	}
	o.mu.Unlock()
	if err != nil {
		return fmt.Errorf("removing task from history: %w", err)
	}

	o.journal(session.EventTaskDelete, session.TaskData(id, ""))
	o.PostState(ctx)
	return nil
}

// ExportTask writes the task's transcript through the exporter and returns
// where it went.
func (o *Orchestrator) ExportTask(ctx context.Context, id string) (string, error) {
	rec, err := o.GetTaskWithID(ctx, id)
	if err != nil {
		return "", err
	}
	if o.deps.Exporter == nil {
		return "", errors.New("no exporter configured")
	}

	path, err := o.deps.Exporter.Export(rec.Item.Ts, rec.APIHistory)
	if err != nil {
		o.log.Error("failed to export task", "task", id, "error", err)
		return "", err
	}
	o.log.Info("exported task", "task", id, "path", path)
	return path, nil
}

// ExportCurrentTask exports the active task, if any.
func (o *Orchestrator) ExportCurrentTask(ctx context.Context) (string, error) {
	id := o.CurrentTaskID()
	if id == "" {
		return "", nil
	}
	return o.ExportTask(ctx, id)
}

// ShowTask makes id the active task, resuming it unless it already is, and
// switches the presentation layer to the chat view.
func (o *Orchestrator) ShowTask(ctx context.Context, id string) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	if id != o.CurrentTaskID() {
		rec, err := o.getTaskWithID(ctx, id)
		if err != nil {
			return err
		}
		if err := o.resumeTask(ctx, rec.Item); err != nil {
			return err
		}
	}
	o.deps.Notifier.Notify(models.OutAction, models.ActionPayload{Action: models.ActionChatButtonClicked})
	return nil
}

// ResetAll clears global state and secrets and stops the active task. Task
// directories on disk are left alone.
func (o *Orchestrator) ResetAll(ctx context.Context) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	// Drop the executor first so its sink cannot write into the reset index.
	o.clearActive()
	if err := o.deps.Store.Reset(ctx); err != nil {
		o.log.Error("failed to reset state", "error", err)
	}
	o.PostState(ctx)
	o.deps.Notifier.Notify(models.OutAction, models.ActionPayload{Action: models.ActionChatButtonClicked})
	return nil
}

// UpsertHistoryItem replaces or appends item in the history index and
// broadcasts the new state.
func (o *Orchestrator) UpsertHistoryItem(ctx context.Context, item models.HistoryItem) error {
	if _, err := o.deps.Store.UpdateTaskHistory(ctx, func(items []models.HistoryItem) []models.HistoryItem {
		return models.UpsertHistory(items, item)
	}); err != nil {
		return fmt.Errorf("updating task history: %w", err)
	}
	o.PostState(ctx)
	return nil
}

// GetTaskWithID returns the task's index entry and api history. When the
// entry exists but its transcript does not, the entry is purged from the
// index and ErrTaskNotFound is returned.
func (o *Orchestrator) GetTaskWithID(ctx context.Context, id string) (TaskRecord, error) {
	return o.getTaskWithID(ctx, id)
}

func (o *Orchestrator) getTaskWithID(ctx context.Context, id string) (TaskRecord, error) {
	history, err := o.deps.Store.TaskHistory(ctx)
	if err != nil {
		return TaskRecord{}, fmt.Errorf("reading task history: %w", err)
	}

	item, ok := models.FindHistory(history, id)
	if ok {
		api, err := o.deps.Tasks.LoadAPIHistory(id)
		if err == nil {
			return TaskRecord{Item: item, APIHistory: api}, nil
		}
		if !errors.Is(err, taskstore.ErrTaskNotFound) {
			return TaskRecord{}, err
		}
		o.log.Warn("task transcript missing, removing from history", "task", id)
	}

	if _, err := o.deps.Store.UpdateTaskHistory(ctx, func(items []models.HistoryItem) []models.HistoryItem {
		return models.RemoveHistory(items, id)
	}); err != nil {
		o.log.Error("failed to purge task from history", "task", id, "error", err)
	}
	return TaskRecord{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// History returns the displayable history entries, newest first.
func (o *Orchestrator) History(ctx context.Context) ([]models.HistoryItem, error) {
	items, err := o.deps.Store.TaskHistory(ctx)
	if err != nil {
		return nil, err
	}
	return models.SortHistory(items), nil
}

// CurrentTaskID returns the active task's id, or "" when idle.
func (o *Orchestrator) CurrentTaskID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return ""
	}
	return o.active.TaskID()
}

// Snapshot assembles the state pushed to the presentation layer.
func (o *Orchestrator) Snapshot(ctx context.Context) (models.StateSnapshot, error) {
	st, err := o.deps.Store.GetState(ctx)
	if err != nil {
		return models.StateSnapshot{}, err
	}

	exec := o.activeExecutor()

	snap := models.StateSnapshot{
		Version:                o.cfg.Version,
		APIConfiguration:       st.APIConfiguration.Redacted(),
		CustomInstructions:     st.CustomInstructions,
		AlwaysAllowReadOnly:    st.AlwaysAllowReadOnly,
		UIMessages:             []models.UIMessage{},
		TaskHistory:            models.SortHistory(st.TaskHistory),
		ShouldShowAnnouncement: st.LastShownAnnouncementID != o.cfg.AnnouncementID,
		IsDebugMode:            st.IsDebugMode,
	}
	if exec != nil {
		snap.CurrentTaskID = exec.TaskID()
		if ui := exec.UIMessages(); ui != nil {
			snap.UIMessages = ui
		}
	}
	return snap, nil
}

// PostState broadcasts a fresh snapshot. Failures are logged.
func (o *Orchestrator) PostState(ctx context.Context) {
	o.postMu.Lock()
	defer o.postMu.Unlock()

	snap, err := o.Snapshot(ctx)
	if err != nil {
		o.log.Error("failed to build state snapshot", "error", err)
		return
	}
	o.deps.Notifier.Notify(models.OutStateSnapshot, snap)
}

// RefreshCatalog fetches the model catalog in the background and broadcasts
// the result. On failure the previous cache, or an empty catalog, is
// broadcast instead.
func (o *Orchestrator) RefreshCatalog() {
	if o.deps.Catalog == nil {
		return
	}

	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	if o.closed {
		return
	}

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()

		cat, err := o.deps.Catalog.Refresh(o.bgCtx)
		if err != nil {
			o.log.Error("failed to refresh model catalog", "error", err)
		}
		if cat == nil {
			cat = models.Catalog{}
		}
		o.journal(session.EventCatalogRefresh, session.CatalogRefreshData(len(cat), err))
		o.deps.Notifier.Notify(models.OutCatalog, models.CatalogPayload{Entries: cat})
	}()
}

// RequestLocalModels queries a local model registry and broadcasts the model
// names it serves.
func (o *Orchestrator) RequestLocalModels(ctx context.Context, baseURL string) []string {
	names := []string{}
	if o.deps.LocalModels != nil {
		names = o.deps.LocalModels.List(ctx, baseURL)
	}
	o.deps.Notifier.Notify(models.OutLocalModels, models.LocalModelsPayload{Names: names})
	return names
}

// HandleAskResponse forwards the user's answer to the active executor.
func (o *Orchestrator) HandleAskResponse(resp models.AskResponse, text string, images []string) {
	if exec := o.activeExecutor(); exec != nil {
		exec.HandleAskResponse(resp, text, images)
	}
}

// reserveGen returns the generation number for the next executor.
func (o *Orchestrator) reserveGen() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextGen++
	return o.nextGen
}

// install makes exec the active executor. o.mu must be held.
func (o *Orchestrator) install(exec execution.TaskExecutor, gen uint64) {
	o.active = exec
	o.activeGen = gen
}

// clearActive aborts and drops the active executor without waiting.
func (o *Orchestrator) clearActive() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropActiveLocked()
}

func (o *Orchestrator) dropActiveLocked() {
	if o.active == nil {
		return
	}
	o.active.Abort()
	o.active = nil
	o.activeGen = 0
}

// isCurrentLocked reports whether gen and taskID identify the active
// executor. o.mu must be held.
func (o *Orchestrator) isCurrentLocked(gen uint64, taskID string) bool {
	return o.active != nil && o.activeGen == gen && o.active.TaskID() == taskID
}

func (o *Orchestrator) writeTranscriptLocked(id string, api []models.APIMessage, ui []models.UIMessage) {
	if err := o.deps.Tasks.SaveAPIHistory(id, api); err != nil {
		o.log.Error("failed to save api history", "task", id, "error", err)
	}
	if err := o.deps.Tasks.SaveUIMessages(id, ui); err != nil {
		o.log.Error("failed to save ui messages", "task", id, "error", err)
	}
}

func (o *Orchestrator) upsertHistoryLocked(ctx context.Context, item models.HistoryItem) {
	if _, err := o.deps.Store.UpdateTaskHistory(ctx, func(items []models.HistoryItem) []models.HistoryItem {
		return models.UpsertHistory(items, item)
	}); err != nil {
		o.log.Error("failed to update task history", "task", item.ID, "error", err)
	}
}

func (o *Orchestrator) journal(t session.EventType, data map[string]any) {
	if err := o.deps.Journal.Log(session.NewEvent(t, data)); err != nil {
		o.log.Debug("failed to write journal event", "type", t, "error", err)
	}
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// executorSink receives transcript callbacks from one executor. Callbacks
// arriving after the executor was superseded are dropped.
type executorSink struct {
	o   *Orchestrator
	gen uint64
}

func (s *executorSink) SaveTranscript(taskID string, api []models.APIMessage, ui []models.UIMessage) {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	if !s.o.isCurrentLocked(s.gen, taskID) {
		return
	}
	s.o.writeTranscriptLocked(taskID, api, ui)
}

func (s *executorSink) UpsertHistoryItem(item models.HistoryItem) {
	ctx := context.Background()

	s.o.mu.Lock()
	if !s.o.isCurrentLocked(s.gen, item.ID) {
		s.o.mu.Unlock()
		return
	}
	s.o.upsertHistoryLocked(ctx, item)
	s.o.mu.Unlock()

	s.o.PostState(ctx)
}

var _ Store = (*state.Store)(nil)
