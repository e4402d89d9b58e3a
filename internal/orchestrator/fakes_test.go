package orchestrator

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"
	"github.com/xamun-dev/xamun/internal/execution"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/state"
	"github.com/xamun-dev/xamun/internal/taskstore"
)

type notification struct {
	kind    models.OutboundType
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(kind models.OutboundType, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind, payload})
}

func (n *recordingNotifier) all(kind models.OutboundType) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []any
	for _, e := range n.events {
		if e.kind == kind {
			out = append(out, e.payload)
		}
	}
	return out
}

func (n *recordingNotifier) last(kind models.OutboundType) (any, bool) {
	got := n.all(kind)
	if len(got) == 0 {
		return nil, false
	}
	return got[len(got)-1], true
}

// fakeExecutor records what the orchestrator does to it. A stuck executor
// never acknowledges Abort.
type fakeExecutor struct {
	opts  execution.Options
	stuck bool

	mu        sync.Mutex
	started   int
	aborts    int
	abortOnce sync.Once
	aborted   chan struct{}
	cfg       models.APIConfiguration
	replies   []models.AskResponse
}

func newFakeExecutor(opts execution.Options, stuck bool) *fakeExecutor {
	return &fakeExecutor{opts: opts, stuck: stuck, aborted: make(chan struct{}), cfg: opts.APIConfiguration}
}

func (e *fakeExecutor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started++
}

func (e *fakeExecutor) TaskID() string                  { return e.opts.Task.ID }
func (e *fakeExecutor) HistoryItem() models.HistoryItem { return e.opts.Task }
func (e *fakeExecutor) Aborted() <-chan struct{}        { return e.aborted }

func (e *fakeExecutor) Abort() {
	e.mu.Lock()
	e.aborts++
	e.mu.Unlock()
	if !e.stuck {
		e.abortOnce.Do(func() { close(e.aborted) })
	}
}

func (e *fakeExecutor) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborts > 0
}

func (e *fakeExecutor) isStarted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started > 0
}

func (e *fakeExecutor) HandleAskResponse(resp models.AskResponse, text string, images []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replies = append(e.replies, resp)
}

func (e *fakeExecutor) SetAPIConfiguration(cfg models.APIConfiguration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *fakeExecutor) apiConfiguration() models.APIConfiguration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *fakeExecutor) SetCustomInstructions(string) {}
func (e *fakeExecutor) SetAlwaysAllowReadOnly(bool)  {}

func (e *fakeExecutor) UIMessages() []models.UIMessage {
	return slices.Clone(e.opts.UIMessages)
}

type fakeFactory struct {
	mu    sync.Mutex
	execs []*fakeExecutor
	err   error
	stuck bool
}

func (f *fakeFactory) NewExecutor(ctx context.Context, opts execution.Options) (execution.TaskExecutor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := newFakeExecutor(opts, f.stuck)
	f.execs = append(f.execs, e)
	return e, nil
}

func (f *fakeFactory) built() []*fakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.execs)
}

type fakeCatalog struct {
	mu       sync.Mutex
	cached   models.Catalog
	hasCache bool
	fresh    models.Catalog
	err      error
	refreshs int
}

func (c *fakeCatalog) Read() (models.Catalog, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached, c.hasCache
}

func (c *fakeCatalog) Refresh(ctx context.Context) (models.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshs++
	if c.err != nil {
		if c.hasCache {
			return c.cached, c.err
		}
		return nil, c.err
	}
	c.cached, c.hasCache = c.fresh, true
	return c.fresh, nil
}

type recordingDesktop struct {
	mu     sync.Mutex
	opened []string
}

func (d *recordingDesktop) record(kind, target string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, kind+":"+target)
	return nil
}

func (d *recordingDesktop) OpenFile(path string) error       { return d.record("file", path) }
func (d *recordingDesktop) OpenImage(image string) error     { return d.record("image", image) }
func (d *recordingDesktop) OpenMention(mention string) error { return d.record("mention", mention) }
func (d *recordingDesktop) SelectImages() []string           { return []string{} }

type recordingLocalModels struct {
	urls []string
}

func (r *recordingLocalModels) List(_ context.Context, baseURL string) []string {
	r.urls = append(r.urls, baseURL)
	return []string{}
}

type fakeKeyExchanger struct {
	key  string
	err  error
	code string
}

func (f *fakeKeyExchanger) Exchange(_ context.Context, code string) (string, error) {
	f.code = code
	return f.key, f.err
}

type testEnv struct {
	o        *Orchestrator
	store    *state.Store
	secrets  keyring.Keyring
	tasks    *taskstore.Store
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, executors ExecutorFactory, mutate ...func(*Config, *Deps)) *testEnv {
	t.Helper()

	secrets := keyring.NewArrayKeyring(nil)
	store, err := state.Open(":memory:", secrets)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() }) //nolint:errcheck

	env := &testEnv{
		store:    store,
		secrets:  secrets,
		tasks:    taskstore.New(t.TempDir()),
		notifier: &recordingNotifier{},
	}

	cfg := Config{Version: "1.2.3", AnnouncementID: "ann-2", Engine: "mock", AbortTimeout: DefaultAbortTimeout}
	deps := Deps{
		Store:     store,
		Tasks:     env.tasks,
		Executors: executors,
		Notifier:  env.notifier,
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}

	env.o, err = New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.o.Close(context.Background()) })
	return env
}

func (env *testEnv) history(t *testing.T) []models.HistoryItem {
	t.Helper()
	items, err := env.store.TaskHistory(context.Background())
	require.NoError(t, err)
	return items
}

var errBoom = errors.New("boom")
