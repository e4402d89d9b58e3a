package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xamun-dev/xamun/internal/models"
)

// Provider names understood by Engines.
const (
	ProviderCopilot = "copilot"
	ProviderMock    = "mock"
)

// TaskExecutor drives one task's conversation with a model provider. It runs
// on its own goroutine from Start until it is aborted.
type TaskExecutor interface {
	// Start begins driving the conversation. Calls after the first, or after
	// Abort, do nothing.
	Start()

	// TaskID returns the id of the task being driven.
	TaskID() string

	// HistoryItem returns the task's index entry, including the provider
	// session id once one is known.
	HistoryItem() models.HistoryItem

	// Abort asks the executor to stop. It does not wait.
	Abort()

	// Aborted is closed once the executor has fully unwound.
	Aborted() <-chan struct{}

	// HandleAskResponse answers the question the executor is waiting on.
	HandleAskResponse(resp models.AskResponse, text string, images []string)

	SetAPIConfiguration(cfg models.APIConfiguration)
	SetCustomInstructions(text string)
	SetAlwaysAllowReadOnly(allow bool)

	// UIMessages returns a copy of the current UI transcript.
	UIMessages() []models.UIMessage
}

// Sink receives transcript mutations from an executor. Implementations must
// ignore calls for a task that is no longer active.
type Sink interface {
	SaveTranscript(taskID string, api []models.APIMessage, ui []models.UIMessage)
	UpsertHistoryItem(item models.HistoryItem)
}

// Options describe the task an executor is built for.
type Options struct {
	// Task is the task's history entry. Its ID and Ts are kept on resume.
	Task models.HistoryItem

	// Resume selects resume mode. The executor then waits for the user
	// before continuing the seeded transcript.
	Resume bool

	// Prompt and Images start a new task.
	Prompt string
	Images []string

	// APIHistory and UIMessages seed the transcript.
	APIHistory []models.APIMessage
	UIMessages []models.UIMessage

	APIConfiguration    models.APIConfiguration
	CustomInstructions  string
	AlwaysAllowReadOnly bool

	Sink   Sink
	Logger *slog.Logger
}

// Backend builds executors for one provider.
type Backend interface {
	NewExecutor(ctx context.Context, opts Options) (TaskExecutor, error)

	// Shutdown releases resources shared by the backend's executors.
	Shutdown(ctx context.Context) error
}

// Engines selects a backend by the configured API provider.
type Engines struct {
	defaultProvider string
	backends        map[string]Backend
}

// NewEngines creates an Engines. defaultProvider is used when the API
// configuration does not name a provider.
func NewEngines(defaultProvider string, backends map[string]Backend) *Engines {
	return &Engines{defaultProvider: defaultProvider, backends: backends}
}

// ErrUnsupportedProvider is returned for providers without a backend.
var ErrUnsupportedProvider = errors.New("unsupported api provider")

// NewExecutor builds an executor for the provider named in the options'
// configuration.
func (e *Engines) NewExecutor(ctx context.Context, opts Options) (TaskExecutor, error) {
	provider := opts.APIConfiguration.APIProvider
	if provider == "" {
		provider = e.defaultProvider
	}

	backend, ok := e.backends[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	if opts.Sink == nil {
		return nil, errors.New("executor sink is required")
	}
	if !opts.Resume && opts.Prompt == "" && len(opts.Images) == 0 {
		return nil, errors.New("a new task needs a prompt")
	}
	return backend.NewExecutor(ctx, opts)
}

// Shutdown shuts every backend down.
func (e *Engines) Shutdown(ctx context.Context) error {
	var errs []error
	for name, b := range e.backends {
		if err := b.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
