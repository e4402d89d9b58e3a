package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/utils"
)

// Permission kinds the copilot CLI reports for read-only tools.
var readOnlyPermissionKinds = map[copilot.PermissionRequestKind]bool{
	copilot.Read: true,
	copilot.URL:  true,
}

// CopilotBackend runs tasks through the GitHub Copilot SDK. All executors
// share one copilot client.
type CopilotBackend struct {
	defaultModelID string
	workingDir     string
	logger         *slog.Logger

	client copilotClient

	startOnce sync.Once
	startErr  error
}

// CopilotBackendOptions configure a CopilotBackend.
type CopilotBackendOptions struct {
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient

	// WorkingDirectory is the directory sessions operate in.
	WorkingDirectory string

	Logger *slog.Logger
}

// NewCopilotBackend creates a backend.
//   - defaultModelID - used when the API configuration names no model. Can be
//     blank, which lets the copilot CLI pick its own fallback model.
func NewCopilotBackend(defaultModelID string, options *CopilotBackendOptions) *CopilotBackend {
	copilotOptions := &copilot.ClientOptions{
		LogLevel:  "error",
		AutoStart: copilot.Bool(false),
	}

	if options == nil {
		options = &CopilotBackendOptions{}
	}

	var client copilotClient
	if options.NewCopilotClient == nil {
		client = newCopilotClient(copilotOptions)
	} else {
		client = options.NewCopilotClient(copilotOptions)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CopilotBackend{
		defaultModelID: defaultModelID,
		workingDir:     options.WorkingDirectory,
		logger:         logger,
		client:         client,
	}
}

// CopilotExecutor is a task driven by a copilot session.
type CopilotExecutor struct {
	*taskState

	session copilotSession
	opts    Options

	// seed is prepended to the first prompt of a session that could not be
	// resumed on the provider side.
	seed string
}

// NewExecutor creates or resumes the task's copilot session. The conversation
// begins when the executor is started.
func (b *CopilotBackend) NewExecutor(ctx context.Context, opts Options) (TaskExecutor, error) {
	b.startOnce.Do(func() {
		// The client's autostart does not cope with concurrent first use.
		b.startErr = b.client.Start(ctx)
	})
	if b.startErr != nil {
		return nil, fmt.Errorf("copilot failed to start: %w", b.startErr)
	}

	if opts.Logger == nil {
		opts.Logger = b.logger
	}
	e := &CopilotExecutor{taskState: newTaskState(opts), opts: opts}

	modelID := b.defaultModelID
	if opts.APIConfiguration.APIModelID != "" {
		modelID = opts.APIConfiguration.APIModelID
	}

	var (
		session copilotSession
		err     error
	)
	if opts.Resume && opts.Task.SessionID != "" {
		session, err = b.client.ResumeSessionWithOptions(ctx, opts.Task.SessionID, &copilot.ResumeSessionConfig{
			Model:               modelID,
			OnPermissionRequest: e.onPermissionRequest,
			WorkingDirectory:    b.workingDir,
		})
		if err != nil {
			e.logger.Warn("resuming copilot session failed, starting a new one", "session", opts.Task.SessionID, "error", err)
		}
	}
	if session == nil {
		session, err = b.client.CreateSession(ctx, &copilot.SessionConfig{
			Model:               modelID,
			OnPermissionRequest: e.onPermissionRequest,
			WorkingDirectory:    b.workingDir,
		})
		if err != nil {
			e.cancel()
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		if opts.Resume {
			e.seed = transcriptPrompt(opts.APIHistory)
		}
	}

	e.session = session
	e.setSessionID(session.SessionID())
	return e, nil
}

// Start sends the first prompt, or asks to resume, on a new goroutine.
func (e *CopilotExecutor) Start() {
	e.start(func() {
		e.run(e.opts.Prompt, e.opts.Images, e.opts.Resume, e.turn)
	})
}

// Shutdown stops the shared copilot client.
func (b *CopilotBackend) Shutdown(ctx context.Context) error {
	if err := b.client.Stop(); err != nil {
		b.logger.Info("failed to stop client", "error", err)
		return err
	}
	return nil
}

func (e *CopilotExecutor) turn(ctx context.Context, prompt string, images []string) (string, error) {
	coll := NewSessionEventsCollector(e.sayPartial, func(name string) {
		e.say(models.SayTool, name, nil)
	})

	unsubscribe := e.session.On(coll.On)
	defer unsubscribe()

	unsubscribe = e.session.On(func(event copilot.SessionEvent) {
		utils.SessionToSlog(e.logger, e.TaskID(), event)
	})
	defer unsubscribe()

	_, err := e.session.SendAndWait(ctx, copilot.MessageOptions{
		Prompt: e.buildPrompt(prompt, images),
	})
	if err != nil {
		return "", err
	}
	if msg := coll.ErrorMessage(); msg != "" {
		return "", errors.New(msg)
	}
	return coll.Output(), nil
}

// buildPrompt adds custom instructions, attached image paths and, once, the
// seeded transcript to the user's text.
func (e *CopilotExecutor) buildPrompt(prompt string, images []string) string {
	_, instructions, _ := e.settings()

	var sb strings.Builder
	if e.seed != "" {
		sb.WriteString(e.seed)
		sb.WriteString("\n\n")
		e.seed = ""
	}
	if instructions != "" {
		sb.WriteString("Custom instructions:\n")
		sb.WriteString(instructions)
		sb.WriteString("\n\n")
	}
	sb.WriteString(prompt)
	if len(images) > 0 {
		sb.WriteString("\n\nAttached images:")
		for _, img := range images {
			sb.WriteString("\n- ")
			sb.WriteString(img)
		}
	}
	return sb.String()
}

// onPermissionRequest approves read-only tools when the user allows them
// and asks the user about everything else.
func (e *CopilotExecutor) onPermissionRequest(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	_, _, allowReadOnly := e.settings()
	if allowReadOnly && readOnlyPermissionKinds[request.Kind] {
		return copilot.PermissionRequestResult{Kind: copilot.PermissionRequestResultKindApproved}, nil
	}

	reply, err := e.ask(models.AskTool, string(request.Kind))
	if err != nil || reply.response != models.AskResponseYes {
		return copilot.PermissionRequestResult{Kind: copilot.PermissionRequestResultKindDeniedInteractivelyByUser}, nil
	}
	return copilot.PermissionRequestResult{Kind: copilot.PermissionRequestResultKindApproved}, nil
}

// transcriptPrompt renders a stored conversation so a fresh session can pick
// it up.
func transcriptPrompt(history []models.APIMessage) string {
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("This task was interrupted. The conversation so far:\n")
	for _, msg := range history {
		fmt.Fprintf(&sb, "\n[%s]\n%s\n", msg.Role, msg.Text())
	}
	return sb.String()
}
