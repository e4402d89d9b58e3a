package execution

//go:generate go run go.uber.org/mock/mockgen -source=copilot_client_wrappers.go -destination=copilot_client_mocks_test.go -package=execution

import (
	"context"

	copilot "github.com/github/copilot-sdk/go"
)

// copilotSession is the part of [*copilot.Session] an executor uses.
type copilotSession interface {
	// On maps to [copilot.Session.On]
	On(handler copilot.SessionEventHandler) func()

	// SendAndWait maps to [copilot.Session.SendAndWait]
	SendAndWait(ctx context.Context, options copilot.MessageOptions) (*copilot.SessionEvent, error)

	// SessionID returns [copilot.Session.SessionID]
	SessionID() string
}

// copilotClient is the part of [*copilot.Client] the backend uses.
type copilotClient interface {
	// Start maps to [copilot.Client.Start]
	Start(ctx context.Context) error

	// Stop maps to [copilot.Client.Stop]
	Stop() error

	// CreateSession maps to [copilot.Client.CreateSession]
	CreateSession(ctx context.Context, config *copilot.SessionConfig) (copilotSession, error)

	// ResumeSessionWithOptions maps to [copilot.Client.ResumeSessionWithOptions]
	ResumeSessionWithOptions(ctx context.Context, sessionID string, config *copilot.ResumeSessionConfig) (copilotSession, error)
}

func newCopilotClient(clientOptions *copilot.ClientOptions) copilotClient {
	return &clientAdapter{inner: copilot.NewClient(clientOptions)}
}

type clientAdapter struct {
	inner *copilot.Client
}

func (a *clientAdapter) Start(ctx context.Context) error { return a.inner.Start(ctx) }

func (a *clientAdapter) Stop() error { return a.inner.Stop() }

func (a *clientAdapter) CreateSession(ctx context.Context, config *copilot.SessionConfig) (copilotSession, error) {
	sess, err := a.inner.CreateSession(ctx, config)
	if err != nil {
		return nil, err
	}
	return sessionAdapter{inner: sess}, nil
}

func (a *clientAdapter) ResumeSessionWithOptions(ctx context.Context, sessionID string, config *copilot.ResumeSessionConfig) (copilotSession, error) {
	sess, err := a.inner.ResumeSessionWithOptions(ctx, sessionID, config)
	if err != nil {
		return nil, err
	}
	return sessionAdapter{inner: sess}, nil
}

// sessionAdapter exists because [copilot.Session.SessionID] is a field and
// cannot be part of an interface.
type sessionAdapter struct {
	inner *copilot.Session
}

func (a sessionAdapter) On(handler copilot.SessionEventHandler) func() {
	return a.inner.On(handler)
}

func (a sessionAdapter) SendAndWait(ctx context.Context, options copilot.MessageOptions) (*copilot.SessionEvent, error) {
	return a.inner.SendAndWait(ctx, options)
}

func (a sessionAdapter) SessionID() string { return a.inner.SessionID }
