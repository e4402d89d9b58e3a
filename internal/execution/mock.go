package execution

import (
	"context"
	"fmt"
	"time"
)

// MockBackend builds executors that answer every prompt locally. It is used
// by --engine mock and by tests that need a real executor without a provider.
type MockBackend struct {
	// Delay is how long each reply takes. Aborting interrupts it.
	Delay time.Duration
}

// NewMockBackend creates a mock backend.
func NewMockBackend(delay time.Duration) *MockBackend {
	return &MockBackend{Delay: delay}
}

// MockExecutor echoes prompts back as assistant replies.
type MockExecutor struct {
	*taskState
	delay time.Duration
	opts  Options
}

func (m *MockExecutor) Start() {
	m.start(func() {
		m.run(m.opts.Prompt, m.opts.Images, m.opts.Resume, m.reply)
	})
}

func (b *MockBackend) NewExecutor(ctx context.Context, opts Options) (TaskExecutor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &MockExecutor{
		taskState: newTaskState(opts),
		delay:     b.Delay,
		opts:      opts,
	}
	return m, nil
}

func (b *MockBackend) Shutdown(ctx context.Context) error {
	return nil
}

func (m *MockExecutor) reply(ctx context.Context, prompt string, images []string) (string, error) {
	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	output := fmt.Sprintf("Mock response for: %s", prompt)
	if len(images) > 0 {
		output += fmt.Sprintf("\nAnalyzed %d image(s)", len(images))
	}
	return output, nil
}
