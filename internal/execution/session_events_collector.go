package execution

import (
	"strings"
	"sync"

	copilot "github.com/github/copilot-sdk/go"
)

const sessionFailedUnknown = "session failed with unknown error"

// SessionEventsCollector gathers the assistant output of a single turn.
// Copilot delivers events from its own goroutine, so every method locks.
type SessionEventsCollector struct {
	onPartial func(text string)
	onTool    func(name string)

	mu            sync.Mutex
	messages      []string
	delta         strings.Builder
	errorMsg      string
	done          chan struct{}
	intentToolIDs map[string]bool
}

// NewSessionEventsCollector creates a collector. onPartial receives the
// streamed text so far; onTool receives the name of each tool the assistant
// runs. Either may be nil.
func NewSessionEventsCollector(onPartial func(string), onTool func(string)) *SessionEventsCollector {
	return &SessionEventsCollector{
		onPartial:     onPartial,
		onTool:        onTool,
		done:          make(chan struct{}),
		intentToolIDs: map[string]bool{},
	}
}

// Output returns the assistant text of the turn.
func (coll *SessionEventsCollector) Output() string {
	coll.mu.Lock()
	defer coll.mu.Unlock()
	return coll.outputLocked()
}

func (coll *SessionEventsCollector) outputLocked() string {
	parts := append([]string(nil), coll.messages...)
	if coll.delta.Len() > 0 {
		parts = append(parts, coll.delta.String())
	}
	return strings.Join(parts, "\n\n")
}

// ErrorMessage returns the session error, if any.
func (coll *SessionEventsCollector) ErrorMessage() string {
	coll.mu.Lock()
	defer coll.mu.Unlock()
	return coll.errorMsg
}

// Done is closed when the session goes idle or fails.
func (coll *SessionEventsCollector) Done() <-chan struct{} {
	return coll.done
}

// On is passed to [copilot.Session.On].
func (coll *SessionEventsCollector) On(event copilot.SessionEvent) {
	var partial, tool string

	coll.mu.Lock()
	switch event.Type {
	case copilot.AssistantMessageDelta:
		if event.Data.DeltaContent != nil {
			coll.delta.WriteString(*event.Data.DeltaContent)
			partial = coll.outputLocked()
		}

	case copilot.AssistantMessage:
		// The final message repeats whatever was streamed as deltas.
		coll.delta.Reset()
		if event.Data.Content != nil && *event.Data.Content != "" {
			coll.messages = append(coll.messages, *event.Data.Content)
		}

	case copilot.ToolExecutionStart:
		if event.Data.ToolName == nil {
			break
		}
		// report_intent is bookkeeping, not work the user asked for.
		if *event.Data.ToolName == "report_intent" {
			if event.Data.ToolCallID != nil {
				coll.intentToolIDs[*event.Data.ToolCallID] = true
			}
			break
		}
		tool = *event.Data.ToolName

	case copilot.ToolExecutionComplete:
		if event.Data.ToolCallID != nil {
			delete(coll.intentToolIDs, *event.Data.ToolCallID)
		}

	case copilot.SessionIdle, copilot.SessionError:
		if event.Type == copilot.SessionError {
			if event.Data.Message == nil || *event.Data.Message == "" {
				coll.errorMsg = sessionFailedUnknown
			} else {
				coll.errorMsg = *event.Data.Message
			}
		}

		select {
		case <-coll.done:
		default:
			close(coll.done)
		}
	}
	coll.mu.Unlock()

	if partial != "" && coll.onPartial != nil {
		coll.onPartial(partial)
	}
	if tool != "" && coll.onTool != nil {
		coll.onTool(tool)
	}
}
