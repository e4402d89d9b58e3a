package execution

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xamun-dev/xamun/internal/models"
)

type askReply struct {
	response models.AskResponse
	text     string
	images   []string
}

// taskState is the transcript and control plumbing shared by every executor.
type taskState struct {
	logger *slog.Logger
	sink   Sink

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	aborted   chan struct{}
	replies   chan askReply

	mu                  sync.Mutex
	item                models.HistoryItem
	api                 []models.APIMessage
	ui                  []models.UIMessage
	cfg                 models.APIConfiguration
	customInstructions  string
	alwaysAllowReadOnly bool
	lastTs              int64
}

func newTaskState(opts Options) *taskState {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &taskState{
		logger:              logger.With("task", opts.Task.ID),
		sink:                opts.Sink,
		ctx:                 ctx,
		cancel:              cancel,
		aborted:             make(chan struct{}),
		replies:             make(chan askReply, 1),
		item:                opts.Task,
		api:                 slices.Clone(opts.APIHistory),
		ui:                  slices.Clone(opts.UIMessages),
		cfg:                 opts.APIConfiguration,
		customInstructions:  opts.CustomInstructions,
		alwaysAllowReadOnly: opts.AlwaysAllowReadOnly,
	}
}

func (t *taskState) TaskID() string {
	return t.item.ID
}

func (t *taskState) HistoryItem() models.HistoryItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.item
}

func (t *taskState) Abort() {
	t.cancel()
	// An executor that never started has nothing to unwind.
	t.startOnce.Do(func() { close(t.aborted) })
}

func (t *taskState) Aborted() <-chan struct{} {
	return t.aborted
}

// HandleAskResponse delivers a reply to a pending ask. A reply that arrives
// while another is still unread replaces it.
func (t *taskState) HandleAskResponse(resp models.AskResponse, text string, images []string) {
	reply := askReply{response: resp, text: text, images: images}
	for {
		select {
		case t.replies <- reply:
			return
		default:
		}
		select {
		case <-t.replies:
		default:
		}
	}
}

func (t *taskState) SetAPIConfiguration(cfg models.APIConfiguration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

func (t *taskState) SetCustomInstructions(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.customInstructions = text
}

func (t *taskState) SetAlwaysAllowReadOnly(allow bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alwaysAllowReadOnly = allow
}

func (t *taskState) UIMessages() []models.UIMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.ui)
}

func (t *taskState) settings() (models.APIConfiguration, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg, t.customInstructions, t.alwaysAllowReadOnly
}

// start runs fn on a new goroutine, at most once, and closes Aborted when it
// returns.
func (t *taskState) start(fn func()) {
	t.startOnce.Do(func() {
		go func() {
			defer close(t.aborted)
			defer t.cancel()
			fn()
		}()
	})
}

// now returns a millisecond timestamp strictly greater than the previous one
// so UI messages keep a stable order. Callers hold t.mu.
func (t *taskState) now() int64 {
	ts := time.Now().UnixMilli()
	if ts <= t.lastTs {
		ts = t.lastTs + 1
	}
	t.lastTs = ts
	return ts
}

func (t *taskState) say(kind, text string, images []string) {
	t.mu.Lock()
	t.dropPartialLocked()
	t.ui = append(t.ui, models.UIMessage{
		Ts:     t.now(),
		Type:   models.UIMessageSay,
		Say:    kind,
		Text:   text,
		Images: images,
	})
	t.mu.Unlock()
	t.persist()
}

// sayPartial replaces the trailing partial text message with text.
func (t *taskState) sayPartial(text string) {
	t.mu.Lock()
	if n := len(t.ui); n > 0 && t.ui[n-1].Partial {
		t.ui[n-1].Text = text
	} else {
		t.ui = append(t.ui, models.UIMessage{
			Ts:      t.now(),
			Type:    models.UIMessageSay,
			Say:     models.SayText,
			Text:    text,
			Partial: true,
		})
	}
	t.mu.Unlock()
	t.persist()
}

func (t *taskState) dropPartialLocked() {
	if n := len(t.ui); n > 0 && t.ui[n-1].Partial {
		t.ui = t.ui[:n-1]
	}
}

func (t *taskState) appendAPI(msg models.APIMessage) {
	t.mu.Lock()
	t.api = append(t.api, msg)
	t.mu.Unlock()
}

func (t *taskState) apiHistory() []models.APIMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.api)
}

func (t *taskState) setSessionID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.item.SessionID = id
}

// ask posts a question and blocks until the user answers or the executor is
// aborted.
func (t *taskState) ask(kind, text string) (askReply, error) {
	t.mu.Lock()
	t.dropPartialLocked()
	t.ui = append(t.ui, models.UIMessage{
		Ts:   t.now(),
		Type: models.UIMessageAsk,
		Ask:  kind,
		Text: text,
	})
	t.mu.Unlock()
	t.persist()

	select {
	case reply := <-t.replies:
		return reply, nil
	case <-t.ctx.Done():
		return askReply{}, t.ctx.Err()
	}
}

// persist hands the transcript and the index entry to the sink. The sink is
// called without holding t.mu.
func (t *taskState) persist() {
	t.mu.Lock()
	item := t.item
	api := slices.Clone(t.api)
	ui := slices.Clone(t.ui)
	t.mu.Unlock()

	if t.ctx.Err() != nil {
		return
	}
	t.sink.SaveTranscript(item.ID, api, ui)
	t.sink.UpsertHistoryItem(item)
}

// nextPrompt resolves the user's reply to an ask into the next prompt.
// It returns ok=false when the user ended the task.
func (t *taskState) nextPrompt(reply askReply) (prompt string, images []string, ok bool) {
	if reply.response != models.AskResponseMessage {
		return "", nil, false
	}
	t.say(models.SayUser, reply.text, reply.images)
	return reply.text, reply.images, true
}

// resumePrompt is sent when the user resumes a task without typing anything.
const resumePrompt = "Continue the task from where it was interrupted."

// turnFunc sends one prompt to the provider and returns the assistant reply.
type turnFunc func(ctx context.Context, prompt string, images []string) (string, error)

// run drives the conversation until the executor is aborted. The initial user
// turn of a new task is expected to be in the seeded api history already.
func (t *taskState) run(prompt string, images []string, resume bool, turn turnFunc) {
	appendUser := false
	if resume {
		reply, err := t.ask(models.AskResumeTask, "")
		if err != nil {
			return
		}
		switch reply.response {
		case models.AskResponseMessage:
			t.say(models.SayUser, reply.text, reply.images)
			prompt, images = reply.text, reply.images
		case models.AskResponseYes:
			prompt, images = resumePrompt, nil
		default:
			<-t.ctx.Done()
			return
		}
		appendUser = true
	}

	for t.ctx.Err() == nil {
		if appendUser {
			t.appendAPI(models.NewTextMessage(models.RoleUser, prompt))
			appendUser = false
		}

		answer, err := turn(t.ctx, prompt, images)
		if t.ctx.Err() != nil {
			return
		}

		var reply askReply
		if err != nil {
			t.logger.Warn("provider request failed", "error", err)
			if reply, err = t.ask(models.AskAPIReqFailed, err.Error()); err != nil {
				return
			}
			if reply.response == models.AskResponseYes {
				continue
			}
		} else {
			t.appendAPI(models.NewTextMessage(models.RoleAssistant, answer))
			t.say(models.SayText, answer, nil)
			if reply, err = t.ask(models.AskCompletionResult, ""); err != nil {
				return
			}
		}

		next, nextImages, ok := t.nextPrompt(reply)
		if !ok {
			// The user ended the task; stay addressable until aborted.
			<-t.ctx.Done()
			return
		}
		prompt, images, appendUser = next, nextImages, true
	}
}
