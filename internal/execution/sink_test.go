package execution

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xamun-dev/xamun/internal/models"
)

type recordingSink struct {
	mu    sync.Mutex
	api   []models.APIMessage
	ui    []models.UIMessage
	items []models.HistoryItem
	saves int
}

func (s *recordingSink) SaveTranscript(taskID string, api []models.APIMessage, ui []models.UIMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.api, s.ui = api, ui
	s.saves++
}

func (s *recordingSink) UpsertHistoryItem(item models.HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
}

func (s *recordingSink) transcript() ([]models.APIMessage, []models.UIMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.api), slices.Clone(s.ui)
}

// waitForAsk blocks until the last UI message is an ask of the given kind.
func (s *recordingSink) waitForAsk(t *testing.T, kind string) models.UIMessage {
	t.Helper()
	var last models.UIMessage
	require.Eventually(t, func() bool {
		_, ui := s.transcript()
		if len(ui) == 0 {
			return false
		}
		last = ui[len(ui)-1]
		return last.Type == models.UIMessageAsk && last.Ask == kind
	}, 5*time.Second, 5*time.Millisecond, "waiting for ask %q", kind)
	return last
}

func waitAborted(t *testing.T, e TaskExecutor) {
	t.Helper()
	select {
	case <-e.Aborted():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "executor did not unwind")
	}
}

func newTaskOptions(sink Sink) Options {
	return Options{
		Task:       models.HistoryItem{ID: "task-1", Ts: 1, Task: "hello"},
		Prompt:     "hello",
		APIHistory: []models.APIMessage{models.NewTextMessage(models.RoleUser, "hello")},
		UIMessages: []models.UIMessage{{Ts: 1, Type: models.UIMessageSay, Say: models.SayTask, Text: "hello"}},
		Sink:       sink,
	}
}
