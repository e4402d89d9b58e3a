package jsonrpc

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xamun-dev/xamun/internal/models"
)

// blockingWriter blocks every Write until released.
type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	buf     bytes.Buffer
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func notificationsIn(t *testing.T, out string) []Notification {
	t.Helper()
	var got []Notification
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var msg map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		if _, isResponse := msg["id"]; isResponse {
			continue
		}
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(line), &n))
		got = append(got, n)
	}
	return got
}

func TestPublisher_DeliversToAttachedTransports(t *testing.T) {
	p := NewPublisher(0, nil)

	var a, b bytes.Buffer
	detachA := p.Attach(NewTransport(strings.NewReader(""), &a))
	detachB := p.Attach(NewTransport(strings.NewReader(""), &b))

	p.Notify(models.OutAction, models.ActionPayload{Action: models.ActionChatButtonClicked})
	detachA()
	detachB()

	for _, out := range []string{a.String(), b.String()} {
		got := notificationsIn(t, out)
		require.Len(t, got, 1)
		assert.Equal(t, "action", got[0].Method)
		assert.Equal(t, map[string]any{"action": "chatButtonClicked"}, got[0].Params)
	}
}

func TestPublisher_ReplaysStateAndCatalogOnAttach(t *testing.T) {
	p := NewPublisher(0, nil)
	p.Notify(models.OutCatalog, models.CatalogPayload{Entries: models.Catalog{}})
	p.Notify(models.OutStateSnapshot, models.StateSnapshot{Version: "1"})
	p.Notify(models.OutStateSnapshot, models.StateSnapshot{Version: "2"})
	p.Notify(models.OutAction, models.ActionPayload{Action: models.ActionChatButtonClicked})

	var out bytes.Buffer
	p.Attach(NewTransport(strings.NewReader(""), &out))()

	got := notificationsIn(t, out.String())
	require.Len(t, got, 2)
	methods := []string{got[0].Method, got[1].Method}
	assert.ElementsMatch(t, []string{"stateSnapshot", "catalog"}, methods)
	for _, n := range got {
		if n.Method == "stateSnapshot" {
			assert.Equal(t, "2", n.Params.(map[string]any)["version"])
		}
	}
}

func TestPublisher_NotifyNeverBlocks(t *testing.T) {
	p := NewPublisher(1, nil)
	w := &blockingWriter{release: make(chan struct{})}
	detach := p.Attach(NewTransport(strings.NewReader(""), w))

	for range 50 {
		p.Notify(models.OutAction, models.ActionPayload{Action: models.ActionChatButtonClicked})
	}

	close(w.release)
	detach()

	w.mu.Lock()
	defer w.mu.Unlock()
	got := notificationsIn(t, w.buf.String())
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), 50)
}

func TestPublisher_DetachIsIdempotent(t *testing.T) {
	p := NewPublisher(0, nil)
	detach := p.Attach(NewTransport(strings.NewReader(""), io.Discard))
	detach()
	detach()
	p.Notify(models.OutAction, models.ActionPayload{})
}

func TestServer_WithPublisherStreamsNotifications(t *testing.T) {
	p := NewPublisher(0, nil)
	host := &fakeHost{publisher: p, snapshot: models.StateSnapshot{Version: "9"}}
	server := newTestServer(host).WithPublisher(p)

	var out bytes.Buffer
	server.ServeStdio(strings.NewReader(`{"jsonrpc":"2.0","method":"launch","id":1}`+"\n"), &out)

	resps := 0
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if strings.Contains(line, `"id":1`) {
			resps++
		}
	}
	assert.Equal(t, 1, resps)

	got := notificationsIn(t, out.String())
	require.Len(t, got, 1)
	assert.Equal(t, "stateSnapshot", got[0].Method)
}
