package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/orchestrator"
)

type fakeHost struct {
	commands  []models.Command
	result    any
	err       error
	snapshot  models.StateSnapshot
	history   []models.HistoryItem
	tasks     map[string]orchestrator.TaskRecord
	publisher *Publisher
}

func (h *fakeHost) Dispatch(_ context.Context, cmd models.Command) (any, error) {
	h.commands = append(h.commands, cmd)
	if h.publisher != nil {
		h.publisher.Notify(models.OutStateSnapshot, h.snapshot)
	}
	return h.result, h.err
}

func (h *fakeHost) Snapshot(context.Context) (models.StateSnapshot, error) {
	return h.snapshot, nil
}

func (h *fakeHost) History(context.Context) ([]models.HistoryItem, error) {
	return h.history, nil
}

func (h *fakeHost) GetTaskWithID(_ context.Context, id string) (orchestrator.TaskRecord, error) {
	rec, ok := h.tasks[id]
	if !ok {
		return orchestrator.TaskRecord{}, fmt.Errorf("%w: %s", orchestrator.ErrTaskNotFound, id)
	}
	return rec, nil
}

// rpcCall sends one request and decodes the response.
func rpcCall(t *testing.T, server *Server, method string, params any) Response {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	reqLine := fmt.Sprintf(`{"jsonrpc":"2.0","method":"%s","params":%s,"id":1}`, method, string(paramsJSON))
	var out bytes.Buffer
	server.ServeStdio(strings.NewReader(reqLine+"\n"), &out)

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return resp
}

func newTestServer(host *fakeHost) *Server {
	registry := NewMethodRegistry()
	RegisterHandlers(registry, host)
	return NewServer(registry, nil)
}

func TestHandler_NewTask(t *testing.T) {
	host := &fakeHost{}
	resp := rpcCall(t, newTestServer(host), "newTask", map[string]any{"text": "hello", "images": []string{"a.png"}})

	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{}, resp.Result)
	require.Len(t, host.commands, 1)
	assert.Equal(t, models.Command{Type: models.CmdNewTask, Text: "hello", Images: []string{"a.png"}}, host.commands[0])
}

func TestHandler_TypeComesFromMethod(t *testing.T) {
	host := &fakeHost{}
	resp := rpcCall(t, newTestServer(host), "clearTask", map[string]any{"type": "resetState"})

	require.Nil(t, resp.Error)
	require.Len(t, host.commands, 1)
	assert.Equal(t, models.CmdClearTask, host.commands[0].Type)
}

func TestHandler_NullParams(t *testing.T) {
	host := &fakeHost{}
	resp := rpcCall(t, newTestServer(host), "launch", nil)

	require.Nil(t, resp.Error)
	require.Len(t, host.commands, 1)
}

func TestHandler_InvalidParams(t *testing.T) {
	host := &fakeHost{}
	server := newTestServer(host)

	resp := rpcCall(t, server, "newTask", "not an object")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = rpcCall(t, server, "deleteTaskWithId", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = rpcCall(t, server, "askResponse", map[string]any{"text": "hi"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	assert.Empty(t, host.commands)
}

func TestHandler_TaskNotFound(t *testing.T) {
	host := &fakeHost{err: fmt.Errorf("looking up: %w", orchestrator.ErrTaskNotFound)}
	resp := rpcCall(t, newTestServer(host), "showTaskWithId", map[string]any{"text": "abc"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTaskNotFound, resp.Error.Code)
	assert.Equal(t, "abc", resp.Error.Data)
}

func TestHandler_CommandFailed(t *testing.T) {
	host := &fakeHost{err: errors.New("disk full")}
	resp := rpcCall(t, newTestServer(host), "updateCustomInstructions", map[string]any{"text": "x"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeCommandFailed, resp.Error.Code)
	assert.Equal(t, "disk full", resp.Error.Data)
}

func TestHandler_ExportResult(t *testing.T) {
	host := &fakeHost{result: "/tmp/xamun_task.md"}
	resp := rpcCall(t, newTestServer(host), "exportTaskWithId", map[string]any{"text": "abc"})

	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"path": "/tmp/xamun_task.md"}, resp.Result)
}

func TestHandler_RequestLocalModels(t *testing.T) {
	host := &fakeHost{result: []string{"llama3", "qwen"}}
	resp := rpcCall(t, newTestServer(host), "requestLocalModels", map[string]any{"text": "http://localhost:11434"})

	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"names": []any{"llama3", "qwen"}}, resp.Result)
	assert.Equal(t, "http://localhost:11434", host.commands[0].Text)
}

func TestHandler_PayloadFieldNames(t *testing.T) {
	tests := []struct {
		method string
		params map[string]any
		want   models.Command
	}{
		{"showTaskWithId", map[string]any{"id": "t1"}, models.Command{Type: models.CmdShowTaskWithID, ID: "t1"}},
		{"deleteTaskWithId", map[string]any{"id": "t1"}, models.Command{Type: models.CmdDeleteTaskWithID, ID: "t1"}},
		{"exportTaskWithId", map[string]any{"id": "t1"}, models.Command{Type: models.CmdExportTaskWithID, ID: "t1"}},
		{"requestLocalModels", map[string]any{"baseUrl": "http://h:1"}, models.Command{Type: models.CmdRequestLocalModels, BaseURL: "http://h:1"}},
		{"openImage", map[string]any{"path": "/a.png"}, models.Command{Type: models.CmdOpenImage, Path: "/a.png"}},
		{"openFile", map[string]any{"path": "/x"}, models.Command{Type: models.CmdOpenFile, Path: "/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			host := &fakeHost{}
			resp := rpcCall(t, newTestServer(host), tt.method, tt.params)

			require.Nil(t, resp.Error)
			require.Len(t, host.commands, 1)
			assert.Equal(t, tt.want, host.commands[0])
		})
	}
}

func TestHandler_TaskNotFoundReportsID(t *testing.T) {
	host := &fakeHost{err: orchestrator.ErrTaskNotFound}
	resp := rpcCall(t, newTestServer(host), "deleteTaskWithId", map[string]any{"id": "t9"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTaskNotFound, resp.Error.Code)
	assert.Equal(t, "t9", resp.Error.Data)
}

func TestHandler_OpenRouterCallback(t *testing.T) {
	host := &fakeHost{}
	server := newTestServer(host)

	resp := rpcCall(t, server, "openRouterCallback", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Empty(t, host.commands)

	resp = rpcCall(t, server, "openRouterCallback", map[string]any{"text": "code-1"})
	require.Nil(t, resp.Error)
	assert.Equal(t, models.Command{Type: models.CmdOpenRouterCallback, Text: "code-1"}, host.commands[0])
}

func TestHandler_ShowView(t *testing.T) {
	host := &fakeHost{}
	server := newTestServer(host)

	resp := rpcCall(t, server, "showView", map[string]any{"text": "dashboard"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Empty(t, host.commands)

	resp = rpcCall(t, server, "showView", map[string]any{"text": "history"})
	require.Nil(t, resp.Error)
	assert.Equal(t, models.Command{Type: models.CmdShowView, Text: "history"}, host.commands[0])
}

func TestHandler_UpdateConfiguration(t *testing.T) {
	host := &fakeHost{}
	resp := rpcCall(t, newTestServer(host), "updateConfiguration", map[string]any{
		"config": map[string]any{"apiProvider": "copilot"},
	})

	require.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"apiProvider": "copilot"}, host.commands[0].Config)
}

func TestHandler_GetState(t *testing.T) {
	host := &fakeHost{snapshot: models.StateSnapshot{Version: "1.0.0", CurrentTaskID: "t1"}}
	resp := rpcCall(t, newTestServer(host), MethodGetState, nil)

	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "1.0.0", result["version"])
	assert.Equal(t, "t1", result["currentTaskId"])
}

func TestHandler_GetHistory(t *testing.T) {
	host := &fakeHost{history: []models.HistoryItem{{ID: "b", Ts: 2, Task: "two"}, {ID: "a", Ts: 1, Task: "one"}}}
	resp := rpcCall(t, newTestServer(host), MethodGetHistory, nil)

	require.Nil(t, resp.Error)
	items := resp.Result.(map[string]any)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].(map[string]any)["id"])
}

func TestHandler_GetTask(t *testing.T) {
	host := &fakeHost{tasks: map[string]orchestrator.TaskRecord{
		"a": {
			Item:       models.HistoryItem{ID: "a", Ts: 1, Task: "one"},
			APIHistory: []models.APIMessage{models.NewTextMessage(models.RoleUser, "one")},
		},
	}}
	server := newTestServer(host)

	resp := rpcCall(t, server, MethodGetTask, GetTaskParams{ID: "a"})
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	assert.Equal(t, "one", result["item"].(map[string]any)["task"])
	assert.Len(t, result["apiHistory"], 1)

	resp = rpcCall(t, server, MethodGetTask, GetTaskParams{ID: "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTaskNotFound, resp.Error.Code)

	resp = rpcCall(t, server, MethodGetTask, GetTaskParams{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestAllMethodsRegistered(t *testing.T) {
	registry := NewMethodRegistry()
	RegisterHandlers(registry, &fakeHost{})

	for _, ct := range models.CommandTypes {
		assert.NotNil(t, registry.Lookup(string(ct)), "command %s should be registered", ct)
	}
	for _, m := range []string{MethodGetState, MethodGetHistory, MethodGetTask} {
		assert.NotNil(t, registry.Lookup(m), "method %s should be registered", m)
	}
	assert.Len(t, registry.Methods(), len(models.CommandTypes)+3)
}
