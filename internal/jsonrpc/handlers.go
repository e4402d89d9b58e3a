package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/orchestrator"
)

// Query methods, served alongside one method per inbound command type.
const (
	MethodGetState   = "getState"
	MethodGetHistory = "getHistory"
	MethodGetTask    = "getTask"
)

// Host is the part of the orchestrator the handlers drive.
type Host interface {
	Dispatch(ctx context.Context, cmd models.Command) (any, error)
	Snapshot(ctx context.Context) (models.StateSnapshot, error)
	History(ctx context.Context) ([]models.HistoryItem, error)
	GetTaskWithID(ctx context.Context, id string) (orchestrator.TaskRecord, error)
}

// Ack is the result of a command that produces no value.
type Ack struct{}

// RegisterHandlers registers a method for every inbound command type plus
// the query methods.
func RegisterHandlers(registry *MethodRegistry, host Host) {
	for _, ct := range models.CommandTypes {
		registry.Register(string(ct), commandHandler(host, ct))
	}
	registry.Register(MethodGetState, func(ctx context.Context, _ json.RawMessage) (any, *Error) {
		snap, err := host.Snapshot(ctx)
		if err != nil {
			return nil, ErrInternalError(err.Error())
		}
		return snap, nil
	})
	registry.Register(MethodGetHistory, func(ctx context.Context, _ json.RawMessage) (any, *Error) {
		items, err := host.History(ctx)
		if err != nil {
			return nil, ErrInternalError(err.Error())
		}
		return &HistoryResult{Items: items}, nil
	})
	registry.Register(MethodGetTask, func(ctx context.Context, params json.RawMessage) (any, *Error) {
		var p GetTaskParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrInvalidParams("id is required")
		}
		rec, err := host.GetTaskWithID(ctx, p.ID)
		if err != nil {
			return nil, toRPCError(err, p.ID)
		}
		return &GetTaskResult{Item: rec.Item, APIHistory: rec.APIHistory}, nil
	})
}

// --- getHistory ---

type HistoryResult struct {
	Items []models.HistoryItem `json:"items"`
}

// --- getTask ---

type GetTaskParams struct {
	ID string `json:"id"`
}

type GetTaskResult struct {
	Item       models.HistoryItem  `json:"item"`
	APIHistory []models.APIMessage `json:"apiHistory"`
}

// --- commands ---

// ExportResult is returned by the export commands.
type ExportResult struct {
	Path string `json:"path,omitempty"`
}

// commandsNeedingID take a task id in id, or in text for older clients.
var commandsNeedingID = map[models.CommandType]bool{
	models.CmdShowTaskWithID:   true,
	models.CmdDeleteTaskWithID: true,
	models.CmdExportTaskWithID: true,
}

func commandHandler(host Host, ct models.CommandType) Handler {
	return func(ctx context.Context, params json.RawMessage) (any, *Error) {
		var cmd models.Command
		if err := decodeParams(params, &cmd); err != nil {
			return nil, err
		}
		cmd.Type = ct

		if commandsNeedingID[ct] && cmd.TaskID() == "" {
			return nil, ErrInvalidParams("id is required")
		}
		if ct == models.CmdOpenRouterCallback && cmd.Text == "" {
			return nil, ErrInvalidParams("text must carry the authorization code")
		}
		if ct == models.CmdShowView {
			if _, ok := models.ViewActions[cmd.Text]; !ok {
				return nil, ErrInvalidParams("text must name a view: chat, settings or history")
			}
		}
		if ct == models.CmdAskResponse && cmd.AskResponse == "" {
			return nil, ErrInvalidParams("askResponse is required")
		}

		result, err := host.Dispatch(ctx, cmd)
		if err != nil {
			return nil, toRPCError(err, cmd.TaskID())
		}

		switch ct {
		case models.CmdExportCurrentTask, models.CmdExportTaskWithID:
			path, _ := result.(string)
			return &ExportResult{Path: path}, nil
		case models.CmdSelectImages:
			paths, _ := result.([]string)
			return &models.SelectedImagesPayload{Paths: paths}, nil
		case models.CmdRequestLocalModels:
			names, _ := result.([]string)
			return &models.LocalModelsPayload{Names: names}, nil
		}
		return Ack{}, nil
	}
}

func decodeParams(params json.RawMessage, dst any) *Error {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return ErrInvalidParams(err.Error())
	}
	return nil
}

func toRPCError(err error, id string) *Error {
	switch {
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		return ErrTaskNotFound(id)
	case errors.Is(err, orchestrator.ErrUnknownCommand):
		return ErrMethodNotFound(err.Error())
	default:
		return ErrCommandFailed(err.Error())
	}
}
