package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/xamun-dev/xamun/internal/execution"
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/state"
)

var (
	// ErrUnknownCommand is returned by Dispatch for unrecognized command types.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownView is returned by ShowView for views it cannot switch to.
	ErrUnknownView = errors.New("unknown view")
)

// Dispatch runs one inbound command. The result is non-nil only for
// commands that produce a value, such as exports.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd models.Command) (any, error) {
	switch cmd.Type {
	case models.CmdLaunch:
		o.Launch(ctx)
	case models.CmdNewTask:
		return nil, o.StartNewTask(ctx, cmd.Text, cmd.Images)
	case models.CmdUpdateConfiguration:
		return nil, o.UpdateConfiguration(ctx, cmd.Config)
	case models.CmdUpdateCustomInstructions:
		return nil, o.UpdateCustomInstructions(ctx, cmd.Text)
	case models.CmdSetAlwaysAllowReadOnly:
		return nil, o.SetAlwaysAllowReadOnly(ctx, boolValue(cmd.Bool))
	case models.CmdSetDebugMode:
		return nil, o.SetDebugMode(ctx, boolValue(cmd.Bool))
	case models.CmdAskResponse:
		o.HandleAskResponse(cmd.AskResponse, cmd.Text, cmd.Images)
	case models.CmdClearTask:
		o.ClearActiveTask()
		o.PostState(ctx)
	case models.CmdCancelTask:
		return nil, o.CancelActiveTask(ctx)
	case models.CmdAnnouncementShown:
		return nil, o.AnnouncementShown(ctx)
	case models.CmdSelectImages:
		return o.SelectImages(), nil
	case models.CmdExportCurrentTask:
		return o.ExportCurrentTask(ctx)
	case models.CmdShowTaskWithID:
		return nil, o.ShowTask(ctx, cmd.TaskID())
	case models.CmdDeleteTaskWithID:
		return nil, o.DeleteTask(ctx, cmd.TaskID())
	case models.CmdExportTaskWithID:
		return o.ExportTask(ctx, cmd.TaskID())
	case models.CmdResetState:
		return nil, o.ResetAll(ctx)
	case models.CmdRequestLocalModels:
		return o.RequestLocalModels(ctx, cmd.LocalRegistryURL()), nil
	case models.CmdRefreshCatalog:
		o.RefreshCatalog()
	case models.CmdOpenImage:
		o.openWith(cmd.Target(), func(d Desktop) func(string) error { return d.OpenImage })
	case models.CmdOpenFile:
		o.openWith(cmd.Target(), func(d Desktop) func(string) error { return d.OpenFile })
	case models.CmdOpenMention:
		o.openWith(cmd.Target(), func(d Desktop) func(string) error { return d.OpenMention })
	case models.CmdOpenRouterCallback:
		return nil, o.HandleOpenRouterCallback(ctx, cmd.Text)
	case models.CmdShowView:
		return nil, o.ShowView(cmd.Text)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil, nil
}

// UpdateConfiguration stores the keys present in values and pushes the new
// configuration to the active executor. Keys outside the configuration
// schema are ignored. An empty or null value deletes the key.
func (o *Orchestrator) UpdateConfiguration(ctx context.Context, values map[string]any) error {
	var cfg models.APIConfiguration
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(values); err != nil {
		return fmt.Errorf("decoding configuration: %w", err)
	}

	for key := range values {
		field, ok := models.LookupConfigField(key)
		if !ok {
			o.log.Warn("ignoring unknown configuration key", "key", key)
			continue
		}
		if err := o.deps.Store.SetConfigValue(ctx, key, field.Get(&cfg)); err != nil {
			return fmt.Errorf("storing %s: %w", key, err)
		}
	}

	stored, err := o.deps.Store.GetAPIConfiguration(ctx)
	if err != nil {
		return err
	}
	if exec := o.activeExecutor(); exec != nil {
		exec.SetAPIConfiguration(stored)
	}
	o.PostState(ctx)
	return nil
}

// Launch greets a presentation layer that has just attached. The theme is
// only sent when one is configured.
func (o *Orchestrator) Launch(ctx context.Context) {
	o.deps.Notifier.Notify(models.OutAction, models.ActionPayload{Action: models.ActionBecameVisible})
	if o.cfg.Theme != "" {
		o.deps.Notifier.Notify(models.OutThemeChanged, models.ThemePayload{Theme: o.cfg.Theme})
	}
	o.PostState(ctx)
}

// ShowView switches the presentation layer to the chat, settings or history
// view.
func (o *Orchestrator) ShowView(view string) error {
	action, ok := models.ViewActions[view]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	o.deps.Notifier.Notify(models.OutAction, models.ActionPayload{Action: action})
	return nil
}

// HandleOpenRouterCallback exchanges an OpenRouter authorization code for a
// key and switches the configuration to OpenRouter with it.
func (o *Orchestrator) HandleOpenRouterCallback(ctx context.Context, code string) error {
	if o.deps.OpenRouter == nil {
		return errors.New("openrouter sign-in is not configured")
	}
	key, err := o.deps.OpenRouter.Exchange(ctx, code)
	if err != nil {
		o.log.Error("failed to exchange openrouter code", "error", err)
		return fmt.Errorf("exchanging openrouter code: %w", err)
	}
	return o.UpdateConfiguration(ctx, map[string]any{
		"apiProvider":      "openrouter",
		"openRouterApiKey": key,
	})
}

// UpdateCustomInstructions stores text, clearing it when empty.
func (o *Orchestrator) UpdateCustomInstructions(ctx context.Context, text string) error {
	var value any
	if text != "" {
		value = text
	}
	if err := o.deps.Store.UpdateGlobal(ctx, state.KeyCustomInstructions, value); err != nil {
		return err
	}
	if exec := o.activeExecutor(); exec != nil {
		exec.SetCustomInstructions(text)
	}
	o.PostState(ctx)
	return nil
}

func (o *Orchestrator) SetAlwaysAllowReadOnly(ctx context.Context, allow bool) error {
	if err := o.deps.Store.UpdateGlobal(ctx, state.KeyAlwaysAllowReadOnly, allow); err != nil {
		return err
	}
	if exec := o.activeExecutor(); exec != nil {
		exec.SetAlwaysAllowReadOnly(allow)
	}
	o.PostState(ctx)
	return nil
}

func (o *Orchestrator) SetDebugMode(ctx context.Context, debug bool) error {
	if err := o.deps.Store.UpdateGlobal(ctx, state.KeyIsDebugMode, debug); err != nil {
		return err
	}
	o.PostState(ctx)
	return nil
}

// AnnouncementShown records that the current announcement has been seen.
func (o *Orchestrator) AnnouncementShown(ctx context.Context) error {
	if err := o.deps.Store.UpdateGlobal(ctx, state.KeyLastShownAnnouncementID, o.cfg.AnnouncementID); err != nil {
		return err
	}
	o.PostState(ctx)
	return nil
}

// SelectImages asks the desktop for image files and broadcasts the choice.
func (o *Orchestrator) SelectImages() []string {
	paths := []string{}
	if o.deps.Desktop != nil {
		paths = o.deps.Desktop.SelectImages()
	}
	o.deps.Notifier.Notify(models.OutSelectedImages, models.SelectedImagesPayload{Paths: paths})
	return paths
}

func (o *Orchestrator) openWith(target string, pick func(Desktop) func(string) error) {
	if o.deps.Desktop == nil {
		return
	}
	if err := pick(o.deps.Desktop)(target); err != nil {
		o.log.Warn("failed to open", "target", target, "error", err)
	}
}

func (o *Orchestrator) activeExecutor() execution.TaskExecutor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
