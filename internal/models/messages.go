package models

// CommandType tags an inbound message from the presentation layer.
type CommandType string

const (
	CmdLaunch                   CommandType = "launch"
	CmdNewTask                  CommandType = "newTask"
	CmdUpdateConfiguration      CommandType = "updateConfiguration"
	CmdUpdateCustomInstructions CommandType = "updateCustomInstructions"
	CmdSetAlwaysAllowReadOnly   CommandType = "setAlwaysAllowReadOnly"
	CmdSetDebugMode             CommandType = "setDebugMode"
	CmdAskResponse              CommandType = "askResponse"
	CmdClearTask                CommandType = "clearTask"
	CmdAnnouncementShown        CommandType = "announcementShown"
	CmdSelectImages             CommandType = "selectImages"
	CmdExportCurrentTask        CommandType = "exportCurrentTask"
	CmdShowTaskWithID           CommandType = "showTaskWithId"
	CmdDeleteTaskWithID         CommandType = "deleteTaskWithId"
	CmdExportTaskWithID         CommandType = "exportTaskWithId"
	CmdResetState               CommandType = "resetState"
	CmdRequestLocalModels       CommandType = "requestLocalModels"
	CmdRefreshCatalog           CommandType = "refreshCatalog"
	CmdOpenImage                CommandType = "openImage"
	CmdOpenFile                 CommandType = "openFile"
	CmdOpenMention              CommandType = "openMention"
	CmdCancelTask               CommandType = "cancelTask"
	CmdOpenRouterCallback       CommandType = "openRouterCallback"
	CmdShowView                 CommandType = "showView"
)

// CommandTypes lists every inbound command in declaration order.
var CommandTypes = []CommandType{
	CmdLaunch, CmdNewTask, CmdUpdateConfiguration, CmdUpdateCustomInstructions,
	CmdSetAlwaysAllowReadOnly, CmdSetDebugMode, CmdAskResponse, CmdClearTask,
	CmdAnnouncementShown, CmdSelectImages, CmdExportCurrentTask, CmdShowTaskWithID,
	CmdDeleteTaskWithID, CmdExportTaskWithID, CmdResetState, CmdRequestLocalModels,
	CmdRefreshCatalog, CmdOpenImage, CmdOpenFile, CmdOpenMention, CmdCancelTask,
	CmdOpenRouterCallback, CmdShowView,
}

// AskResponse is the user's answer to an executor question.
type AskResponse string

const (
	AskResponseYes     AskResponse = "yesButtonClicked"
	AskResponseNo      AskResponse = "noButtonClicked"
	AskResponseMessage AskResponse = "messageResponse"
)

// Command is one inbound message. Which payload fields are meaningful
// depends on Type. Older clients send the task id, base url and path in
// Text, so the accessors below fall back to it.
type Command struct {
	Type        CommandType    `json:"type"`
	Text        string         `json:"text,omitempty"`
	ID          string         `json:"id,omitempty"`
	BaseURL     string         `json:"baseUrl,omitempty"`
	Path        string         `json:"path,omitempty"`
	Images      []string       `json:"images,omitempty"`
	Bool        *bool          `json:"bool,omitempty"`
	AskResponse AskResponse    `json:"askResponse,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// TaskID returns the task a *WithId command names.
func (c Command) TaskID() string {
	return firstNonEmpty(c.ID, c.Text)
}

// LocalRegistryURL returns the registry a requestLocalModels command names.
func (c Command) LocalRegistryURL() string {
	return firstNonEmpty(c.BaseURL, c.Text)
}

// Target returns the file, image or mention an open command names.
func (c Command) Target() string {
	return firstNonEmpty(c.Path, c.Text)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OutboundType tags a notification pushed to the presentation layer.
type OutboundType string

const (
	OutStateSnapshot  OutboundType = "stateSnapshot"
	OutAction         OutboundType = "action"
	OutCatalog        OutboundType = "catalog"
	OutLocalModels    OutboundType = "localModels"
	OutSelectedImages OutboundType = "selectedImages"
	OutThemeChanged   OutboundType = "themeChanged"
)

// Action is the payload kind of an action notification.
type Action string

const (
	ActionBecameVisible         Action = "becameVisible"
	ActionChatButtonClicked     Action = "chatButtonClicked"
	ActionSettingsButtonClicked Action = "settingsButtonClicked"
	ActionHistoryButtonClicked  Action = "historyButtonClicked"
)

// ViewActions maps the views a showView command can name to the action
// that switches to them.
var ViewActions = map[string]Action{
	"chat":     ActionChatButtonClicked,
	"settings": ActionSettingsButtonClicked,
	"history":  ActionHistoryButtonClicked,
}

// ActionPayload is sent with an action notification.
type ActionPayload struct {
	Action Action `json:"action"`
}

// ThemePayload is sent with a themeChanged notification.
type ThemePayload struct {
	Theme string `json:"theme"`
}

// CatalogPayload is sent with a catalog notification.
type CatalogPayload struct {
	Entries Catalog `json:"entries"`
}

// LocalModelsPayload is sent with a localModels notification.
type LocalModelsPayload struct {
	Names []string `json:"names"`
}

// SelectedImagesPayload is sent with a selectedImages notification.
type SelectedImagesPayload struct {
	Paths []string `json:"paths"`
}

// StateSnapshot is the projection of host state sent to the presentation layer.
type StateSnapshot struct {
	Version                string           `json:"version"`
	APIConfiguration       APIConfiguration `json:"apiConfiguration"`
	CustomInstructions     string           `json:"customInstructions,omitempty"`
	AlwaysAllowReadOnly    bool             `json:"alwaysAllowReadOnly"`
	CurrentTaskID          string           `json:"currentTaskId,omitempty"`
	UIMessages             []UIMessage      `json:"uiMessages"`
	TaskHistory            []HistoryItem    `json:"taskHistory"`
	ShouldShowAnnouncement bool             `json:"shouldShowAnnouncement"`
	IsDebugMode            bool             `json:"isDebugMode"`
}

// HostState is everything the persistent store holds for the host.
type HostState struct {
	APIConfiguration        APIConfiguration
	CustomInstructions      string
	AlwaysAllowReadOnly     bool
	TaskHistory             []HistoryItem
	LastShownAnnouncementID string
	IsDebugMode             bool
}
