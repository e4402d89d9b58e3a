package models

import "encoding/json"

// APIMessage is one conversation turn in the provider's format. Content is
// kept as raw JSON so provider-specific block structures survive a round trip.
type APIMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// NewTextMessage builds an APIMessage whose content is a single string.
func NewTextMessage(role, text string) APIMessage {
	content, _ := json.Marshal(text) //nolint:errcheck // strings always marshal
	return APIMessage{Role: role, Content: content}
}

// Text returns the message content when it is a plain string, or the text
// blocks joined together when it is a block array.
func (m APIMessage) Text() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return ""
	}
	var text string
	for _, b := range blocks {
		if b.Type == "text" {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}
	return text
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UIMessageType distinguishes questions posed to the user from statements.
type UIMessageType string

const (
	UIMessageAsk UIMessageType = "ask"
	UIMessageSay UIMessageType = "say"
)

// Ask and say kinds used by the executors.
const (
	AskFollowup         = "followup"
	AskCompletionResult = "completion_result"
	AskResumeTask       = "resume_task"
	AskAPIReqFailed     = "api_req_failed"
	AskTool             = "tool"

	SayTask  = "task"
	SayText  = "text"
	SayTool  = "tool"
	SayUser  = "user_feedback"
	SayError = "error"
)

// UIMessage is one entry of the transcript shown to the user.
type UIMessage struct {
	Ts      int64         `json:"ts"`
	Type    UIMessageType `json:"type"`
	Ask     string        `json:"ask,omitempty"`
	Say     string        `json:"say,omitempty"`
	Text    string        `json:"text,omitempty"`
	Images  []string      `json:"images,omitempty"`
	Partial bool          `json:"partial,omitempty"`
}
