package execution

import (
	"testing"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/stretchr/testify/require"
	"github.com/xamun-dev/xamun/internal/utils"
)

func TestSessionEventsCollector_Streaming(t *testing.T) {
	var partials, tools []string
	coll := NewSessionEventsCollector(
		func(s string) { partials = append(partials, s) },
		func(s string) { tools = append(tools, s) },
	)

	events := []copilot.SessionEvent{
		{Type: copilot.AssistantMessageDelta, Data: copilot.Data{DeltaContent: utils.Ptr("Hel")}},
		{Type: copilot.AssistantMessageDelta, Data: copilot.Data{DeltaContent: utils.Ptr("lo")}},
		{Type: copilot.AssistantMessage, Data: copilot.Data{Content: utils.Ptr("Hello")}},
		{Type: copilot.ToolExecutionStart, Data: copilot.Data{ToolName: utils.Ptr("report_intent"), ToolCallID: utils.Ptr("c1")}},
		{Type: copilot.ToolExecutionStart, Data: copilot.Data{ToolName: utils.Ptr("bash"), ToolCallID: utils.Ptr("c2")}},
		{Type: copilot.ToolExecutionComplete, Data: copilot.Data{ToolCallID: utils.Ptr("c2")}},
		{Type: copilot.AssistantMessage, Data: copilot.Data{Content: utils.Ptr("Done.")}},
		{Type: copilot.SessionIdle},
	}
	for _, e := range events {
		coll.On(e)
	}

	require.Equal(t, []string{"Hel", "Hello"}, partials)
	require.Equal(t, []string{"bash"}, tools)
	require.Equal(t, "Hello\n\nDone.", coll.Output())
	require.Empty(t, coll.ErrorMessage())

	select {
	case <-coll.Done():
	default:
		require.Fail(t, "Should have been Done()")
	}
}

func TestSessionEventsCollector_UnfinishedDeltaIsOutput(t *testing.T) {
	coll := NewSessionEventsCollector(nil, nil)
	coll.On(copilot.SessionEvent{Type: copilot.AssistantMessage, Data: copilot.Data{Content: utils.Ptr("first")}})
	coll.On(copilot.SessionEvent{Type: copilot.AssistantMessageDelta, Data: copilot.Data{DeltaContent: utils.Ptr("sec")}})

	require.Equal(t, "first\n\nsec", coll.Output())
}

func TestSessionEventsCollector_Error(t *testing.T) {
	tests := []struct {
		Message  *string
		Expected string
	}{
		{Message: utils.Ptr(""), Expected: sessionFailedUnknown},
		{Message: nil, Expected: sessionFailedUnknown},
		{Message: utils.Ptr("an error message"), Expected: "an error message"},
	}

	for _, tc := range tests {
		coll := NewSessionEventsCollector(nil, nil)

		coll.On(copilot.SessionEvent{
			Type: copilot.SessionError,
			Data: copilot.Data{
				Message: tc.Message,
			},
		})

		require.Equal(t, tc.Expected, coll.ErrorMessage())
		<-coll.Done()
	}
}
