package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New("shutdown_everything", StartPayload{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNewRejectsWrongPayloadType(t *testing.T) {
	_, err := New(KindStart, ImprovePayload{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload has type")
}

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		payload any
		ok      bool
	}{
		{"improve with text", KindImprove, ImprovePayload{Text: "refine it"}, true},
		{"improve without text", KindImprove, ImprovePayload{}, false},
		{"update_task with tasks", KindUpdateTask, UpdateTaskPayload{Tasks: []TaskContent{{ID: "1", Content: "do"}}}, true},
		{"update_task empty", KindUpdateTask, UpdateTaskPayload{}, false},
		{"update_task missing id", KindUpdateTask, UpdateTaskPayload{Tasks: []TaskContent{{Content: "do"}}}, false},
		{"supplement with question", KindSupplement, SupplementPayload{Question: "also this"}, true},
		{"supplement empty", KindSupplement, SupplementPayload{}, false},
		{"new_agent named", KindNewAgent, NewAgentPayload{Name: "researcher"}, true},
		{"new_agent unnamed", KindNewAgent, NewAgentPayload{}, false},
		{"install_mcp with servers", KindInstallMCP, InstallMCPPayload{Servers: McpServers{Servers: map[string]McpServerSpec{"fs": {Command: "mcp-fs"}}}}, true},
		{"install_mcp empty", KindInstallMCP, InstallMCPPayload{}, false},
		{"ask complete", KindAsk, AskPayload{Agent: "developer", Question: "which branch?"}, true},
		{"ask without agent", KindAsk, AskPayload{Question: "which branch?"}, false},
		{"task_state with id", KindTaskState, TaskStatePayload{TaskID: "1", State: "running"}, true},
		{"task_state without id", KindTaskState, TaskStatePayload{State: "running"}, false},
		{"toolkit event named", KindActivateToolkit, ToolkitPayload{ToolkitName: "browser"}, true},
		{"toolkit event unnamed", KindDeactivateToolkit, ToolkitPayload{}, false},
		{"bare start", KindStart, StartPayload{}, true},
		{"bare stop", KindStop, StopPayload{}, true},
		{"end with result", KindEnd, EndPayload{Result: "report.md"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.kind, tc.payload)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, ClientToBackend, DirectionOf(KindImprove))
	assert.Equal(t, ClientToBackend, DirectionOf(KindSkipTask))
	assert.Equal(t, BackendToClient, DirectionOf(KindAsk))
	assert.Equal(t, BackendToClient, DirectionOf(KindEnd))
	assert.Equal(t, DirectionUnknown, DirectionOf("gibberish"))
}

func TestMustNewPanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		MustNew(KindImprove, ImprovePayload{})
	})
}
