package protocol

// McpServers is the server map installed via install_mcp, mirroring the
// common `{"mcpServers": {name: spec}}` wire shape.
type McpServers struct {
	Servers map[string]McpServerSpec `json:"mcpServers"`
}

// McpServerSpec describes how to reach one MCP server.
type McpServerSpec struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// TaskContent is one sub-task entry in a bulk update.
type TaskContent struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// FileEntry describes one file touched during a tool call.
type FileEntry struct {
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
	ModifiedAt string `json:"modified_at"`
}

// ImprovePayload submits or revises the question, optionally retargeting a
// new sub-task id.
type ImprovePayload struct {
	Text      string `json:"data"`
	NewTaskID string `json:"new_task_id,omitempty"`
}

// StartPayload carries no data.
type StartPayload struct{}

// StopPayload carries no data.
type StopPayload struct{}

// UpdateTaskPayload is a bulk edit of sub-task contents.
type UpdateTaskPayload struct {
	Tasks []TaskContent `json:"task"`
}

// SupplementPayload attaches data once a prior task is done.
type SupplementPayload struct {
	Question string `json:"question"`
	TaskID   string `json:"task_id,omitempty"`
}

// TakeControlPayload is shared by pause and resume.
type TakeControlPayload struct{}

// NewAgentPayload registers an additional worker.
type NewAgentPayload struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Tools       []string    `json:"tools"`
	McpTools    *McpServers `json:"mcp_tools,omitempty"`
}

// AddTaskPayload inserts a sub-task into the running task tree.
type AddTaskPayload struct {
	Content        string         `json:"content"`
	ProjectID      string         `json:"project_id,omitempty"`
	TaskID         string         `json:"task_id,omitempty"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
	InsertPosition int            `json:"insert_position"`
}

// RemoveTaskPayload removes a sub-task.
type RemoveTaskPayload struct {
	TaskID    string `json:"task_id"`
	ProjectID string `json:"project_id"`
}

// SkipTaskPayload marks the current task done while preserving context.
type SkipTaskPayload struct {
	ProjectID string `json:"project_id"`
}

// InstallMCPPayload carries the server map to install.
type InstallMCPPayload struct {
	Servers McpServers `json:"data"`
}

// TaskStatePayload is a sub-task lifecycle snapshot.
type TaskStatePayload struct {
	TaskID       string `json:"task_id"`
	Content      string `json:"content"`
	State        string `json:"state"`
	Result       string `json:"result"`
	FailureCount int    `json:"failure_count"`
}

// DecomposePayload carries streaming sub-task planning output.
type DecomposePayload struct {
	Data map[string]any `json:"data"`
}

// CreateAgentPayload announces a new worker.
type CreateAgentPayload struct {
	AgentName string   `json:"agent_name"`
	AgentID   string   `json:"agent_id"`
	Tools     []string `json:"tools"`
}

// ActivateAgentPayload brackets the start of a worker invocation.
type ActivateAgentPayload struct {
	AgentName     string `json:"agent_name"`
	AgentID       string `json:"agent_id"`
	ProcessTaskID string `json:"process_task_id"`
	Message       string `json:"message"`
}

// DeactivateAgentPayload brackets the end of a worker invocation.
type DeactivateAgentPayload struct {
	AgentName     string `json:"agent_name"`
	AgentID       string `json:"agent_id"`
	ProcessTaskID string `json:"process_task_id"`
	Message       string `json:"message"`
	Tokens        int    `json:"tokens"`
}

// AssignTaskPayload routes a sub-task to a worker.
type AssignTaskPayload struct {
	AssigneeID   string `json:"assignee_id"`
	TaskID       string `json:"task_id"`
	Content      string `json:"content"`
	State        string `json:"state"`
	FailureCount int    `json:"failure_count"`
}

// ToolkitPayload brackets a tool call. DurationMS and ChangedFiles are only
// populated on deactivate_toolkit.
type ToolkitPayload struct {
	AgentName     string      `json:"agent_name"`
	ToolkitName   string      `json:"toolkit_name"`
	ProcessTaskID string      `json:"process_task_id"`
	MethodName    string      `json:"method_name"`
	Message       string      `json:"message"`
	DurationMS    int64       `json:"duration_ms,omitempty"`
	ChangedFiles  []FileEntry `json:"changed_files,omitempty"`
}

// WriteFilePayload reports a file written on behalf of a sub-task.
type WriteFilePayload struct {
	ProcessTaskID string `json:"process_task_id"`
	Data          string `json:"data"`
}

// AskPayload is a blocking human-input request for one named agent.
type AskPayload struct {
	Question string `json:"question"`
	Agent    string `json:"agent"`
}

// NoticePayload is an informational message tagged with a sub-task.
type NoticePayload struct {
	ProcessTaskID string `json:"process_task_id"`
	Data          string `json:"data"`
}

// SearchMCPPayload relays MCP registry search results.
type SearchMCPPayload struct {
	Data any `json:"data"`
}

// TerminalPayload streams shell output for a sub-task.
type TerminalPayload struct {
	ProcessTaskID string `json:"process_task_id"`
	Data          string `json:"data"`
}

// BudgetNotEnoughPayload carries no data.
type BudgetNotEnoughPayload struct{}

// EndPayload terminates the event stream.
type EndPayload struct {
	Result string `json:"result,omitempty"`
}

// TimeoutPayload describes a task timeout.
type TimeoutPayload struct {
	Message        string `json:"message"`
	InFlightTasks  int    `json:"in_flight_tasks"`
	PendingTasks   int    `json:"pending_tasks"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}
