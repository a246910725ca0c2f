package protocol

// Kind discriminates the closed set of messages exchanged over a session
// queue. Directionality is part of the contract: client→backend kinds are
// enqueued by HTTP handlers, backend→client kinds by the engine, and the SSE
// pipeline only ever relays backend→client kinds.
type Kind string

const (
	// Client → backend.
	KindStart      Kind = "start"
	KindImprove    Kind = "improve"
	KindUpdateTask Kind = "update_task"
	KindStop       Kind = "stop"
	KindSupplement Kind = "supplement"
	KindPause      Kind = "pause"
	KindResume     Kind = "resume"
	KindNewAgent   Kind = "new_agent"
	KindAddTask    Kind = "add_task"
	KindRemoveTask Kind = "remove_task"
	KindSkipTask   Kind = "skip_task"
	KindInstallMCP Kind = "install_mcp"

	// Backend → client.
	KindTaskState         Kind = "task_state"
	KindNewTaskState      Kind = "new_task_state"
	KindDecomposeProgress Kind = "decompose_progress"
	KindDecomposeText     Kind = "decompose_text"
	KindCreateAgent       Kind = "create_agent"
	KindActivateAgent     Kind = "activate_agent"
	KindDeactivateAgent   Kind = "deactivate_agent"
	KindAssignTask        Kind = "assign_task"
	KindActivateToolkit   Kind = "activate_toolkit"
	KindDeactivateToolkit Kind = "deactivate_toolkit"
	KindWriteFile         Kind = "write_file"
	KindAsk               Kind = "ask"
	KindNotice            Kind = "notice"
	KindSearchMCP         Kind = "search_mcp"
	KindTerminal          Kind = "terminal"
	KindBudgetNotEnough   Kind = "budget_not_enough"
	KindEnd               Kind = "end"
	KindTimeout           Kind = "timeout"
)

// Direction tells which side of the queue is allowed to enqueue a kind.
type Direction int

const (
	DirectionUnknown Direction = iota
	ClientToBackend
	BackendToClient
)

var kindDirections = map[Kind]Direction{
	KindStart:      ClientToBackend,
	KindImprove:    ClientToBackend,
	KindUpdateTask: ClientToBackend,
	KindStop:       ClientToBackend,
	KindSupplement: ClientToBackend,
	KindPause:      ClientToBackend,
	KindResume:     ClientToBackend,
	KindNewAgent:   ClientToBackend,
	KindAddTask:    ClientToBackend,
	KindRemoveTask: ClientToBackend,
	KindSkipTask:   ClientToBackend,
	KindInstallMCP: ClientToBackend,

	KindTaskState:         BackendToClient,
	KindNewTaskState:      BackendToClient,
	KindDecomposeProgress: BackendToClient,
	KindDecomposeText:     BackendToClient,
	KindCreateAgent:       BackendToClient,
	KindActivateAgent:     BackendToClient,
	KindDeactivateAgent:   BackendToClient,
	KindAssignTask:        BackendToClient,
	KindActivateToolkit:   BackendToClient,
	KindDeactivateToolkit: BackendToClient,
	KindWriteFile:         BackendToClient,
	KindAsk:               BackendToClient,
	KindNotice:            BackendToClient,
	KindSearchMCP:         BackendToClient,
	KindTerminal:          BackendToClient,
	KindBudgetNotEnough:   BackendToClient,
	KindEnd:               BackendToClient,
	KindTimeout:           BackendToClient,
}

// DirectionOf returns the contractual direction for a kind.
func DirectionOf(kind Kind) Direction {
	return kindDirections[kind]
}

// Known reports whether kind belongs to the closed protocol set.
func Known(kind Kind) bool {
	_, ok := kindDirections[kind]
	return ok
}
