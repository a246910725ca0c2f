package session

import "taskhive/internal/protocol"

// Status is the session lifecycle state.
type Status string

const (
	// StatusConfirming is the initial state: the question is being refined.
	StatusConfirming Status = "confirming"
	// StatusConfirmed means the sub-task plan was accepted but not started.
	StatusConfirmed Status = "confirmed"
	// StatusProcessing means the engine is executing the task.
	StatusProcessing Status = "processing"
	// StatusDone means the run reached a terminal action.
	StatusDone Status = "done"
)

// transitions is the explicit state machine table. A missing entry means the
// trigger leaves the status unchanged. stop and skip_task both land on done;
// the difference is what happens around the transition: stop tears the
// session down, skip_task preserves it for the next turn.
var transitions = map[Status]map[protocol.Kind]Status{
	StatusConfirming: {
		protocol.KindStart:      StatusProcessing,
		protocol.KindUpdateTask: StatusConfirmed,
		protocol.KindStop:       StatusDone,
	},
	StatusConfirmed: {
		protocol.KindStart: StatusProcessing,
		protocol.KindStop:  StatusDone,
	},
	StatusProcessing: {
		protocol.KindStop:     StatusDone,
		protocol.KindSkipTask: StatusDone,
		protocol.KindEnd:      StatusDone,
	},
	StatusDone: {
		// A follow-up message reopens the session for another turn.
		protocol.KindImprove: StatusConfirming,
	},
}

// NextStatus returns the status reached when trigger fires in from, and
// whether the trigger causes a transition at all.
func NextStatus(from Status, trigger protocol.Kind) (Status, bool) {
	next, ok := transitions[from][trigger]
	return next, ok
}
