// Package engine defines the port to the multi-agent execution framework and
// the runner that drains a session's action queue, driving the engine for
// client actions and relaying engine events to the SSE stream.
package engine

import (
	"context"

	"taskhive/internal/protocol"
	"taskhive/internal/session"
)

// Engine is the execution framework behind a session. Implementations report
// progress by putting backend-to-client messages on the session queue; the
// runner relays those to the event stream.
type Engine interface {
	// Decompose turns the user prompt into a task plan, emitting
	// decompose_progress and decompose_text events along the way.
	Decompose(ctx context.Context, sess *session.Session, prompt string) error
	// Execute runs the confirmed plan to completion.
	Execute(ctx context.Context, sess *session.Session) error
	// Supplement injects an additional user question into a finished run.
	Supplement(ctx context.Context, sess *session.Session, p protocol.SupplementPayload) error
	// UpdateTasks replaces the pending plan with the given task contents.
	UpdateTasks(ctx context.Context, sess *session.Session, p protocol.UpdateTaskPayload) error
	AddTask(ctx context.Context, sess *session.Session, p protocol.AddTaskPayload) error
	RemoveTask(ctx context.Context, sess *session.Session, p protocol.RemoveTaskPayload) error
	// SkipCurrent abandons the in-flight task but keeps the session alive.
	SkipCurrent(ctx context.Context, sess *session.Session) error
	Pause(ctx context.Context, sess *session.Session) error
	Resume(ctx context.Context, sess *session.Session) error
	AddAgent(ctx context.Context, sess *session.Session, p protocol.NewAgentPayload) error
	InstallMCP(ctx context.Context, sess *session.Session, servers protocol.McpServers) error
	// Stop halts all work for the session immediately.
	Stop(ctx context.Context, sess *session.Session) error
}

// NopEngine ignores every call. It stands in where no execution framework is
// attached, test servers mostly.
type NopEngine struct{}

var _ Engine = NopEngine{}

func (NopEngine) Decompose(context.Context, *session.Session, string) error { return nil }
func (NopEngine) Execute(context.Context, *session.Session) error           { return nil }
func (NopEngine) Supplement(context.Context, *session.Session, protocol.SupplementPayload) error {
	return nil
}
func (NopEngine) UpdateTasks(context.Context, *session.Session, protocol.UpdateTaskPayload) error {
	return nil
}
func (NopEngine) AddTask(context.Context, *session.Session, protocol.AddTaskPayload) error {
	return nil
}
func (NopEngine) RemoveTask(context.Context, *session.Session, protocol.RemoveTaskPayload) error {
	return nil
}
func (NopEngine) SkipCurrent(context.Context, *session.Session) error { return nil }
func (NopEngine) Pause(context.Context, *session.Session) error       { return nil }
func (NopEngine) Resume(context.Context, *session.Session) error      { return nil }
func (NopEngine) AddAgent(context.Context, *session.Session, protocol.NewAgentPayload) error {
	return nil
}
func (NopEngine) InstallMCP(context.Context, *session.Session, protocol.McpServers) error {
	return nil
}
func (NopEngine) Stop(context.Context, *session.Session) error { return nil }
