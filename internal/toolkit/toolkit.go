// Package toolkit provides the agent-facing tool surface. Every tool call is
// wrapped by Instrument, which reports activation and deactivation events to
// the session's event stream on all exit paths, including panics.
package toolkit

import (
	"context"
	"fmt"
	"time"

	"taskhive/internal/logging"
	"taskhive/internal/protocol"
	"taskhive/internal/session"
	"taskhive/internal/workspace"
)

// maxArgPreview bounds the argument text attached to activation events so a
// large file payload cannot flood the stream.
const maxArgPreview = 500

// Base carries the identity shared by all toolkit implementations and the
// session whose event stream receives activity reports.
type Base struct {
	name      string
	agentName string
	sess      *session.Session
	logger    logging.Logger
}

// NewBase creates the common toolkit core.
func NewBase(name, agentName string, sess *session.Session, logger logging.Logger) *Base {
	return &Base{
		name:      name,
		agentName: agentName,
		sess:      sess,
		logger:    logging.OrNop(logger),
	}
}

// Name implements session.Toolkit.
func (b *Base) Name() string { return b.name }

// Instrument runs fn and brackets it with activate_toolkit and
// deactivate_toolkit events. The deactivation event always fires, carries the
// call duration, a bounded result preview, and the files changed under the
// session working directory while the call ran.
func (b *Base) Instrument(ctx context.Context, method, args string, fn func(context.Context) (string, error)) (result string, err error) {
	start := time.Now()
	b.emit(protocol.KindActivateToolkit, protocol.ToolkitPayload{
		AgentName:     b.agentName,
		ToolkitName:   b.name,
		ProcessTaskID: b.sess.CurrentTaskID(),
		MethodName:    method,
		Message:       Truncate(args, maxArgPreview),
	})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("toolkit %s.%s panicked: %v", b.name, method, r)
			b.logger.Error("%v", err)
		}
		message := Truncate(result, maxArgPreview)
		if err != nil {
			message = Truncate(err.Error(), maxArgPreview)
		}
		var changed []protocol.FileEntry
		if dir := b.sess.WorkingDir(); dir != "" {
			changed = workspace.ChangedFilesSince(dir, start)
		}
		b.emit(protocol.KindDeactivateToolkit, protocol.ToolkitPayload{
			AgentName:     b.agentName,
			ToolkitName:   b.name,
			ProcessTaskID: b.sess.CurrentTaskID(),
			MethodName:    method,
			Message:       message,
			DurationMS:    time.Since(start).Milliseconds(),
			ChangedFiles:  changed,
		})
	}()
	return fn(ctx)
}

func (b *Base) emit(kind protocol.Kind, payload protocol.ToolkitPayload) {
	msg, err := protocol.New(kind, payload)
	if err != nil {
		b.logger.Warn("toolkit event rejected: %v", err)
		return
	}
	if err := b.sess.PutAction(msg); err != nil {
		b.logger.Warn("toolkit event dropped for session %s: %v", b.sess.ID, err)
	}
}

// Truncate shortens s to at most n bytes, appending an ellipsis marker when
// anything was cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
