package engine

import (
	"context"
	"time"

	"taskhive/internal/logging"
	"taskhive/internal/observability"
	"taskhive/internal/protocol"
	"taskhive/internal/session"
)

// teardownTimeout bounds session teardown triggered from inside the run loop.
const teardownTimeout = 30 * time.Second

// Runner is the sole consumer of a session's action queue. Client actions
// drive the engine, engine events become encoded SSE frames on Frames.
type Runner struct {
	sess     *session.Session
	engine   Engine
	registry *session.Registry
	metrics  *observability.MetricsCollector
	logger   logging.Logger
	frames   chan []byte
}

// NewRunner binds a session to an engine. registry and metrics may be nil.
func NewRunner(sess *session.Session, eng Engine, registry *session.Registry, metrics *observability.MetricsCollector, logger logging.Logger) *Runner {
	if eng == nil {
		eng = NopEngine{}
	}
	return &Runner{
		sess:     sess,
		engine:   eng,
		registry: registry,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
		frames:   make(chan []byte, 64),
	}
}

// Frames delivers encoded SSE frames. The channel is closed when the run
// loop exits, for any reason.
func (r *Runner) Frames() <-chan []byte { return r.frames }

// Run drains the queue until the context is cancelled, an end event is
// relayed, or a stop action tears the session down.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.frames)
	for {
		waitStart := time.Now()
		msg, err := r.sess.GetAction(ctx)
		if err != nil {
			return
		}
		r.metrics.RecordQueueWait(ctx, time.Since(waitStart))

		if protocol.DirectionOf(msg.Kind) == protocol.BackendToClient {
			if !r.relay(ctx, msg) {
				return
			}
			if msg.Kind == protocol.KindEnd {
				r.sess.ApplyTransition(protocol.KindEnd)
				return
			}
			continue
		}

		if done := r.dispatch(ctx, msg); done {
			return
		}
	}
}

// relay encodes one backend event as an SSE frame and hands it to the stream.
// Returns false when the stream consumer is gone.
func (r *Runner) relay(ctx context.Context, msg protocol.Message) bool {
	frame, err := protocol.EncodeMessageFrame(msg)
	if err != nil {
		r.logger.Warn("dropping unencodable %s event for session %s: %v", msg.Kind, r.sess.ID, err)
		return true
	}
	select {
	case r.frames <- frame:
		r.metrics.RecordFrameDelivered(ctx, string(msg.Kind))
		return true
	case <-ctx.Done():
		return false
	}
}

// dispatch handles one client action. Returns true when the run loop should
// terminate.
func (r *Runner) dispatch(ctx context.Context, msg protocol.Message) bool {
	switch msg.Kind {
	case protocol.KindStart:
		r.sess.ApplyTransition(msg.Kind)
		r.spawn("execute", func(tctx context.Context) error {
			return r.engine.Execute(tctx, r.sess)
		})

	case protocol.KindImprove:
		p, ok := payload[protocol.ImprovePayload](r, msg)
		if !ok {
			return false
		}
		r.sess.ApplyTransition(msg.Kind)
		if p.NewTaskID != "" {
			r.sess.SetCurrentTaskID(p.NewTaskID)
		}
		r.sess.AddConversation("user", p.Text)
		r.spawn("decompose", func(tctx context.Context) error {
			return r.engine.Decompose(tctx, r.sess, p.Text)
		})

	case protocol.KindUpdateTask:
		p, ok := payload[protocol.UpdateTaskPayload](r, msg)
		if !ok {
			return false
		}
		r.sess.ApplyTransition(msg.Kind)
		r.call(ctx, msg.Kind, func() error { return r.engine.UpdateTasks(ctx, r.sess, p) })

	case protocol.KindSupplement:
		p, ok := payload[protocol.SupplementPayload](r, msg)
		if !ok {
			return false
		}
		r.sess.AddConversation("user", p.Question)
		r.spawn("supplement", func(tctx context.Context) error {
			return r.engine.Supplement(tctx, r.sess, p)
		})

	case protocol.KindStop:
		r.call(ctx, msg.Kind, func() error { return r.engine.Stop(ctx, r.sess) })
		r.sess.ApplyTransition(msg.Kind)
		if end, err := protocol.New(protocol.KindEnd, protocol.EndPayload{}); err == nil {
			r.relay(ctx, end)
		}
		if r.registry != nil {
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
			defer cancel()
			r.registry.DeleteIfExists(tctx, r.sess.ID, "stop")
		}
		return true

	case protocol.KindSkipTask:
		r.call(ctx, msg.Kind, func() error { return r.engine.SkipCurrent(ctx, r.sess) })
		r.sess.ApplyTransition(msg.Kind)

	case protocol.KindPause:
		r.call(ctx, msg.Kind, func() error { return r.engine.Pause(ctx, r.sess) })

	case protocol.KindResume:
		r.call(ctx, msg.Kind, func() error { return r.engine.Resume(ctx, r.sess) })

	case protocol.KindNewAgent:
		if p, ok := payload[protocol.NewAgentPayload](r, msg); ok {
			r.call(ctx, msg.Kind, func() error { return r.engine.AddAgent(ctx, r.sess, p) })
		}

	case protocol.KindAddTask:
		if p, ok := payload[protocol.AddTaskPayload](r, msg); ok {
			r.call(ctx, msg.Kind, func() error { return r.engine.AddTask(ctx, r.sess, p) })
		}

	case protocol.KindRemoveTask:
		if p, ok := payload[protocol.RemoveTaskPayload](r, msg); ok {
			r.call(ctx, msg.Kind, func() error { return r.engine.RemoveTask(ctx, r.sess, p) })
		}

	case protocol.KindInstallMCP:
		if p, ok := payload[protocol.InstallMCPPayload](r, msg); ok {
			r.call(ctx, msg.Kind, func() error { return r.engine.InstallMCP(ctx, r.sess, p.Servers) })
		}

	default:
		r.logger.Warn("unhandled action %s for session %s", msg.Kind, r.sess.ID)
	}
	return false
}

// spawn runs a long engine call as a tracked background task. A failure is
// surfaced to the client as a notice followed by an end event.
func (r *Runner) spawn(name string, fn func(context.Context) error) {
	r.sess.Spawn(name, func(tctx context.Context) {
		if err := fn(tctx); err != nil && tctx.Err() == nil {
			r.logger.Error("engine %s failed for session %s: %v", name, r.sess.ID, err)
			r.enqueue(protocol.KindNotice, protocol.NoticePayload{Data: err.Error()})
			r.enqueue(protocol.KindEnd, protocol.EndPayload{})
		}
	})
}

func (r *Runner) call(ctx context.Context, kind protocol.Kind, fn func() error) {
	if err := fn(); err != nil {
		r.logger.Error("engine %s failed for session %s: %v", kind, r.sess.ID, err)
		r.enqueue(protocol.KindNotice, protocol.NoticePayload{Data: err.Error()})
	}
}

func (r *Runner) enqueue(kind protocol.Kind, pl any) {
	msg, err := protocol.New(kind, pl)
	if err != nil {
		r.logger.Warn("cannot build %s event: %v", kind, err)
		return
	}
	if err := r.sess.PutAction(msg); err != nil {
		r.logger.Warn("cannot enqueue %s event for session %s: %v", kind, r.sess.ID, err)
	}
}

func payload[T any](r *Runner, msg protocol.Message) (T, bool) {
	p, ok := msg.Payload.(T)
	if !ok {
		r.logger.Warn("action %s carried unexpected payload %T for session %s", msg.Kind, msg.Payload, r.sess.ID)
	}
	return p, ok
}
