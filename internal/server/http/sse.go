package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"taskhive/internal/async"
	"taskhive/internal/engine"
	"taskhive/internal/protocol"
	"taskhive/internal/session"
)

// streamTeardownTimeout bounds session teardown triggered by a stream-level
// condition.
const streamTeardownTimeout = 30 * time.Second

// streamSession pipes runner frames to the client as SSE. Each delivered
// frame re-arms the idle deadline; when it expires a timeout frame is written
// and the session is torn down. The same teardown runs when the client
// disconnects mid-stream. A stream that ends naturally, because the engine
// emitted its end event, leaves the session alive for follow-up requests.
func (h *Handler) streamSession(w http.ResponseWriter, r *http.Request, sess *session.Session, runner *engine.Runner) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeJSONError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.metrics.RecordSSEConnect(ctx)
	defer h.metrics.RecordSSEDisconnect(context.WithoutCancel(ctx))

	async.Go(h.logger, "runner "+sess.ID, func() {
		runner.Run(ctx)
	})

	deadline := time.NewTimer(h.idleTimeout)
	defer deadline.Stop()

	// Teardown must run at most once regardless of which condition ends the
	// stream. The loop below is the only writer, so a plain flag suffices.
	torndown := false
	teardown := func(trigger string) {
		if torndown {
			return
		}
		torndown = true
		tctx, tcancel := context.WithTimeout(context.WithoutCancel(ctx), streamTeardownTimeout)
		defer tcancel()
		h.service.Teardown(tctx, sess.ID, trigger)
	}

	for {
		select {
		case frame, open := <-runner.Frames():
			if !open {
				// Natural end. The session survives so the user can improve
				// or supplement the finished run.
				return
			}
			if _, err := w.Write(frame); err != nil {
				h.logger.Warn("stream write failed for session %s: %v", sess.ID, err)
				teardown("disconnect")
				return
			}
			flusher.Flush()
			if !deadline.Stop() {
				<-deadline.C
			}
			deadline.Reset(h.idleTimeout)

		case <-deadline.C:
			h.metrics.RecordIdleTimeout(ctx)
			frame, err := protocol.EncodeFrame(protocol.KindTimeout, protocol.TimeoutPayload{
				Message:        fmt.Sprintf("no event for %s, closing stream", h.idleTimeout),
				InFlightTasks:  sess.BackgroundTaskCount(),
				PendingTasks:   sess.QueueLen(),
				TimeoutSeconds: int(h.idleTimeout.Seconds()),
			})
			if err == nil {
				if _, werr := w.Write(frame); werr == nil {
					flusher.Flush()
				}
			}
			teardown("timeout")
			return

		case <-r.Context().Done():
			teardown("disconnect")
			return
		}
	}
}
