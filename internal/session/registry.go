package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"taskhive/internal/logging"
	"taskhive/internal/workspace"
)

// TeardownHook runs during session teardown, after background work and
// toolkits are reclaimed. Hooks clear external per-session state (OAuth flow
// state, metrics). trigger names what ended the session: stop, timeout,
// cancel, stale or delete.
type TeardownHook func(ctx context.Context, id string, trigger string)

// Registry is the process-wide mapping from session id to live session.
// It is an injected dependency, never package-level state, and the Delete
// path is the single authority for ending a session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	hookMu sync.RWMutex
	hooks  []TeardownHook

	logger logging.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logging.OrNop(logger),
	}
}

// AddTeardownHook registers fn to run on every session teardown.
func (r *Registry) AddTeardownHook(fn TeardownHook) {
	if fn == nil {
		return
	}
	r.hookMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hookMu.Unlock()
}

// Create registers a new session, failing if the id is live.
func (r *Registry) Create(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		r.logger.Warn("create over live session: id=%s", id)
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	sess := New(id, r.logger)
	r.sessions[id] = sess
	r.logger.Info("session created: id=%s total=%d", id, len(r.sessions))
	return sess, nil
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// GetIfExists returns the session or nil, never an error.
func (r *Registry) GetIfExists(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// GetOrCreate returns the live session for id, creating it if absent.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		return sess
	}
	sess := New(id, r.logger)
	r.sessions[id] = sess
	r.logger.Info("session created: id=%s total=%d", id, len(r.sessions))
	return sess
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current live sessions.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Delete runs the full teardown for id and removes the registry entry.
// Fails with ErrNotFound when the id is not live.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.delete(ctx, id, "delete")
}

// DeleteIfExists is the race-tolerant teardown path used by the SSE pipeline:
// a session that is already gone is a no-op, not an error. Returns whether a
// teardown ran.
func (r *Registry) DeleteIfExists(ctx context.Context, id, trigger string) bool {
	if err := r.delete(ctx, id, trigger); err != nil {
		r.logger.Debug("teardown skipped, session already gone: id=%s trigger=%s", id, trigger)
		return false
	}
	return true
}

// delete is the teardown procedure of the lifecycle coordinator. Each step is
// independently best-effort: a failure is logged and later steps still run.
func (r *Registry) delete(ctx context.Context, id, trigger string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// The entry stays in the map until step 7, so two racing deleters (the
	// sweeper and an explicit stop, say) could both pass the existence
	// check. Only the claim winner runs the procedure.
	if !sess.claimTeardown() {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.logger.Info("session teardown: id=%s trigger=%s background_tasks=%d", id, trigger, sess.BackgroundTaskCount())

	// 1. No further processing happens for this session.
	sess.SetStatus(StatusDone)

	// 2–3. Cancel background work, await it, tear down toolkits.
	sess.Cleanup(ctx)

	// 4. Clear external per-session state.
	r.hookMu.RLock()
	hooks := r.hooks
	r.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, id, trigger)
	}

	// 5–6. Remove on-disk credentials, then the whole working tree.
	if path := sess.FileSavePath(); path != "" {
		credDir := workspace.CredentialsDir(path)
		if err := os.RemoveAll(credDir); err != nil {
			r.logger.Warn("failed to remove credential dir: id=%s path=%s err=%v", id, credDir, err)
		}
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn("failed to remove working dir: id=%s path=%s err=%v", id, path, err)
		}
	}
	if override := sess.OverridePath(); override != "" {
		if err := os.RemoveAll(override); err != nil {
			r.logger.Warn("failed to remove override dir: id=%s path=%s err=%v", id, override, err)
		}
	}

	// 7. Drop the registry entry last.
	r.mu.Lock()
	delete(r.sessions, id)
	remaining := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session deleted: id=%s trigger=%s remaining=%d", id, trigger, remaining)
	return nil
}
