package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskhive/internal/async"
	"taskhive/internal/creds"
	"taskhive/internal/engine"
	"taskhive/internal/logging"
	"taskhive/internal/oauth"
	"taskhive/internal/observability"
	"taskhive/internal/protocol"
	"taskhive/internal/session"
	"taskhive/internal/toolkit"
	"taskhive/internal/workspace"
)

// ChatRequest is the payload opening a session stream.
type ChatRequest struct {
	TaskID      string                       `json:"task_id"`
	ProjectID   string                       `json:"project_id,omitempty"`
	Question    string                       `json:"question"`
	Email       string                       `json:"email,omitempty"`
	Attachments []workspace.Attachment       `json:"attaches,omitempty"`
	CredsParams map[string]map[string]string `json:"creds_params,omitempty"`
	ExtraParams map[string]map[string]string `json:"extra_params,omitempty"`
	Credentials []CredentialFile             `json:"credentials,omitempty"`
	McpServers  *protocol.McpServers         `json:"mcp_servers,omitempty"`
}

// CredentialFile is a base64 credential blob materialized into the session
// workspace and removed again at teardown.
type CredentialFile struct {
	Tool    string `json:"tool"`
	Content string `json:"content"`
	Suffix  string `json:"suffix,omitempty"`
}

// ChatService owns session lifecycle on behalf of the HTTP layer: workspace
// setup, credential handling, action enqueueing, and teardown.
type ChatService struct {
	registry *session.Registry
	engine   engine.Engine
	layout   workspace.Layout
	resolver *creds.Resolver
	oauth    *oauth.StateManager
	pool     *async.WorkerPool
	metrics  *observability.MetricsCollector
	logger   logging.Logger
}

// Deps collects the collaborators of a ChatService. Engine, pool, and
// metrics may be nil.
type Deps struct {
	Registry *session.Registry
	Engine   engine.Engine
	Layout   workspace.Layout
	Resolver *creds.Resolver
	OAuth    *oauth.StateManager
	Pool     *async.WorkerPool
	Metrics  *observability.MetricsCollector
	Logger   logging.Logger
}

// NewChatService wires the service and installs the teardown hooks that keep
// auxiliary state consistent with session deletion.
func NewChatService(d Deps) *ChatService {
	s := &ChatService{
		registry: d.Registry,
		engine:   d.Engine,
		layout:   d.Layout,
		resolver: d.Resolver,
		oauth:    d.OAuth,
		pool:     d.Pool,
		metrics:  d.Metrics,
		logger:   logging.OrNop(d.Logger),
	}
	s.registry.AddTeardownHook(func(ctx context.Context, id, trigger string) {
		s.metrics.RecordSessionDeleted(ctx, trigger)
	})
	if s.oauth != nil {
		s.registry.AddTeardownHook(func(ctx context.Context, id, trigger string) {
			if n := s.oauth.ClearProject(id); n > 0 {
				s.logger.Info("cleared %d oauth flows for session %s (%s)", n, id, trigger)
			}
		})
	}
	return s
}

// StartChat creates or revives the session for a chat request, prepares its
// workspace and credentials, enqueues the opening improve action, and returns
// the runner whose frames the caller streams.
func (s *ChatService) StartChat(ctx context.Context, req ChatRequest) (*session.Session, *engine.Runner, error) {
	if req.TaskID == "" {
		return nil, nil, ValidationError("task_id is required")
	}
	if req.Question == "" {
		return nil, nil, ValidationError("question is required")
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = req.TaskID
	}

	sess, err := s.registry.Create(req.TaskID)
	switch {
	case err == nil:
		s.metrics.RecordSessionCreated(ctx)
	case errors.Is(err, session.ErrAlreadyExists):
		sess, err = s.registry.Get(req.TaskID)
		if err != nil {
			return nil, nil, NotFoundError("session %s", req.TaskID)
		}
	default:
		return nil, nil, err
	}

	workDir, err := s.layout.EnsureTaskDir(projectID, req.TaskID)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare workspace for %s: %w", req.TaskID, err)
	}
	logDir, err := s.layout.EnsureLogDir(workDir)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare log dir for %s: %w", req.TaskID, err)
	}
	sess.SetPaths(workDir, logDir)
	sess.SetCurrentTaskID(req.TaskID)
	sess.SetCreds(req.CredsParams, req.ExtraParams)

	for _, attach := range req.Attachments {
		if _, err := workspace.SaveAttachment(workDir, attach); err != nil {
			s.logger.Warn("attachment %q rejected for session %s: %v", attach.Name, req.TaskID, err)
		}
	}
	for _, cf := range req.Credentials {
		if _, err := workspace.WriteCredentialFile(workDir, cf.Tool, cf.Content, cf.Suffix); err != nil {
			s.logger.Warn("credential file for %s rejected on session %s: %v", cf.Tool, req.TaskID, err)
		}
	}
	if req.McpServers != nil {
		s.installServers(ctx, sess, *req.McpServers)
	}

	if err := s.put(ctx, sess, protocol.KindImprove, protocol.ImprovePayload{Text: req.Question}); err != nil {
		return nil, nil, err
	}

	runner := engine.NewRunner(sess, s.engine, s.registry, s.metrics, s.logger)
	return sess, runner, nil
}

// Improve feeds a refined prompt into an existing session. On a finished
// session this re-enters the planning phase with history preserved.
func (s *ChatService) Improve(ctx context.Context, id string, p protocol.ImprovePayload) error {
	if p.Text == "" {
		return ValidationError("improvement text is required")
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		return NotFoundError("session %s", id)
	}
	// A finished session re-enters planning at the endpoint, not when a
	// runner eventually consumes the action. Without this a session with no
	// open stream would stay done and keep accepting supplements. The
	// runner applies the same transition again, which is a no-op by then.
	if next, ok := sess.ApplyTransition(protocol.KindImprove); ok {
		s.logger.Info("session %s reopened for another turn: status=%s", id, next)
	}
	return s.put(ctx, sess, protocol.KindImprove, p)
}

// Supplement adds information to a completed run. It refuses sessions that
// are still working.
func (s *ChatService) Supplement(ctx context.Context, id string, p protocol.SupplementPayload) error {
	sess, err := s.registry.Get(id)
	if err != nil {
		return NotFoundError("session %s", id)
	}
	if st := sess.Status(); st != session.StatusDone {
		return ConflictError("session %s is %s, supplement requires a finished run", id, st)
	}
	return s.put(ctx, sess, protocol.KindSupplement, p)
}

// HumanReply delivers the user's answer to a pending agent question.
func (s *ChatService) HumanReply(ctx context.Context, id, agent, reply string) error {
	sess, err := s.registry.Get(id)
	if err != nil {
		return NotFoundError("session %s", id)
	}
	if agent == "" {
		return ValidationError("agent is required")
	}
	return sess.PutHumanInput(ctx, agent, reply)
}

// InstallMCP connects the given MCP servers, registers their toolkits on the
// session, and notifies the engine.
func (s *ChatService) InstallMCP(ctx context.Context, id string, servers protocol.McpServers) error {
	sess, err := s.registry.Get(id)
	if err != nil {
		return NotFoundError("session %s", id)
	}
	if len(servers.Servers) == 0 {
		return ValidationError("no mcp servers given")
	}
	s.installServers(ctx, sess, servers)
	return s.put(ctx, sess, protocol.KindInstallMCP, protocol.InstallMCPPayload{Servers: servers})
}

func (s *ChatService) installServers(ctx context.Context, sess *session.Session, servers protocol.McpServers) {
	for name, spec := range servers.Servers {
		spec.Env = s.resolveEnv(sess, name, spec.Env)
		tk, err := toolkit.NewMCPToolkit(ctx, name, "", spec, sess, s.logger)
		if err != nil {
			s.logger.Warn("mcp server %s unavailable for session %s: %v", name, sess.ID, err)
			continue
		}
		sess.RegisterToolkit(tk)
		s.logger.Info("mcp server %s attached to session %s with tools %v", name, sess.ID, tk.ToolNames())
	}
}

// resolveEnv fills empty env entries of an MCP server spec from the session's
// credential dictionaries. Session-scoped values win over the process
// environment.
func (s *ChatService) resolveEnv(sess *session.Session, integration string, env map[string]string) map[string]string {
	if s.resolver == nil || len(env) == 0 {
		return env
	}
	resolved := make(map[string]string, len(env))
	for k, v := range env {
		if v == "" {
			if val, ok := s.resolver.Lookup(sess, integration, strings.ToLower(k)); ok {
				v = val
			}
		}
		resolved[k] = v
	}
	return resolved
}

// Start confirms the decomposed plan and begins execution.
func (s *ChatService) Start(ctx context.Context, id string) error {
	return s.enqueue(ctx, id, protocol.KindStart, protocol.StartPayload{})
}

// UpdateTasks replaces the pending plan.
func (s *ChatService) UpdateTasks(ctx context.Context, id string, p protocol.UpdateTaskPayload) error {
	if len(p.Tasks) == 0 {
		return ValidationError("task list is empty")
	}
	return s.enqueue(ctx, id, protocol.KindUpdateTask, p)
}

// AddTask appends a task to the running plan.
func (s *ChatService) AddTask(ctx context.Context, id string, p protocol.AddTaskPayload) error {
	if p.Content == "" {
		return ValidationError("task content is required")
	}
	return s.enqueue(ctx, id, protocol.KindAddTask, p)
}

// RemoveTask removes a pending task from the plan.
func (s *ChatService) RemoveTask(ctx context.Context, projectID, taskID string) error {
	return s.enqueue(ctx, projectID, protocol.KindRemoveTask, protocol.RemoveTaskPayload{
		TaskID:    taskID,
		ProjectID: projectID,
	})
}

// SkipTask abandons the in-flight task while keeping the session alive for a
// follow-up improve.
func (s *ChatService) SkipTask(ctx context.Context, projectID string) error {
	return s.enqueue(ctx, projectID, protocol.KindSkipTask, protocol.SkipTaskPayload{ProjectID: projectID})
}

// TakeControl pauses or resumes execution.
func (s *ChatService) TakeControl(ctx context.Context, id string, pause bool) error {
	kind := protocol.KindResume
	if pause {
		kind = protocol.KindPause
	}
	return s.enqueue(ctx, id, kind, protocol.TakeControlPayload{})
}

// AddAgent registers an additional agent definition on the session.
func (s *ChatService) AddAgent(ctx context.Context, id string, p protocol.NewAgentPayload) error {
	if p.Name == "" {
		return ValidationError("agent name is required")
	}
	return s.enqueue(ctx, id, protocol.KindNewAgent, p)
}

// Stop halts a session and tears it down. Stopping an unknown session is not
// an error.
func (s *ChatService) Stop(ctx context.Context, id string) {
	if sess := s.registry.GetIfExists(id); sess != nil {
		if err := s.put(ctx, sess, protocol.KindStop, protocol.StopPayload{}); err != nil {
			s.logger.Warn("stop action for session %s not enqueued: %v", id, err)
		}
	}
	// Direct deletion covers sessions with no active stream. The runner's
	// own teardown on the stop action is idempotent with this one.
	s.registry.DeleteIfExists(ctx, id, "user")
}

// StopAll tears down every live session and reports how many teardowns were
// initiated. With a worker pool attached the teardowns run with bounded
// concurrency.
func (s *ChatService) StopAll(ctx context.Context) int {
	// Teardowns scheduled on the pool outlive the request that asked for
	// them.
	ctx = context.WithoutCancel(ctx)
	stopped := 0
	for _, sess := range s.registry.Snapshot() {
		id := sess.ID
		if s.pool != nil {
			if err := s.pool.Submit(ctx, "stop "+id, func() { s.Stop(ctx, id) }); err != nil {
				s.logger.Warn("stop of session %s not scheduled: %v", id, err)
				continue
			}
		} else {
			s.Stop(ctx, id)
		}
		stopped++
	}
	return stopped
}

// BeginOAuth starts an authorization flow for a session and provider.
func (s *ChatService) BeginOAuth(id, provider, authURL string) (oauth.Flow, error) {
	if s.oauth == nil {
		return oauth.Flow{}, UnavailableError("oauth flows are not configured")
	}
	if provider == "" {
		return oauth.Flow{}, ValidationError("provider is required")
	}
	return s.oauth.Begin(id, provider, authURL), nil
}

// OAuthStatus reports the current flow for a session and provider.
func (s *ChatService) OAuthStatus(id, provider string) (oauth.Flow, error) {
	if s.oauth == nil {
		return oauth.Flow{}, UnavailableError("oauth flows are not configured")
	}
	flow, ok := s.oauth.Get(id, provider)
	if !ok {
		return oauth.Flow{}, NotFoundError("no oauth flow for %s/%s", id, provider)
	}
	return flow, nil
}

// Teardown removes a session after a stream-level condition such as an idle
// timeout or a client disconnect. Reports whether a session was deleted.
func (s *ChatService) Teardown(ctx context.Context, id, trigger string) bool {
	return s.registry.DeleteIfExists(ctx, id, trigger)
}

// SessionCount reports the number of live sessions, used by health output.
func (s *ChatService) SessionCount() int { return s.registry.Len() }

func (s *ChatService) enqueue(ctx context.Context, id string, kind protocol.Kind, pl any) error {
	sess, err := s.registry.Get(id)
	if err != nil {
		return NotFoundError("session %s", id)
	}
	return s.put(ctx, sess, kind, pl)
}

func (s *ChatService) put(ctx context.Context, sess *session.Session, kind protocol.Kind, pl any) error {
	msg, err := protocol.New(kind, pl)
	if err != nil {
		return ValidationError("%v", err)
	}
	if err := sess.PutAction(msg); err != nil {
		return ValidationError("%v", err)
	}
	s.metrics.RecordActionEnqueued(ctx, string(kind))
	return nil
}
