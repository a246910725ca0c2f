package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskhive/internal/async"
	"taskhive/internal/logging"
	"taskhive/internal/protocol"
)

// Toolkit is an external resource handle registered on a session so it can be
// reclaimed at teardown. Implementations must be pointer types: registration
// deduplicates by identity, not by value.
type Toolkit interface {
	Name() string
}

// Cleaner is the optional teardown capability of a Toolkit.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// ConversationEntry is one append-only history record.
type ConversationEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the per-task state object ("task lock"): it owns the action
// queue, the per-agent human-input channels, the conversation history, the
// registered resources and the background work spawned on the session's
// behalf. One Session exists per live session id.
type Session struct {
	ID        string
	CreatedAt time.Time

	queue *actionQueue

	mu           sync.Mutex
	status       Status
	lastAccessed time.Time
	humanInput   map[string]chan string
	background   map[*BackgroundTask]struct{}
	toolkits     []Toolkit
	closed       bool
	deleting     bool

	history         []ConversationEntry
	lastTaskResult  string
	lastTaskSummary string
	currentTaskID   string

	fileSavePath string
	logDir       string
	overridePath string

	credsParams map[string]map[string]string
	extraParams map[string]map[string]string

	logger logging.Logger
}

// New creates a session in the confirming state with its clock started.
func New(id string, logger logging.Logger) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		queue:        newActionQueue(),
		status:       StatusConfirming,
		lastAccessed: now,
		humanInput:   make(map[string]chan string),
		background:   make(map[*BackgroundTask]struct{}),
		logger:       logging.OrNop(logger),
	}
}

// PutAction validates and appends a message to the queue. It never blocks and
// refreshes the access clock.
func (s *Session) PutAction(msg protocol.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.touch()
	s.logger.Debug("queue put: session=%s kind=%s", s.ID, msg.Kind)
	s.queue.Put(msg)
	return nil
}

// GetAction blocks for the next queued message. The engine's drive loop is
// the sole consumer.
func (s *Session) GetAction(ctx context.Context) (protocol.Message, error) {
	s.touch()
	msg, err := s.queue.Get(ctx)
	if err != nil {
		return protocol.Message{}, err
	}
	s.touch()
	return msg, nil
}

// QueueLen reports how many messages are waiting.
func (s *Session) QueueLen() int {
	return s.queue.Len()
}

func (s *Session) touch() {
	s.mu.Lock()
	now := time.Now()
	if now.After(s.lastAccessed) {
		s.lastAccessed = now
	}
	s.mu.Unlock()
}

// LastAccessed returns the time of the most recent queue interaction.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessed
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus forces a lifecycle state. Prefer ApplyTransition for
// trigger-driven changes.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// ApplyTransition applies the state-machine table for trigger and returns the
// resulting status plus whether a transition happened.
func (s *Session) ApplyTransition(trigger protocol.Kind) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := NextStatus(s.status, trigger)
	if !ok {
		return s.status, false
	}
	s.logger.Debug("status transition: session=%s %s --%s--> %s", s.ID, s.status, trigger, next)
	s.status = next
	return next, true
}

func (s *Session) humanInputChan(agent string) chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.humanInput[agent]
	if !ok {
		// Capacity exactly 1: a second unanswered exchange for the same
		// agent must block the producer, never overwrite.
		ch = make(chan string, 1)
		s.humanInput[agent] = ch
	}
	return ch
}

// PutHumanInput delivers a reply into the named agent's rendezvous channel.
// It blocks while a prior reply is still unconsumed.
func (s *Session) PutHumanInput(ctx context.Context, agent, reply string) error {
	ch := s.humanInputChan(agent)
	select {
	case ch <- reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetHumanInput blocks for the next reply addressed to the named agent.
func (s *Session) GetHumanInput(ctx context.Context, agent string) (string, error) {
	ch := s.humanInputChan(agent)
	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RegisterToolkit tracks a resource handle for teardown. Registering the same
// instance twice is a no-op; distinct instances of the same type are kept.
func (s *Session) RegisterToolkit(toolkit Toolkit) {
	if toolkit == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.toolkits {
		if existing == toolkit {
			s.logger.Debug("toolkit already registered: session=%s toolkit=%s", s.ID, toolkit.Name())
			return
		}
	}
	s.toolkits = append(s.toolkits, toolkit)
	s.logger.Debug("toolkit registered: session=%s toolkit=%s total=%d", s.ID, toolkit.Name(), len(s.toolkits))
}

// RegisteredToolkits returns a snapshot of the registered handles.
func (s *Session) RegisteredToolkits() []Toolkit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toolkit, len(s.toolkits))
	copy(out, s.toolkits)
	return out
}

// BackgroundTask is one tracked unit of asynchronous work.
type BackgroundTask struct {
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed when the task finishes, whatever the outcome.
func (t *BackgroundTask) Done() <-chan struct{} {
	return t.done
}

// Cancel requests cancellation.
func (t *BackgroundTask) Cancel() {
	t.cancel()
}

// Spawn starts fn as tracked background work. The task untracks itself on
// completion, so the tracking set never accumulates finished work. After
// Cleanup the session accepts no new work: fn is not run and the returned
// handle is already completed.
func (s *Session) Spawn(name string, fn func(ctx context.Context)) *BackgroundTask {
	ctx, cancel := context.WithCancel(context.Background())
	task := &BackgroundTask{
		Name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		close(task.done)
		s.logger.Warn("spawn after cleanup ignored: session=%s name=%s", s.ID, name)
		return task
	}
	s.background[task] = struct{}{}
	count := len(s.background)
	s.mu.Unlock()
	s.logger.Debug("background task started: session=%s name=%s tracked=%d", s.ID, name, count)

	async.Go(s.logger, fmt.Sprintf("session %s: %s", s.ID, name), func() {
		defer func() {
			cancel()
			close(task.done)
			s.mu.Lock()
			delete(s.background, task)
			s.mu.Unlock()
		}()
		fn(ctx)
	})
	return task
}

// claimTeardown marks the session as being deleted. Only the first caller
// gets true; a loser must leave the teardown procedure to the winner.
func (s *Session) claimTeardown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleting {
		return false
	}
	s.deleting = true
	return true
}

// BackgroundTaskCount reports how many tasks are currently tracked.
func (s *Session) BackgroundTaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.background)
}

// Cleanup cancels all tracked background work, awaits it, and tears down
// every registered toolkit with a teardown capability. Failures are logged
// and never propagated; repeated calls are safe. Afterwards both tracking
// sets are empty and the session accepts no new background work.
func (s *Session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*BackgroundTask, 0, len(s.background))
	for task := range s.background {
		tasks = append(tasks, task)
	}
	toolkits := s.toolkits
	s.toolkits = nil
	s.mu.Unlock()

	s.logger.Info("session cleanup: session=%s background_tasks=%d toolkits=%d", s.ID, len(tasks), len(toolkits))

	for _, task := range tasks {
		task.Cancel()
		select {
		case <-task.done:
		case <-ctx.Done():
			s.logger.Warn("cleanup interrupted awaiting task %q: session=%s", task.Name, s.ID)
		}
	}

	for _, toolkit := range toolkits {
		cleaner, ok := toolkit.(Cleaner)
		if !ok {
			continue
		}
		if err := cleaner.Cleanup(ctx); err != nil {
			s.logger.Warn("toolkit cleanup failed: session=%s toolkit=%s err=%v", s.ID, toolkit.Name(), err)
			continue
		}
		s.logger.Info("toolkit cleanup done: session=%s toolkit=%s", s.ID, toolkit.Name())
	}

	s.mu.Lock()
	for task := range s.background {
		delete(s.background, task)
	}
	s.mu.Unlock()
}

// AddConversation appends a history entry. History is append-only and
// survives completion; only session deletion discards it.
func (s *Session) AddConversation(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, ConversationEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// History returns a copy of the conversation history.
func (s *Session) History() []ConversationEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationEntry, len(s.history))
	copy(out, s.history)
	return out
}

// RecentContext renders the last maxEntries history entries for engine
// prompts. maxEntries <= 0 means the whole history.
func (s *Session) RecentContext(maxEntries int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return ""
	}
	entries := s.history
	if maxEntries > 0 && len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	var b strings.Builder
	b.WriteString("=== Recent Conversation ===\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s: %s\n", entry.Role, entry.Content)
	}
	return b.String()
}

// SetLastTaskResult records the most recent terminal output.
func (s *Session) SetLastTaskResult(result string) {
	s.mu.Lock()
	s.lastTaskResult = result
	s.mu.Unlock()
}

// LastTaskResult returns the most recent terminal output.
func (s *Session) LastTaskResult() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTaskResult
}

// SetLastTaskSummary records the most recent run summary.
func (s *Session) SetLastTaskSummary(summary string) {
	s.mu.Lock()
	s.lastTaskSummary = summary
	s.mu.Unlock()
}

// LastTaskSummary returns the most recent run summary.
func (s *Session) LastTaskSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTaskSummary
}

// SetCurrentTaskID records the active sub-task used to tag outbound events.
func (s *Session) SetCurrentTaskID(taskID string) {
	s.mu.Lock()
	s.currentTaskID = taskID
	s.mu.Unlock()
}

// CurrentTaskID returns the active sub-task id.
func (s *Session) CurrentTaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTaskID
}

// SetPaths records the session-scoped filesystem locations.
func (s *Session) SetPaths(fileSavePath, logDir string) {
	s.mu.Lock()
	s.fileSavePath = fileSavePath
	s.logDir = logDir
	s.mu.Unlock()
}

// FileSavePath returns the session's base working directory.
func (s *Session) FileSavePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileSavePath
}

// LogDir returns the session's engine log directory.
func (s *Session) LogDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logDir
}

// SetOverridePath records a mid-session working-directory override.
func (s *Session) SetOverridePath(path string) {
	s.mu.Lock()
	s.overridePath = path
	s.mu.Unlock()
}

// OverridePath returns the working-directory override, empty when unset.
func (s *Session) OverridePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overridePath
}

// WorkingDir resolves the effective working directory: an explicit override
// wins over the base path.
func (s *Session) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overridePath != "" {
		return s.overridePath
	}
	return s.fileSavePath
}

// SetCreds installs the request-scoped credential dictionaries.
func (s *Session) SetCreds(creds, extra map[string]map[string]string) {
	s.mu.Lock()
	s.credsParams = creds
	s.extraParams = extra
	s.mu.Unlock()
}

// Creds returns the credential dictionary for one integration, may be nil.
func (s *Session) Creds(integration string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credsParams[integration]
}

// ExtraParams returns the legacy parameter dictionary for one integration.
func (s *Session) ExtraParams(integration string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extraParams[integration]
}
