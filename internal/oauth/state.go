// Package oauth tracks in-flight OAuth authorization flows keyed by
// project and provider so the frontend can poll flow status while an agent
// waits for the user to complete the browser leg.
package oauth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"taskhive/internal/logging"
)

// FlowStatus is the lifecycle state of one authorization flow.
type FlowStatus string

const (
	StatusPending     FlowStatus = "pending"
	StatusAuthorizing FlowStatus = "authorizing"
	StatusSuccess     FlowStatus = "success"
	StatusFailed      FlowStatus = "failed"
	StatusCancelled   FlowStatus = "cancelled"
)

// Flow is a snapshot of one project/provider authorization attempt.
type Flow struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Provider  string     `json:"provider"`
	Status    FlowStatus `json:"status"`
	AuthURL   string     `json:"auth_url,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (f Flow) terminal() bool {
	switch f.Status {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StateManager holds flows for all projects. Starting a new flow for a
// project/provider pair supersedes any non-terminal flow for the same key.
type StateManager struct {
	mu     sync.Mutex
	flows  map[string]*Flow
	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger
}

// NewStateManager creates a manager. ttl bounds how long a terminal flow
// stays queryable; non-positive means one hour.
func NewStateManager(ttl time.Duration, logger logging.Logger) *StateManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StateManager{
		flows:  make(map[string]*Flow),
		ttl:    ttl,
		now:    time.Now,
		logger: logging.OrNop(logger),
	}
}

func flowKey(projectID, provider string) string {
	return projectID + ":" + provider
}

// Begin registers a new pending flow, cancelling any non-terminal flow for
// the same project and provider.
func (m *StateManager) Begin(projectID, provider, authURL string) Flow {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := flowKey(projectID, provider)
	if prev, ok := m.flows[key]; ok && !prev.terminal() {
		prev.Status = StatusCancelled
		prev.UpdatedAt = m.now()
		m.logger.Info("oauth flow superseded: project=%s provider=%s", projectID, provider)
	}
	f := &Flow{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Provider:  provider,
		Status:    StatusPending,
		AuthURL:   authURL,
		StartedAt: m.now(),
		UpdatedAt: m.now(),
	}
	m.flows[key] = f
	return *f
}

// Update transitions a flow's status. Unknown keys and transitions out of a
// terminal state are ignored.
func (m *StateManager) Update(projectID, provider string, status FlowStatus, errMsg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowKey(projectID, provider)]
	if !ok || f.terminal() {
		return false
	}
	f.Status = status
	f.Error = errMsg
	f.UpdatedAt = m.now()
	return true
}

// Get returns the current flow for a project/provider pair. Terminal flows
// older than the TTL are treated as absent.
func (m *StateManager) Get(projectID, provider string) (Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[flowKey(projectID, provider)]
	if !ok {
		return Flow{}, false
	}
	if f.terminal() && m.now().Sub(f.UpdatedAt) > m.ttl {
		delete(m.flows, flowKey(projectID, provider))
		return Flow{}, false
	}
	return *f, true
}

// ClearProject cancels and removes every flow belonging to a project. It is
// installed as a session teardown hook so deleting a session cannot leave
// orphaned flows behind.
func (m *StateManager) ClearProject(projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleared := 0
	for key, f := range m.flows {
		if f.ProjectID != projectID {
			continue
		}
		if !f.terminal() {
			f.Status = StatusCancelled
			f.UpdatedAt = m.now()
		}
		delete(m.flows, key)
		cleared++
	}
	return cleared
}
