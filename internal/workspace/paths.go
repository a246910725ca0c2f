// Package workspace derives per-session filesystem paths from a server-owned
// data root. Nothing here mutates process-wide state: every path is computed
// from explicit inputs so concurrent sessions stay isolated.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

const credentialsDirName = ".taskhive_credentials"

// Layout maps session identifiers onto the server-owned data root.
type Layout struct {
	Root string
}

// NewLayout creates a layout rooted at the server-owned data directory.
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// ProjectDir is the directory holding every task workspace for a project.
func (l Layout) ProjectDir(projectID string) string {
	return filepath.Join(l.Root, "projects", "project_"+projectID)
}

// TaskDir is the working directory for one project/task pair.
func (l Layout) TaskDir(projectID, taskID string) string {
	return filepath.Join(l.ProjectDir(projectID), "task_"+taskID)
}

// EnsureTaskDir creates and returns the working directory for a task.
func (l Layout) EnsureTaskDir(projectID, taskID string) (string, error) {
	dir := l.TaskDir(projectID, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task dir %s: %w", dir, err)
	}
	return dir, nil
}

// EnsureLogDir creates and returns the engine log directory inside a task
// workspace.
func (l Layout) EnsureLogDir(workDir string) (string, error) {
	dir := filepath.Join(workDir, "engine_logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir %s: %w", dir, err)
	}
	return dir, nil
}

// CredentialsDir is the per-session directory for decoded secret material.
func CredentialsDir(workDir string) string {
	return filepath.Join(workDir, credentialsDirName)
}
