package toolkit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhive/internal/protocol"
	"taskhive/internal/session"
)

func drainToolkitEvents(t *testing.T, sess *session.Session, n int) []protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out := make([]protocol.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := sess.GetAction(ctx)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func TestInstrumentEmitsActivationPair(t *testing.T) {
	sess := session.New("t1", nil)
	sess.SetCurrentTaskID("sub-1")
	b := NewBase("browser", "developer", sess, nil)

	result, err := b.Instrument(context.Background(), "open_page", `{"url":"https://example.com"}`,
		func(ctx context.Context) (string, error) {
			return "page loaded", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "page loaded", result)

	events := drainToolkitEvents(t, sess, 2)

	assert.Equal(t, protocol.KindActivateToolkit, events[0].Kind)
	activate := events[0].Payload.(protocol.ToolkitPayload)
	assert.Equal(t, "browser", activate.ToolkitName)
	assert.Equal(t, "developer", activate.AgentName)
	assert.Equal(t, "sub-1", activate.ProcessTaskID)
	assert.Equal(t, "open_page", activate.MethodName)

	assert.Equal(t, protocol.KindDeactivateToolkit, events[1].Kind)
	deactivate := events[1].Payload.(protocol.ToolkitPayload)
	assert.Equal(t, "page loaded", deactivate.Message)
	assert.GreaterOrEqual(t, deactivate.DurationMS, int64(0))
}

func TestInstrumentEmitsDeactivationOnError(t *testing.T) {
	sess := session.New("t1", nil)
	b := NewBase("browser", "developer", sess, nil)

	_, err := b.Instrument(context.Background(), "open_page", "{}",
		func(ctx context.Context) (string, error) {
			return "", errors.New("navigation failed")
		})
	require.Error(t, err)

	events := drainToolkitEvents(t, sess, 2)
	deactivate := events[1].Payload.(protocol.ToolkitPayload)
	assert.Equal(t, protocol.KindDeactivateToolkit, events[1].Kind)
	assert.Equal(t, "navigation failed", deactivate.Message)
}

func TestInstrumentRecoversPanic(t *testing.T) {
	sess := session.New("t1", nil)
	b := NewBase("browser", "developer", sess, nil)

	_, err := b.Instrument(context.Background(), "open_page", "{}",
		func(ctx context.Context) (string, error) {
			panic("nil dereference in driver")
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// The deactivation event still fires so the frontend never shows a
	// toolkit stuck in the active state.
	events := drainToolkitEvents(t, sess, 2)
	assert.Equal(t, protocol.KindDeactivateToolkit, events[1].Kind)
}

func TestInstrumentTruncatesLongArguments(t *testing.T) {
	sess := session.New("t1", nil)
	b := NewBase("editor", "developer", sess, nil)

	long := strings.Repeat("x", 2000)
	_, err := b.Instrument(context.Background(), "write", long,
		func(ctx context.Context) (string, error) {
			return long, nil
		})
	require.NoError(t, err)

	events := drainToolkitEvents(t, sess, 2)
	activate := events[0].Payload.(protocol.ToolkitPayload)
	deactivate := events[1].Payload.(protocol.ToolkitPayload)
	assert.Len(t, activate.Message, maxArgPreview+len("..."))
	assert.True(t, strings.HasSuffix(deactivate.Message, "..."))
}

func TestInstrumentReportsChangedFiles(t *testing.T) {
	sess := session.New("t1", nil)
	workDir := t.TempDir()
	sess.SetPaths(workDir, filepath.Join(workDir, "engine_logs"))
	b := NewBase("editor", "developer", sess, nil)

	_, err := b.Instrument(context.Background(), "write", "{}",
		func(ctx context.Context) (string, error) {
			return "ok", os.WriteFile(filepath.Join(workDir, "out.txt"), []byte("data"), 0o644)
		})
	require.NoError(t, err)

	events := drainToolkitEvents(t, sess, 2)
	deactivate := events[1].Payload.(protocol.ToolkitPayload)
	require.Len(t, deactivate.ChangedFiles, 1)
	assert.Equal(t, "out.txt", deactivate.ChangedFiles[0].Path)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
}
