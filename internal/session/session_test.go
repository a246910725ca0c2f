package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhive/internal/protocol"
)

type fakeToolkit struct {
	name       string
	cleanups   int
	cleanupErr error
}

func (f *fakeToolkit) Name() string { return f.name }

func (f *fakeToolkit) Cleanup(ctx context.Context) error {
	f.cleanups++
	return f.cleanupErr
}

func TestPutActionRejectsInvalidMessage(t *testing.T) {
	sess := New("t1", nil)
	err := sess.PutAction(protocol.Message{Kind: "no_such_kind"})
	assert.ErrorIs(t, err, protocol.ErrUnknownKind)
	assert.Equal(t, 0, sess.QueueLen())
}

func TestPutActionRefreshesAccessClock(t *testing.T) {
	sess := New("t1", nil)
	before := sess.LastAccessed()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, sess.PutAction(mustMsg(t, protocol.KindStart, protocol.StartPayload{})))
	assert.True(t, sess.LastAccessed().After(before))
}

func mustMsg(t *testing.T, kind protocol.Kind, payload any) protocol.Message {
	t.Helper()
	msg, err := protocol.New(kind, payload)
	require.NoError(t, err)
	return msg
}

func TestHumanInputRendezvous(t *testing.T) {
	sess := New("t1", nil)
	ctx := context.Background()

	require.NoError(t, sess.PutHumanInput(ctx, "developer", "yes, go ahead"))

	reply, err := sess.GetHumanInput(ctx, "developer")
	require.NoError(t, err)
	assert.Equal(t, "yes, go ahead", reply)
}

func TestHumanInputSecondUnconsumedReplyBlocks(t *testing.T) {
	sess := New("t1", nil)
	ctx := context.Background()

	require.NoError(t, sess.PutHumanInput(ctx, "developer", "first"))

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := sess.PutHumanInput(blocked, "developer", "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHumanInputChannelsArePerAgent(t *testing.T) {
	sess := New("t1", nil)
	ctx := context.Background()

	require.NoError(t, sess.PutHumanInput(ctx, "developer", "dev answer"))
	require.NoError(t, sess.PutHumanInput(ctx, "searcher", "search answer"))

	reply, err := sess.GetHumanInput(ctx, "searcher")
	require.NoError(t, err)
	assert.Equal(t, "search answer", reply)
}

func TestRegisterToolkitDeduplicatesByIdentity(t *testing.T) {
	sess := New("t1", nil)
	a := &fakeToolkit{name: "browser"}
	b := &fakeToolkit{name: "browser"}

	sess.RegisterToolkit(a)
	sess.RegisterToolkit(a)
	sess.RegisterToolkit(b)

	// Same instance twice collapses, distinct instances of the same name do
	// not.
	assert.Len(t, sess.RegisteredToolkits(), 2)
}

func TestSpawnUntracksItselfOnCompletion(t *testing.T) {
	sess := New("t1", nil)

	task := sess.Spawn("quick", func(ctx context.Context) {})
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("background task never finished")
	}

	require.Eventually(t, func() bool {
		return sess.BackgroundTaskCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCleanupCancelsTasksAndRunsToolkits(t *testing.T) {
	sess := New("t1", nil)

	started := make(chan struct{})
	sess.Spawn("long", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	failing := &fakeToolkit{name: "bad", cleanupErr: errors.New("boom")}
	healthy := &fakeToolkit{name: "good"}
	sess.RegisterToolkit(failing)
	sess.RegisterToolkit(healthy)

	sess.Cleanup(context.Background())

	assert.Equal(t, 0, sess.BackgroundTaskCount())
	assert.Empty(t, sess.RegisteredToolkits())
	// A failing toolkit never stops the others.
	assert.Equal(t, 1, failing.cleanups)
	assert.Equal(t, 1, healthy.cleanups)
}

func TestCleanupIsIdempotent(t *testing.T) {
	sess := New("t1", nil)
	tk := &fakeToolkit{name: "once"}
	sess.RegisterToolkit(tk)

	sess.Cleanup(context.Background())
	sess.Cleanup(context.Background())

	assert.Equal(t, 1, tk.cleanups)
}

func TestSpawnAfterCleanupIsANoOp(t *testing.T) {
	sess := New("t1", nil)
	sess.Cleanup(context.Background())

	// A runner racing teardown may still try to spawn work. Nothing must
	// run, and nothing may linger with no canceller left.
	ran := make(chan struct{}, 1)
	task := sess.Spawn("late", func(ctx context.Context) {
		ran <- struct{}{}
	})

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("rejected task handle never completed")
	}
	assert.Equal(t, 0, sess.BackgroundTaskCount())

	select {
	case <-ran:
		t.Fatal("background work ran after cleanup")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestApplyTransitionTable(t *testing.T) {
	cases := []struct {
		from    Status
		trigger protocol.Kind
		want    Status
		moved   bool
	}{
		{StatusConfirming, protocol.KindStart, StatusProcessing, true},
		{StatusConfirming, protocol.KindUpdateTask, StatusConfirmed, true},
		{StatusConfirming, protocol.KindStop, StatusDone, true},
		{StatusConfirmed, protocol.KindStart, StatusProcessing, true},
		{StatusProcessing, protocol.KindStop, StatusDone, true},
		{StatusProcessing, protocol.KindSkipTask, StatusDone, true},
		{StatusProcessing, protocol.KindEnd, StatusDone, true},
		{StatusDone, protocol.KindImprove, StatusConfirming, true},
		{StatusDone, protocol.KindStart, StatusDone, false},
		{StatusProcessing, protocol.KindImprove, StatusProcessing, false},
	}

	for _, tc := range cases {
		sess := New("t1", nil)
		sess.SetStatus(tc.from)
		got, moved := sess.ApplyTransition(tc.trigger)
		assert.Equal(t, tc.want, got, "%s --%s-->", tc.from, tc.trigger)
		assert.Equal(t, tc.moved, moved, "%s --%s-->", tc.from, tc.trigger)
	}
}

func TestImproveAfterDonePreservesHistoryAndResult(t *testing.T) {
	sess := New("t1", nil)
	sess.AddConversation("user", "build a scraper")
	sess.AddConversation("assistant", "done, see scraper.py")
	sess.SetLastTaskResult("scraper.py written")
	sess.SetStatus(StatusDone)

	got, moved := sess.ApplyTransition(protocol.KindImprove)
	require.True(t, moved)
	assert.Equal(t, StatusConfirming, got)

	// Re-entering the planning phase keeps everything the next turn builds on.
	assert.Len(t, sess.History(), 2)
	assert.Equal(t, "scraper.py written", sess.LastTaskResult())
}

func TestRecentContextRendersTail(t *testing.T) {
	sess := New("t1", nil)
	assert.Empty(t, sess.RecentContext(5))

	sess.AddConversation("user", "one")
	sess.AddConversation("assistant", "two")
	sess.AddConversation("user", "three")

	out := sess.RecentContext(2)
	assert.True(t, strings.HasPrefix(out, "=== Recent Conversation ==="))
	assert.NotContains(t, out, "one")
	assert.Contains(t, out, "assistant: two")
	assert.Contains(t, out, "user: three")
}

func TestWorkingDirOverrideWins(t *testing.T) {
	sess := New("t1", nil)
	sess.SetPaths("/data/task_1", "/data/task_1/engine_logs")
	assert.Equal(t, "/data/task_1", sess.WorkingDir())

	sess.SetOverridePath("/repos/checkout")
	assert.Equal(t, "/repos/checkout", sess.WorkingDir())
}

func TestSessionIsolation(t *testing.T) {
	a := New("a", nil)
	b := New("b", nil)

	require.NoError(t, a.PutAction(mustMsg(t, protocol.KindStart, protocol.StartPayload{})))
	a.AddConversation("user", "only for a")

	assert.Equal(t, 1, a.QueueLen())
	assert.Equal(t, 0, b.QueueLen())
	assert.Empty(t, b.History())
}
