package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhive/internal/protocol"
)

func textMsg(t *testing.T, text string) protocol.Message {
	t.Helper()
	msg, err := protocol.New(protocol.KindImprove, protocol.ImprovePayload{Text: text})
	require.NoError(t, err)
	return msg
}

func TestActionQueueFIFO(t *testing.T) {
	q := newActionQueue()
	q.Put(textMsg(t, "first"))
	q.Put(textMsg(t, "second"))
	q.Put(textMsg(t, "third"))

	ctx := context.Background()
	for _, want := range []string{"first", "second", "third"} {
		msg, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, msg.Payload.(protocol.ImprovePayload).Text)
	}
	assert.Equal(t, 0, q.Len())
}

func TestActionQueueGetBlocksUntilPut(t *testing.T) {
	q := newActionQueue()
	got := make(chan protocol.Message, 1)

	go func() {
		msg, err := q.Get(context.Background())
		if err == nil {
			got <- msg
		}
	}()

	select {
	case <-got:
		t.Fatal("Get returned before anything was queued")
	case <-time.After(50 * time.Millisecond):
	}

	q.Put(textMsg(t, "late"))
	select {
	case msg := <-got:
		assert.Equal(t, "late", msg.Payload.(protocol.ImprovePayload).Text)
	case <-time.After(time.Second):
		t.Fatal("Get did not observe the put")
	}
}

func TestActionQueueGetHonorsContext(t *testing.T) {
	q := newActionQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActionQueueConcurrentWaitersDrainEverything(t *testing.T) {
	q := newActionQueue()
	const total = 100

	const waiters = 4

	var wg sync.WaitGroup
	var received atomic.Int32

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Each waiter takes its exact share; the re-armed notify signal must wake
	// every one of them even when puts land while another waiter is draining.
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < total/waiters; j++ {
				if _, err := q.Get(ctx); err != nil {
					return
				}
				received.Add(1)
			}
		}()
	}

	for i := 0; i < total; i++ {
		q.Put(textMsg(t, "item"))
	}
	wg.Wait()

	assert.Equal(t, int32(total), received.Load())
	assert.Equal(t, 0, q.Len())
}
