package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shardfleet/shardfleet/internal/logging"
)

func newTestMemoryQueue() *MemoryQueue {
	return NewMemoryQueue(fastRetry(), logging.NewNop())
}

func TestMemoryQueue_PublishSubscribe(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.Publish(ctx, "shard-commands", fmt.Sprintf("S%d", i), []byte(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	var c collector
	stop := runSubscriber(t, q, "shard-commands", "g1", c.handle)
	waitFor(t, func() bool { return c.count() == 3 }, 2*time.Second)
	if err := stop(); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i, msg := range c.snapshot() {
		if msg.Key != fmt.Sprintf("S%d", i) || string(msg.Value) != fmt.Sprintf("m%d", i) {
			t.Errorf("message %d = %+v", i, msg)
		}
		if msg.Topic != "shard-commands" {
			t.Errorf("message %d topic = %s", i, msg.Topic)
		}
	}
	if got := q.CommittedOffset("shard-commands", "g1"); got != 3 {
		t.Errorf("CommittedOffset() = %d, want 3", got)
	}
}

func TestMemoryQueue_DeliversMessagesPublishedAfterSubscribe(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	var c collector
	stop := runSubscriber(t, q, "events", "g1", c.handle)
	defer func() { _ = stop() }()

	time.Sleep(20 * time.Millisecond)
	if err := q.Publish(context.Background(), "events", "k", []byte("late")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	waitFor(t, func() bool { return c.count() == 1 }, 2*time.Second)
}

func TestMemoryQueue_Publish_DataCopy(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	data := []byte("original")
	if err := q.Publish(context.Background(), "t", "k", data); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	copy(data, "mutated!")

	msgs := q.Messages("t")
	if len(msgs) != 1 || string(msgs[0].Value) != "original" {
		t.Errorf("stored message changed with caller buffer: %q", msgs[0].Value)
	}
}

func TestMemoryQueue_Publish_ContextCancelled(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Publish(ctx, "t", "k", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(q.Messages("t")) != 0 {
		t.Error("cancelled publish must not append")
	}
}

func TestMemoryQueue_HandlerErrorRetriesInPlace(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	_ = q.Publish(ctx, "t", "S1", []byte("a"))
	_ = q.Publish(ctx, "t", "S1", []byte("b"))

	var mu sync.Mutex
	var seen []string
	failures := 2

	handler := func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(msg.Value))
		if string(msg.Value) == "a" && failures > 0 {
			failures--
			return errors.New("transient")
		}
		return nil
	}

	stop := runSubscriber(t, q, "t", "g1", handler)
	waitFor(t, func() bool { return q.CommittedOffset("t", "g1") == 2 }, 2*time.Second)
	_ = stop()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "a", "a", "b"}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("delivery order = %v, want %v", seen, want)
	}
}

func TestMemoryQueue_ShutdownDuringRetryLeavesUncommitted(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	_ = q.Publish(context.Background(), "t", "S1", []byte("a"))

	var attempts int32
	stop := runSubscriber(t, q, "t", "g1", func(context.Context, Message) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("always failing")
	})
	waitFor(t, func() bool { return atomic.LoadInt32(&attempts) >= 2 }, 2*time.Second)

	if err := stop(); err != nil {
		t.Fatalf("Subscribe() should return nil on shutdown, got %v", err)
	}
	if got := q.CommittedOffset("t", "g1"); got != 0 {
		t.Fatalf("CommittedOffset() = %d, want 0", got)
	}

	// A new member of the same group receives the message again
	var c collector
	stop = runSubscriber(t, q, "t", "g1", c.handle)
	waitFor(t, func() bool { return c.count() == 1 }, 2*time.Second)
	_ = stop()

	if got := q.CommittedOffset("t", "g1"); got != 1 {
		t.Errorf("CommittedOffset() = %d, want 1", got)
	}
}

func TestMemoryQueue_InFlightMessageFinishesOnShutdown(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	_ = q.Publish(context.Background(), "t", "S1", []byte("a"))
	_ = q.Publish(context.Background(), "t", "S1", []byte("b"))

	started := make(chan struct{})
	release := make(chan struct{})
	var handlerCtxErr atomic.Value
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Subscribe(ctx, "t", "g1", func(hctx context.Context, _ Message) error {
			if calls.Add(1) == 1 {
				close(started)
			}
			<-release
			handlerCtxErr.Store(fmt.Sprint(hctx.Err()))
			return nil
		})
	}()

	<-started
	cancel()
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}

	// the handler sees the shutdown but may still complete its message
	if got := handlerCtxErr.Load(); got != context.Canceled.Error() {
		t.Errorf("handler context error = %v, want %v", got, context.Canceled)
	}
	if got := q.CommittedOffset("t", "g1"); got != 1 {
		t.Errorf("CommittedOffset() = %d, want 1", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("handler called %d times, want 1: no message may start after shutdown", got)
	}
}

func TestMemoryQueue_CancelledHandlerLeavesMessageUncommitted(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	_ = q.Publish(context.Background(), "t", "S1", []byte("a"))

	started := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Subscribe(ctx, "t", "g1", func(hctx context.Context, _ Message) error {
			close(started)
			<-hctx.Done()
			return hctx.Err()
		})
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked handler was not released by cancel")
	}

	if got := q.CommittedOffset("t", "g1"); got != 0 {
		t.Errorf("CommittedOffset() = %d, want 0", got)
	}
}

func TestMemoryQueue_GroupsAreIndependent(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	_ = q.Publish(context.Background(), "shard-events", "S1", []byte("e1"))

	var a, b collector
	stopA := runSubscriber(t, q, "shard-events", "notification", a.handle)
	stopB := runSubscriber(t, q, "shard-events", "audit", b.handle)

	waitFor(t, func() bool { return a.count() == 1 && b.count() == 1 }, 2*time.Second)
	_ = stopA()
	_ = stopB()
}

func TestMemoryQueue_Subscribe_DoubleSubscribe(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	stop := runSubscriber(t, q, "t", "g1", func(context.Context, Message) error { return nil })
	defer func() { _ = stop() }()

	waitFor(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.active[groupKey("t", "g1")]
	}, time.Second)

	if err := q.Subscribe(context.Background(), "t", "g1", nil); err == nil {
		t.Error("expected error for second subscription of the same group")
	}
}

func TestMemoryQueue_Close(t *testing.T) {
	q := newTestMemoryQueue()

	done := make(chan error, 1)
	go func() {
		done <- q.Subscribe(context.Background(), "t", "g1", func(context.Context, Message) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Subscribe() error after Close = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after Close")
	}

	if err := q.Publish(context.Background(), "t", "k", nil); err == nil {
		t.Error("expected error publishing to a closed queue")
	}
	// Closing twice is harmless
	if err := q.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestMemoryQueue_ConcurrentPublish(t *testing.T) {
	q := newTestMemoryQueue()
	defer func() { _ = q.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = q.Publish(context.Background(), "t", fmt.Sprintf("k%d", n), []byte("x"))
			}
		}(i)
	}
	wg.Wait()

	if got := len(q.Messages("t")); got != 200 {
		t.Errorf("Messages() = %d, want 200", got)
	}
}

func BenchmarkMemoryQueue_Publish(b *testing.B) {
	q := NewMemoryQueue(DefaultRetryPolicy(), logging.NewNop())
	defer func() { _ = q.Close() }()

	ctx := context.Background()
	data := []byte("benchmark message")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.Publish(ctx, "bench", "k", data)
	}
}
