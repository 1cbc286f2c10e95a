package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/queue"
)

func newTestQueue() *queue.MemoryQueue {
	return queue.NewMemoryQueue(queue.RetryPolicy{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}, logging.NewNop())
}

// fakeProvisioner records commands and fails with err when set
type fakeProvisioner struct {
	mu        sync.Mutex
	calls     []models.ShardCommand
	err       error
	onExecute func(cmd models.ShardCommand)
}

func (p *fakeProvisioner) Execute(_ context.Context, cmd models.ShardCommand) error {
	p.mu.Lock()
	p.calls = append(p.calls, cmd)
	err, hook := p.err, p.onExecute
	p.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return err
}

func (p *fakeProvisioner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

var errTransport = errors.New("broker unavailable")

// failingPublisher rejects every publish
type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, string, []byte) error { return errTransport }
func (failingPublisher) Close() error                                         { return nil }

// countingRecorder tallies outcomes per worker
type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *countingRecorder) ObserveMessage(worker, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[worker+"/"+outcome]++
}

func (r *countingRecorder) ObserveProvisioner(string, error, time.Duration) {}

func (r *countingRecorder) count(worker, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[worker+"/"+outcome]
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// startWorker runs w in a goroutine and returns a stop func that cancels it and
// returns the error Run exited with
func startWorker(t *testing.T, w Worker) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Timeout waiting for worker to stop")
			return nil
		}
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timeout waiting for condition")
}
