package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/shardfleet/shardfleet/internal/logging"
)

// Runner runs a set of workers concurrently, one goroutine each
type Runner struct {
	workers []Worker
	logger  *logging.Logger
}

// NewRunner creates a runner for workers
func NewRunner(logger *logging.Logger, workers ...Worker) *Runner {
	if logger == nil {
		logger = logging.Global()
	}
	return &Runner{
		workers: workers,
		logger:  logger.With("component", "workers"),
	}
}

// Workers returns the names of the managed workers
func (r *Runner) Workers() []string {
	names := make([]string, len(r.workers))
	for i, w := range r.workers {
		names[i] = w.Name()
	}
	return names
}

// Run starts every worker and blocks until all of them have returned.
// If one worker fails, the others are stopped and its error is returned.
// Cancelling ctx stops all workers; a clean shutdown returns nil.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for _, w := range r.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()

			r.logger.Info("Worker started", "worker", w.Name())
			err := w.Run(ctx)
			if err != nil {
				r.logger.Error("Worker stopped with error", "worker", w.Name(), "error", err)
				once.Do(func() {
					firstErr = fmt.Errorf("worker %s: %w", w.Name(), err)
					cancel()
				})
				return
			}
			r.logger.Info("Worker stopped", "worker", w.Name())
		}(w)
	}

	wg.Wait()
	return firstErr
}
