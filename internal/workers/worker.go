package workers

import (
	"context"
	"time"

	"github.com/shardfleet/shardfleet/internal/queue"
)

// Worker names, used in logs and metric labels
const (
	LifecycleWorkerName    = "lifecycle"
	IngestWorkerName       = "ingest"
	NotificationWorkerName = "notification"
)

// Worker is a long-lived consumer of one topic. Run blocks until ctx is
// cancelled or the subscription fails.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Recorder receives per-message outcomes. metrics.Registry implements it.
type Recorder interface {
	ObserveMessage(worker, outcome string, d time.Duration)
	ObserveProvisioner(commandType string, err error, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMessage(string, string, time.Duration)      {}
func (nopRecorder) ObserveProvisioner(string, error, time.Duration) {}

func orNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// Subscription names the topic and consumer group a worker reads
type Subscription struct {
	Topic string
	Group string
}

func subscribe(ctx context.Context, sub queue.Subscriber, s Subscription, handler queue.Handler) error {
	return sub.Subscribe(ctx, s.Topic, s.Group, handler)
}
