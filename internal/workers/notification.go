package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/metrics"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/notification"
	"github.com/shardfleet/shardfleet/internal/queue"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// NotificationWorker stores the platform events that pass its filter
type NotificationWorker struct {
	subscriber queue.Subscriber
	store      notification.Store
	filter     *Filter
	events     Subscription
	recorder   Recorder
	logger     *logging.Logger
}

// NotificationDeps wires a NotificationWorker
type NotificationDeps struct {
	Subscriber queue.Subscriber
	Store      notification.Store
	Filter     *Filter
	Events     Subscription
	Recorder   Recorder
	Logger     *logging.Logger
}

// NewNotificationWorker creates a notification worker. A nil Filter accepts everything.
func NewNotificationWorker(deps NotificationDeps) *NotificationWorker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Global()
	}
	filter := deps.Filter
	if filter == nil {
		filter = &Filter{}
	}
	return &NotificationWorker{
		subscriber: deps.Subscriber,
		store:      deps.Store,
		filter:     filter,
		events:     deps.Events,
		recorder:   orNop(deps.Recorder),
		logger:     logger.With("worker", NotificationWorkerName),
	}
}

func (w *NotificationWorker) Name() string { return NotificationWorkerName }

// Run consumes the platform events topic until ctx is cancelled
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.logger.Info("Event notification worker subscribed", "topic", w.events.Topic, "group", w.events.Group)
	return subscribe(ctx, w.subscriber, w.events, w.handle)
}

func (w *NotificationWorker) handle(ctx context.Context, msg queue.Message) error {
	start := time.Now()

	env, err := models.DecodeEnvelope[json.RawMessage](msg.Value)
	if err != nil {
		w.logger.Warn("Dropping malformed platform event", "key", msg.Key, "error", err)
		w.recorder.ObserveMessage(NotificationWorkerName, metrics.OutcomeSkipped, time.Since(start))
		return nil
	}

	ok, err := w.filter.Allow(env)
	if err != nil {
		w.logger.Warn("Filter expression failed, rejecting event", "event_id", env.EventID, "error", err)
	}
	if !ok {
		w.logger.Info("Filtered event", "event_type", env.EventType, "source", env.Source, "severity", env.Severity)
		w.recorder.ObserveMessage(NotificationWorkerName, metrics.OutcomeSkipped, time.Since(start))
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, utils.StoreWriteTimeout)
	defer cancel()

	if err := w.store.Append(storeCtx, env); err != nil {
		w.logger.Error("Failed to store notification", "event_id", env.EventID, "error", err)
		w.recorder.ObserveMessage(NotificationWorkerName, metrics.OutcomeRetry, time.Since(start))
		return fmt.Errorf("store notification %s: %w", env.EventID, err)
	}

	w.recorder.ObserveMessage(NotificationWorkerName, metrics.OutcomeProcessed, time.Since(start))
	return nil
}
