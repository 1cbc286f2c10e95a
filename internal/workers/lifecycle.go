package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/metrics"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/provisioner"
	"github.com/shardfleet/shardfleet/internal/queue"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// ShardStore is the part of the shard registry the lifecycle worker writes to
type ShardStore interface {
	Get(shardID string) (models.Shard, bool)
	Upsert(shard models.Shard)
	UpdateStatus(shardID string, status models.ShardStatus)
}

// LifecycleWorker executes shard commands: it calls the provisioner, moves the
// shard through its state machine in the registry and publishes the outcome to
// the shard events topic.
type LifecycleWorker struct {
	subscriber  queue.Subscriber
	publisher   queue.Publisher
	provisioner provisioner.Provisioner
	shards      ShardStore
	commands    Subscription
	eventsTopic string
	recorder    Recorder
	logger      *logging.Logger
}

// LifecycleDeps wires a LifecycleWorker
type LifecycleDeps struct {
	Subscriber  queue.Subscriber
	Publisher   queue.Publisher
	Provisioner provisioner.Provisioner
	Shards      ShardStore
	Commands    Subscription
	EventsTopic string
	Recorder    Recorder
	Logger      *logging.Logger
}

// NewLifecycleWorker creates a lifecycle worker
func NewLifecycleWorker(deps LifecycleDeps) *LifecycleWorker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Global()
	}
	return &LifecycleWorker{
		subscriber:  deps.Subscriber,
		publisher:   deps.Publisher,
		provisioner: deps.Provisioner,
		shards:      deps.Shards,
		commands:    deps.Commands,
		eventsTopic: deps.EventsTopic,
		recorder:    orNop(deps.Recorder),
		logger:      logger.With("worker", LifecycleWorkerName),
	}
}

func (w *LifecycleWorker) Name() string { return LifecycleWorkerName }

// Run consumes the command topic until ctx is cancelled
func (w *LifecycleWorker) Run(ctx context.Context) error {
	w.logger.Info("Shard lifecycle worker subscribed", "topic", w.commands.Topic, "group", w.commands.Group)
	return subscribe(ctx, w.subscriber, w.commands, w.handle)
}

// transition is the registry status and event a successful command produces
type transition struct {
	status    models.ShardStatus
	eventType string
	payload   interface{}
}

func transitionFor(cmd models.ShardCommand) (transition, error) {
	switch cmd.Type {
	case models.CommandCreate:
		return transition{
			status:    models.ShardStatusActive,
			eventType: models.EventTypeShardProvisioned,
			payload:   models.ShardProvisioned{ShardID: cmd.ShardID, Modality: cmd.Modality, Status: models.ShardStatusActive},
		}, nil
	case models.CommandStart, models.CommandResume:
		return transition{
			status:    models.ShardStatusActive,
			eventType: models.EventTypeShardResumed,
			payload:   models.ShardStateChanged{ShardID: cmd.ShardID, Status: models.ShardStatusActive},
		}, nil
	case models.CommandStop:
		return transition{
			status:    models.ShardStatusStopped,
			eventType: models.EventTypeShardStopped,
			payload:   models.ShardStopped{ShardID: cmd.ShardID, Status: models.ShardStatusStopped},
		}, nil
	case models.CommandDrain:
		return transition{
			status:    models.ShardStatusDraining,
			eventType: models.EventTypeShardDrained,
			payload:   models.ShardDrained{ShardID: cmd.ShardID, Status: models.ShardStatusDraining},
		}, nil
	default:
		return transition{}, fmt.Errorf("unsupported command type %q", cmd.Type)
	}
}

func (w *LifecycleWorker) handle(ctx context.Context, msg queue.Message) error {
	start := time.Now()

	var cmd models.ShardCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil || cmd.ShardID == "" || cmd.Type == "" {
		w.logger.Warn("Dropping malformed shard command", "key", msg.Key, "error", err)
		w.recorder.ObserveMessage(LifecycleWorkerName, metrics.OutcomeSkipped, time.Since(start))
		return nil
	}

	logger := w.logger.With(
		"command_id", cmd.CommandID,
		"command_type", cmd.Type,
		"shard_id", cmd.ShardID,
		"correlation_id", cmd.CorrelationID,
	)

	err := w.execute(ctx, logger, cmd)
	if err == nil {
		w.recorder.ObserveMessage(LifecycleWorkerName, metrics.OutcomeProcessed, time.Since(start))
		return nil
	}

	// Interrupted work is redelivered rather than recorded as a shard failure
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		logger.Warn("Shard command interrupted", "error", err)
		w.recorder.ObserveMessage(LifecycleWorkerName, metrics.OutcomeRetry, time.Since(start))
		return err
	}

	logger.Error("Failed to process shard command", "error", err)

	failure := models.ShardFailed{ShardID: cmd.ShardID, Reason: err.Error()}
	if pubErr := w.publishEvent(ctx, cmd, models.EventTypeShardFailed, failure); pubErr != nil {
		w.recorder.ObserveMessage(LifecycleWorkerName, metrics.OutcomeRetry, time.Since(start))
		return fmt.Errorf("failed to report failure of command %s: %w", cmd.CommandID, pubErr)
	}
	w.shards.UpdateStatus(cmd.ShardID, models.ShardStatusFailed)

	w.recorder.ObserveMessage(LifecycleWorkerName, metrics.OutcomeFailed, time.Since(start))
	return nil
}

func (w *LifecycleWorker) execute(ctx context.Context, logger *logging.Logger, cmd models.ShardCommand) error {
	logger.Info("Executing shard command")

	t, err := transitionFor(cmd)
	if err != nil {
		return err
	}

	if cmd.Type == models.CommandCreate {
		shard := models.Shard{
			ShardID:  cmd.ShardID,
			Modality: cmd.Modality,
			Capacity: cmd.Capacity,
			Status:   models.ShardStatusProvisioning,
		}
		// A redelivered Create keeps the original creation time
		if existing, ok := w.shards.Get(cmd.ShardID); ok {
			shard.CreatedUtc = existing.CreatedUtc
		}
		w.shards.Upsert(shard)
	}

	started := time.Now()
	provCtx, cancel := context.WithTimeout(ctx, utils.ProvisionTimeout)
	err = w.provisioner.Execute(provCtx, cmd)
	cancel()
	w.recorder.ObserveProvisioner(string(cmd.Type), err, time.Since(started))
	if err != nil {
		return fmt.Errorf("provisioner rejected %s: %w", cmd.Type, err)
	}

	w.shards.UpdateStatus(cmd.ShardID, t.status)

	if err := w.publishEvent(ctx, cmd, t.eventType, t.payload); err != nil {
		return err
	}

	logger.Info("Shard command completed", "status", t.status, "event_type", t.eventType)
	return nil
}

// publishEvent wraps data in an envelope tagged with the command's correlation id
// and publishes it keyed by ShardID
func (w *LifecycleWorker) publishEvent(ctx context.Context, cmd models.ShardCommand, eventType string, data interface{}) error {
	env := models.NewEnvelope(eventType, utils.EventSource, cmd.CorrelationID, data)

	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, utils.PublishTimeout)
	defer cancel()

	if err := w.publisher.Publish(pubCtx, w.eventsTopic, cmd.ShardID, value); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}
