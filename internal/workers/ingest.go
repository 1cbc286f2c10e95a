package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/manifest"
	"github.com/shardfleet/shardfleet/internal/metrics"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/queue"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// Router resolves the shard that owns an identifier
type Router interface {
	ResolveTargetShard(ctx context.Context, modality, identifier string) (string, error)
}

// IngestWorker turns committed enrollments into ingest commands addressed to
// the shard that owns the enrolled identifier
type IngestWorker struct {
	subscriber    queue.Subscriber
	publisher     queue.Publisher
	manifests     manifest.Lookup
	router        Router
	enrollments   Subscription
	commandsTopic string
	recorder      Recorder
	logger        *logging.Logger
}

// IngestDeps wires an IngestWorker
type IngestDeps struct {
	Subscriber    queue.Subscriber
	Publisher     queue.Publisher
	Manifests     manifest.Lookup
	Router        Router
	Enrollments   Subscription
	CommandsTopic string
	Recorder      Recorder
	Logger        *logging.Logger
}

// NewIngestWorker creates an ingest routing worker
func NewIngestWorker(deps IngestDeps) *IngestWorker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Global()
	}
	return &IngestWorker{
		subscriber:    deps.Subscriber,
		publisher:     deps.Publisher,
		manifests:     deps.Manifests,
		router:        deps.Router,
		enrollments:   deps.Enrollments,
		commandsTopic: deps.CommandsTopic,
		recorder:      orNop(deps.Recorder),
		logger:        logger.With("worker", IngestWorkerName),
	}
}

func (w *IngestWorker) Name() string { return IngestWorkerName }

// Run consumes the enrollment topic until ctx is cancelled
func (w *IngestWorker) Run(ctx context.Context) error {
	w.logger.Info("Enrollment ingest worker subscribed", "topic", w.enrollments.Topic, "group", w.enrollments.Group)
	return subscribe(ctx, w.subscriber, w.enrollments, w.handle)
}

func (w *IngestWorker) skip(start time.Time) error {
	w.recorder.ObserveMessage(IngestWorkerName, metrics.OutcomeSkipped, time.Since(start))
	return nil
}

func (w *IngestWorker) retry(start time.Time, err error) error {
	w.recorder.ObserveMessage(IngestWorkerName, metrics.OutcomeRetry, time.Since(start))
	return err
}

func (w *IngestWorker) handle(ctx context.Context, msg queue.Message) error {
	start := time.Now()

	env, err := models.DecodeEnvelope[json.RawMessage](msg.Value)
	if err != nil {
		w.logger.Warn("Dropping malformed enrollment event", "key", msg.Key, "error", err)
		return w.skip(start)
	}

	if env.EventType != "" && env.EventType != models.EventTypeEnrollmentCommitted {
		w.logger.Debug("Ignoring event", "event_id", env.EventID, "event_type", env.EventType)
		return w.skip(start)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		w.logger.Warn("Dropping enrollment event without data", "event_id", env.EventID)
		return w.skip(start)
	}

	var enrollment models.EnrollmentCommitted
	if err := json.Unmarshal(env.Data, &enrollment); err != nil {
		w.logger.Warn("Dropping enrollment event with invalid data", "event_id", env.EventID, "error", err)
		return w.skip(start)
	}
	if enrollment.Identifier == "" || enrollment.Modality == "" {
		w.logger.Warn("Dropping enrollment event without identifier or modality", "event_id", env.EventID)
		return w.skip(start)
	}

	logger := w.logger.With(
		"event_id", env.EventID,
		"identifier", enrollment.Identifier,
		"modality", enrollment.Modality,
		"manifest_id", enrollment.ManifestID,
		"correlation_id", env.CorrelationID,
	)

	fetchCtx, cancelFetch := context.WithTimeout(ctx, utils.ManifestFetchTimeout)
	_, err = w.manifests.GetManifestJSON(fetchCtx, enrollment.ManifestID)
	cancelFetch()
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			logger.Warn("Manifest missing for enrollment")
			return w.skip(start)
		}
		if errors.Is(err, manifest.ErrInvalidManifest) {
			logger.Warn("Manifest unusable for enrollment", "error", err)
			return w.skip(start)
		}
		logger.Error("Failed to fetch manifest", "error", err)
		return w.retry(start, fmt.Errorf("fetch manifest %s: %w", enrollment.ManifestID, err))
	}

	target, err := w.router.ResolveTargetShard(ctx, enrollment.Modality, enrollment.Identifier)
	if err != nil {
		logger.Warn("Failed to resolve target shard", "error", err)
		return w.retry(start, fmt.Errorf("route %s: %w", enrollment.Identifier, err))
	}

	cmd := models.ShardIngestCommand{
		CommandID:     models.NewID(),
		TargetShardID: target,
		Modality:      enrollment.Modality,
		Identifier:    enrollment.Identifier,
		ManifestID:    enrollment.ManifestID,
		CorrelationID: env.CorrelationID,
		Utc:           time.Now().UTC(),
	}

	value, err := json.Marshal(cmd)
	if err != nil {
		return w.retry(start, fmt.Errorf("encode ingest command: %w", err))
	}

	pubCtx, cancel := context.WithTimeout(ctx, utils.PublishTimeout)
	defer cancel()

	if err := w.publisher.Publish(pubCtx, w.commandsTopic, enrollment.Identifier, value); err != nil {
		logger.Error("Failed to publish ingest command", "error", err)
		return w.retry(start, fmt.Errorf("publish ingest command: %w", err))
	}

	logger.Info("Published ingest command", "shard_id", target, "command_id", cmd.CommandID)
	w.recorder.ObserveMessage(IngestWorkerName, metrics.OutcomeProcessed, time.Since(start))
	return nil
}
