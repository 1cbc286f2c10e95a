package utils

import "time"

// =============================================================================
// Timeout Constants
// =============================================================================

// HTTP Handler Timeouts
const (
	// DefaultRequestTimeout is the default timeout for admin API requests
	DefaultRequestTimeout = 30 * time.Second

	// PublishTimeout bounds a single command publish from the admin API
	PublishTimeout = 10 * time.Second

	// HealthCheckTimeout bounds dependency checks behind /health
	HealthCheckTimeout = 3 * time.Second
)

// gRPC Timeouts
const (
	// GRPCDialTimeout is the timeout for establishing agent connections
	GRPCDialTimeout = 10 * time.Second

	// GRPCRequestTimeout is the default timeout for agent calls
	GRPCRequestTimeout = 10 * time.Second

	// GRPCHealthCheckInterval is the interval between health checks for agent connections
	GRPCHealthCheckInterval = 30 * time.Second
)

// =============================================================================
// Worker Constants
// =============================================================================

const (
	// EventSource is the Source field of lifecycle events emitted by the manager
	EventSource = "shardfleet.workers.shard-management"

	// DefaultDrainGraceSeconds is used when a Drain command carries no grace period
	DefaultDrainGraceSeconds = 30

	// StoreWriteTimeout bounds one notification store append
	StoreWriteTimeout = 5 * time.Second

	// ProvisionTimeout bounds one provisioner call; running out is a provisioning failure
	ProvisionTimeout = 30 * time.Second

	// ManifestFetchTimeout bounds one manifest lookup; running out is retried
	ManifestFetchTimeout = 5 * time.Second
)

// =============================================================================
// Paging Constants
// =============================================================================

const (
	// DefaultPageSize is the admin list page size when none is requested
	DefaultPageSize = 50

	// MaxPageSize caps the admin list page size
	MaxPageSize = 500
)

// =============================================================================
// Queue Type Constants
// =============================================================================
// QueueType represents the type of message queue
type QueueType string

const (
	// QueueTypeKafka represents Apache Kafka queue (default)
	QueueTypeKafka QueueType = "kafka"

	// QueueTypeNATS represents NATS JetStream queue
	QueueTypeNATS QueueType = "nats"

	// QueueTypeRedis represents Redis Streams queue
	QueueTypeRedis QueueType = "redis"

	// QueueTypeMemory represents in-memory queue (for development and tests)
	QueueTypeMemory QueueType = "memory"
)
