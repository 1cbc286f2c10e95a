package provisioner

import (
	"context"
	"fmt"

	"github.com/shardfleet/shardfleet/internal/config"
	grpcpool "github.com/shardfleet/shardfleet/internal/grpc"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/metadata"
	"github.com/shardfleet/shardfleet/internal/models"
)

// Provisioner carries out a shard command against the infrastructure that
// hosts shards. Execute must be idempotent: a command may be delivered more than once.
type Provisioner interface {
	Execute(ctx context.Context, cmd models.ShardCommand) error
}

// Deps are the shared clients a provisioner backend may need
type Deps struct {
	Store  metadata.Store           // cluster mode
	Pool   *grpcpool.ConnectionPool // agent mode; created on demand when nil
	Logger *logging.Logger
}

// New selects the backend named by cfg.Mode once, at startup
func New(cfg config.ProvisionerConfig, deps Deps) (Provisioner, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Global()
	}

	switch cfg.NormalizedMode() {
	case config.ProvisionerModeCluster:
		if deps.Store == nil {
			return nil, fmt.Errorf("cluster provisioner requires a metadata store")
		}
		logger.Info("Using cluster provisioner", "key_prefix", cfg.Cluster.KeyPrefix)
		return NewClusterProvisioner(deps.Store, cfg.Cluster.KeyPrefix, logger), nil

	case config.ProvisionerModeAgent:
		pool := deps.Pool
		if pool == nil {
			pool = grpcpool.NewConnectionPool(logger, cfg.Agent.HealthCheckInterval)
		}
		logger.Info("Using agent provisioner", "address", cfg.Agent.Address)
		return NewAgentProvisioner(pool, cfg.Agent.Address, cfg.Agent.Timeout, logger), nil

	default:
		return nil, fmt.Errorf("unsupported provisioner mode: %s (supported: cluster, agent)", cfg.Mode)
	}
}
