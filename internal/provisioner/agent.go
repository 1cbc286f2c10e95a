package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	grpcpool "github.com/shardfleet/shardfleet/internal/grpc"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// AgentProvisioner forwards each command to a node agent over gRPC
type AgentProvisioner struct {
	pool    *grpcpool.ConnectionPool
	address string
	timeout time.Duration
	logger  *logging.Logger
}

// NewAgentProvisioner creates a new AgentProvisioner. A zero timeout uses
// utils.GRPCRequestTimeout.
func NewAgentProvisioner(pool *grpcpool.ConnectionPool, address string, timeout time.Duration, logger *logging.Logger) *AgentProvisioner {
	if timeout <= 0 {
		timeout = utils.GRPCRequestTimeout
	}
	return &AgentProvisioner{
		pool:    pool,
		address: address,
		timeout: timeout,
		logger:  logger.With("component", "provisioner.agent"),
	}
}

// CommandToStruct renders cmd with its JSON field names
func CommandToStruct(cmd models.ShardCommand) (*structpb.Struct, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// Execute sends the command and fails unless the agent accepts it
func (p *AgentProvisioner) Execute(ctx context.Context, cmd models.ShardCommand) error {
	conn, err := p.pool.GetConnection(p.address)
	if err != nil {
		return fmt.Errorf("agent %s unavailable: %w", p.address, err)
	}

	req, err := CommandToStruct(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := grpcpool.InvokeExecute(callCtx, conn, req)
	if err != nil {
		return fmt.Errorf("agent %s execute %s failed: %w", p.address, cmd.Type, err)
	}

	fields := resp.GetFields()
	if !fields["accepted"].GetBoolValue() {
		message := fields["message"].GetStringValue()
		if message == "" {
			message = "no reason given"
		}
		return fmt.Errorf("agent rejected %s for shard %s: %s", cmd.Type, cmd.ShardID, message)
	}

	p.logger.Info("Agent executed command",
		"shard_id", cmd.ShardID,
		"command", string(cmd.Type),
		"correlation_id", cmd.CorrelationID)
	return nil
}

// Close releases pooled agent connections
func (p *AgentProvisioner) Close() {
	p.pool.Close()
}
