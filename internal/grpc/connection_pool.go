package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// ConnectionPool manages gRPC connections to shard agents
type ConnectionPool struct {
	mu     sync.RWMutex
	conns  map[string]*grpc.ClientConn
	logger *logging.Logger

	// Health check configuration
	healthCheckInterval time.Duration
	stopCh              chan struct{}
	wg                  sync.WaitGroup
	closed              bool
	closeMu             sync.Mutex
}

// NewConnectionPool creates a new connection pool. A zero healthCheckInterval
// uses utils.GRPCHealthCheckInterval.
func NewConnectionPool(logger *logging.Logger, healthCheckInterval time.Duration) *ConnectionPool {
	if healthCheckInterval <= 0 {
		healthCheckInterval = utils.GRPCHealthCheckInterval
	}

	pool := &ConnectionPool{
		conns:               make(map[string]*grpc.ClientConn),
		logger:              logger,
		healthCheckInterval: healthCheckInterval,
		stopCh:              make(chan struct{}),
	}

	pool.wg.Add(1)
	go pool.healthCheckLoop()

	return pool
}

func usable(conn *grpc.ClientConn) bool {
	state := conn.GetState()
	return state != connectivity.TransientFailure && state != connectivity.Shutdown
}

// GetConnection gets or creates a connection to address
func (p *ConnectionPool) GetConnection(address string) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, exists := p.conns[address]
	p.mu.RUnlock()

	if exists && usable(conn) {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeMu.Lock()
	closed := p.closed
	p.closeMu.Unlock()
	if closed {
		return nil, fmt.Errorf("connection pool closed")
	}

	// Double-check after acquiring write lock
	if conn, exists := p.conns[address]; exists {
		if usable(conn) {
			return conn, nil
		}
		_ = conn.Close()
		delete(p.conns, address)
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	p.conns[address] = conn
	p.logger.Debug("Created new gRPC connection", "address", address)

	return conn, nil
}

// healthCheckLoop periodically checks connection health
func (p *ConnectionPool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.checkConnections()
		}
	}
}

// checkConnections drops failed connections and nudges idle ones to reconnect
func (p *ConnectionPool) checkConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for address, conn := range p.conns {
		state := conn.GetState()

		switch state {
		case connectivity.TransientFailure, connectivity.Shutdown:
			_ = conn.Close()
			delete(p.conns, address)
			p.logger.Warn("Removed unhealthy gRPC connection",
				"address", address,
				"state", state.String())

		case connectivity.Idle:
			conn.Connect()
		}
	}
}

// GetConnectionCount returns the number of pooled connections
func (p *ConnectionPool) GetConnectionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// GetConnectionStates returns the state of all connections
func (p *ConnectionPool) GetConnectionStates() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make(map[string]string, len(p.conns))
	for address, conn := range p.conns {
		states[address] = conn.GetState().String()
	}
	return states
}

// WaitReady blocks until the connection to address is Ready or ctx ends
func (p *ConnectionPool) WaitReady(ctx context.Context, address string) error {
	conn, err := p.GetConnection(address)
	if err != nil {
		return err
	}

	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.Idle {
			conn.Connect()
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("agent %s not ready: %w", address, ctx.Err())
		}
	}
}

// Close closes all connections and stops the health checker
func (p *ConnectionPool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	p.closeMu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	for address, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("Failed to close gRPC connection", "address", address, "error", err)
		}
	}

	p.conns = make(map[string]*grpc.ClientConn)
	p.logger.Info("Closed all gRPC connections")
}
