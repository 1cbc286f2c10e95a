package config

import (
	"fmt"
	"strings"
)

// Provisioner modes accepted after normalization
const (
	ProvisionerModeCluster = "cluster"
	ProvisionerModeAgent   = "agent"
)

// NormalizedMode maps the configured provisioner mode and its aliases to
// ProvisionerModeCluster or ProvisionerModeAgent. Unknown values are returned lowercased.
func (c *ProvisionerConfig) NormalizedMode() string {
	mode := strings.ToLower(strings.TrimSpace(c.Mode))
	switch mode {
	case "", "cluster", "kubernetes", "k8s":
		return ProvisionerModeCluster
	case "agent", "agentgrpc", "agent-grpc", "grpc":
		return ProvisionerModeAgent
	default:
		return mode
	}
}

// NeedsEtcd reports whether any configured component talks to etcd
func (c *Config) NeedsEtcd() bool {
	return strings.EqualFold(c.Manifests.Backend, "etcd") ||
		c.Provisioner.NormalizedMode() == ProvisionerModeCluster
}

// NeedsRedis reports whether any configured store talks to the shared Redis client
func (c *Config) NeedsRedis() bool {
	return strings.EqualFold(c.Manifests.Backend, "redis") ||
		strings.EqualFold(c.Notifications.Store, "redis")
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}
