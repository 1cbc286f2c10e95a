package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Topics        TopicsConfig        `mapstructure:"topics"`
	Workers       WorkersConfig       `mapstructure:"workers"`
	Etcd          EtcdConfig          `mapstructure:"etcd"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Manifests     ManifestsConfig     `mapstructure:"manifests"`
	Provisioner   ProvisionerConfig   `mapstructure:"provisioner"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig represents the admin HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`             // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort        int           `mapstructure:"http_port"`        // HTTP server port
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // Graceful shutdown budget for HTTP and workers
}

// AdminConfig controls the shard administration surface
type AdminConfig struct {
	DrainGraceSeconds int `mapstructure:"drain_grace_seconds"` // Grace attached to Drain commands (default: 30)
	DefaultPageSize   int `mapstructure:"default_page_size"`   // Page size when the request omits one (default: 50)
	MaxPageSize       int `mapstructure:"max_page_size"`       // Upper bound for pageSize (default: 500)
}

// QueueConfig represents message bus configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: kafka (default), nats, redis, memory
	URL      string `mapstructure:"url"`      // Server URL for nats/redis (e.g., nats://localhost:4222)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB       int    `mapstructure:"redis_db"`       // Redis database number (default: 0)
	RedisStream   string `mapstructure:"redis_stream"`   // Redis stream prefix (default: "shardfleet")
	RedisConsumer string `mapstructure:"redis_consumer"` // Redis consumer name (default: hostname)

	// Kafka-specific options
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`   // Kafka broker addresses
	KafkaClientID string   `mapstructure:"kafka_client_id"` // Client id reported to brokers

	// NATS-specific options
	NATSStreamPrefix string `mapstructure:"nats_stream_prefix"` // JetStream stream name prefix (default: "SHARDFLEET")

	// Redelivery of messages whose handler failed
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff"` // First retry delay (default: 200ms)
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff"`     // Cap on retry delay (default: 30s)
}

// TopicsConfig names the topics the pipeline reads and writes
type TopicsConfig struct {
	EnrollmentEvents    string `mapstructure:"enrollment_events"`
	ShardCommands       string `mapstructure:"shard_commands"`
	ShardEvents         string `mapstructure:"shard_events"`
	ShardIngestCommands string `mapstructure:"shard_ingest_commands"`
	PlatformEvents      string `mapstructure:"platform_events"`
}

// WorkersConfig holds one consumer group per worker
type WorkersConfig struct {
	Lifecycle    WorkerConfig `mapstructure:"lifecycle"`
	Ingest       WorkerConfig `mapstructure:"ingest"`
	Notification WorkerConfig `mapstructure:"notification"`
}

// WorkerConfig configures a single worker subscription
type WorkerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	GroupID string `mapstructure:"group_id"`
}

// EtcdConfig represents etcd configuration
type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// RedisConfig is the shared Redis client used by manifest and notification stores
type RedisConfig struct {
	URL      string `mapstructure:"url"` // redis://host:port or host:port
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ManifestsConfig selects where enrollment manifests are read from
type ManifestsConfig struct {
	Backend   string        `mapstructure:"backend"`    // memory, redis, etcd
	KeyPrefix string        `mapstructure:"key_prefix"` // Key namespace in redis/etcd
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`  // 0 disables the lookup cache
}

// ProvisionerConfig selects the shard provisioner backend
type ProvisionerConfig struct {
	Mode    string                   `mapstructure:"mode"` // cluster (alias kubernetes) or agent (alias agentgrpc)
	Cluster ClusterProvisionerConfig `mapstructure:"cluster"`
	Agent   AgentProvisionerConfig   `mapstructure:"agent"`
}

// ClusterProvisionerConfig configures desired-state records written to etcd
type ClusterProvisionerConfig struct {
	KeyPrefix string `mapstructure:"key_prefix"`
}

// AgentProvisionerConfig configures the shard agent gRPC client
type AgentProvisionerConfig struct {
	Address             string        `mapstructure:"address"`
	Timeout             time.Duration `mapstructure:"timeout"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// NotificationsConfig configures the notification worker
type NotificationsConfig struct {
	Store       string       `mapstructure:"store"`        // memory, redis, sqlite
	SQLitePath  string       `mapstructure:"sqlite_path"`  // sqlite database file
	RedisStream string       `mapstructure:"redis_stream"` // redis stream holding notifications
	MaxLen      int64        `mapstructure:"max_len"`      // approximate cap for the redis stream, 0 = unbounded
	Filter      FilterConfig `mapstructure:"filter"`
}

// FilterConfig is the notification allow-list. Empty lists allow everything.
type FilterConfig struct {
	AllowedSources    []string `mapstructure:"allowed_sources"`
	AllowedEventTypes []string `mapstructure:"allowed_event_types"`
	AllowedSeverities []string `mapstructure:"allowed_severities"`
	Expression        string   `mapstructure:"expression"` // optional CEL expression evaluated after the lists
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`  // Enforce X-User / X-Roles principals and role policies
	APIKeys []string `mapstructure:"api_keys"` // Optional API keys required in addition to the principal
}

// MetricsConfig configures the prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, RFC3339Nano, Unix, Kitchen
	Service    string `mapstructure:"service"`     // service field on every entry
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Topics.Validate(); err != nil {
		return fmt.Errorf("topics config: %w", err)
	}

	if err := c.Workers.Validate(); err != nil {
		return fmt.Errorf("workers config: %w", err)
	}

	if err := c.Manifests.Validate(); err != nil {
		return fmt.Errorf("manifests config: %w", err)
	}

	if err := c.Provisioner.Validate(); err != nil {
		return fmt.Errorf("provisioner config: %w", err)
	}

	if err := c.Notifications.Validate(); err != nil {
		return fmt.Errorf("notifications config: %w", err)
	}

	if c.NeedsEtcd() {
		if err := c.Etcd.Validate(); err != nil {
			return fmt.Errorf("etcd config: %w", err)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative")
	}

	return nil
}

// Validate validates admin configuration
func (c *AdminConfig) Validate() error {
	if c.DrainGraceSeconds < 0 {
		return fmt.Errorf("admin.drain_grace_seconds cannot be negative")
	}

	if c.DefaultPageSize < 1 {
		return fmt.Errorf("admin.default_page_size must be at least 1")
	}

	if c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("admin.max_page_size cannot be smaller than admin.default_page_size")
	}

	return nil
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	switch strings.ToLower(c.Type) {
	case "", "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("queue.kafka_brokers is required for kafka")
		}
	case "nats", "redis":
		if c.URL == "" {
			return fmt.Errorf("queue.url is required for %s", c.Type)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported queue.type: %s (supported: kafka, nats, redis, memory)", c.Type)
	}

	if c.RetryInitialBackoff < 0 || c.RetryMaxBackoff < 0 {
		return fmt.Errorf("queue retry backoff cannot be negative")
	}

	return nil
}

// Validate validates topic names
func (c *TopicsConfig) Validate() error {
	topics := map[string]string{
		"enrollment_events":     c.EnrollmentEvents,
		"shard_commands":        c.ShardCommands,
		"shard_events":          c.ShardEvents,
		"shard_ingest_commands": c.ShardIngestCommands,
		"platform_events":       c.PlatformEvents,
	}

	for name, topic := range topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("topics.%s is required", name)
		}
	}

	return nil
}

// Validate validates that every enabled worker owns a consumer group
func (c *WorkersConfig) Validate() error {
	workers := map[string]WorkerConfig{
		"lifecycle":    c.Lifecycle,
		"ingest":       c.Ingest,
		"notification": c.Notification,
	}

	for name, w := range workers {
		if w.Enabled && w.GroupID == "" {
			return fmt.Errorf("workers.%s.group_id is required", name)
		}
	}

	return nil
}

// Validate validates etcd configuration
func (c *EtcdConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}

	return nil
}

// Validate validates manifest lookup configuration
func (c *ManifestsConfig) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "memory", "redis", "etcd":
	default:
		return fmt.Errorf("manifests.backend must be one of: memory, redis, etcd")
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("manifests.cache_ttl cannot be negative")
	}

	return nil
}

// Validate validates provisioner configuration
func (c *ProvisionerConfig) Validate() error {
	switch c.NormalizedMode() {
	case ProvisionerModeCluster:
	case ProvisionerModeAgent:
		if c.Agent.Address == "" {
			return fmt.Errorf("provisioner.agent.address is required in agent mode")
		}
	default:
		return fmt.Errorf("provisioner.mode must be 'cluster' or 'agent', got %q", c.Mode)
	}

	return nil
}

// Validate validates notification configuration
func (c *NotificationsConfig) Validate() error {
	switch strings.ToLower(c.Store) {
	case "memory", "redis":
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("notifications.sqlite_path is required for sqlite")
		}
	default:
		return fmt.Errorf("notifications.store must be one of: memory, redis, sqlite")
	}

	if c.MaxLen < 0 {
		return fmt.Errorf("notifications.max_len cannot be negative")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
