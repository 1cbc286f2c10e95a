package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shardfleet/shardfleet/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SHARDFLEET_QUEUE_TYPE
const EnvPrefix = "SHARDFLEET"

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/shardfleet")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found; use defaults and environment
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults mirrors DefaultConfig so that partial files and env-only setups work
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout.String())

	v.SetDefault("admin.drain_grace_seconds", d.Admin.DrainGraceSeconds)
	v.SetDefault("admin.default_page_size", d.Admin.DefaultPageSize)
	v.SetDefault("admin.max_page_size", d.Admin.MaxPageSize)

	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.url", d.Queue.URL)
	v.SetDefault("queue.kafka_brokers", d.Queue.KafkaBrokers)
	v.SetDefault("queue.kafka_client_id", d.Queue.KafkaClientID)
	v.SetDefault("queue.redis_stream", d.Queue.RedisStream)
	v.SetDefault("queue.nats_stream_prefix", d.Queue.NATSStreamPrefix)
	v.SetDefault("queue.retry_initial_backoff", d.Queue.RetryInitialBackoff.String())
	v.SetDefault("queue.retry_max_backoff", d.Queue.RetryMaxBackoff.String())

	v.SetDefault("topics.enrollment_events", d.Topics.EnrollmentEvents)
	v.SetDefault("topics.shard_commands", d.Topics.ShardCommands)
	v.SetDefault("topics.shard_events", d.Topics.ShardEvents)
	v.SetDefault("topics.shard_ingest_commands", d.Topics.ShardIngestCommands)
	v.SetDefault("topics.platform_events", d.Topics.PlatformEvents)

	v.SetDefault("workers.lifecycle.enabled", d.Workers.Lifecycle.Enabled)
	v.SetDefault("workers.lifecycle.group_id", d.Workers.Lifecycle.GroupID)
	v.SetDefault("workers.ingest.enabled", d.Workers.Ingest.Enabled)
	v.SetDefault("workers.ingest.group_id", d.Workers.Ingest.GroupID)
	v.SetDefault("workers.notification.enabled", d.Workers.Notification.Enabled)
	v.SetDefault("workers.notification.group_id", d.Workers.Notification.GroupID)

	v.SetDefault("etcd.endpoints", d.Etcd.Endpoints)
	v.SetDefault("etcd.dial_timeout", d.Etcd.DialTimeout.String())

	v.SetDefault("redis.url", d.Redis.URL)

	v.SetDefault("manifests.backend", d.Manifests.Backend)
	v.SetDefault("manifests.key_prefix", d.Manifests.KeyPrefix)
	v.SetDefault("manifests.cache_ttl", d.Manifests.CacheTTL.String())

	v.SetDefault("provisioner.mode", d.Provisioner.Mode)
	v.SetDefault("provisioner.cluster.key_prefix", d.Provisioner.Cluster.KeyPrefix)
	v.SetDefault("provisioner.agent.timeout", d.Provisioner.Agent.Timeout.String())
	v.SetDefault("provisioner.agent.health_check_interval", d.Provisioner.Agent.HealthCheckInterval.String())

	v.SetDefault("notifications.store", d.Notifications.Store)
	v.SetDefault("notifications.sqlite_path", d.Notifications.SQLitePath)
	v.SetDefault("notifications.redis_stream", d.Notifications.RedisStream)
	v.SetDefault("notifications.max_len", d.Notifications.MaxLen)

	v.SetDefault("auth.enabled", d.Auth.Enabled)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
	v.SetDefault("logging.service", d.Logging.Service)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        5600,
			ShutdownTimeout: 15 * time.Second,
		},
		Admin: AdminConfig{
			DrainGraceSeconds: utils.DefaultDrainGraceSeconds,
			DefaultPageSize:   utils.DefaultPageSize,
			MaxPageSize:       utils.MaxPageSize,
		},
		Queue: QueueConfig{
			Type:                "kafka",
			URL:                 "nats://localhost:4222",
			KafkaBrokers:        []string{"localhost:9092"},
			KafkaClientID:       "shardfleet",
			RedisStream:         "shardfleet",
			NATSStreamPrefix:    "SHARDFLEET",
			RetryInitialBackoff: 200 * time.Millisecond,
			RetryMaxBackoff:     30 * time.Second,
		},
		Topics: TopicsConfig{
			EnrollmentEvents:    "enrollment-events",
			ShardCommands:       "shard-commands",
			ShardEvents:         "shard-events",
			ShardIngestCommands: "shard-ingest-commands",
			PlatformEvents:      "platform-events",
		},
		Workers: WorkersConfig{
			Lifecycle:    WorkerConfig{Enabled: true, GroupID: "sm-shard-management"},
			Ingest:       WorkerConfig{Enabled: true, GroupID: "sm-enrollment-ingest"},
			Notification: WorkerConfig{Enabled: true, GroupID: "sm-event-notification"},
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Manifests: ManifestsConfig{
			Backend:   "etcd",
			KeyPrefix: "/shardfleet/manifests",
			CacheTTL:  30 * time.Second,
		},
		Provisioner: ProvisionerConfig{
			Mode: ProvisionerModeCluster,
			Cluster: ClusterProvisionerConfig{
				KeyPrefix: "/shardfleet/desired",
			},
			Agent: AgentProvisionerConfig{
				Timeout:             10 * time.Second,
				HealthCheckInterval: 30 * time.Second,
			},
		},
		Notifications: NotificationsConfig{
			Store:       "memory",
			SQLitePath:  "./data/notifications.db",
			RedisStream: "shardfleet:notifications",
			MaxLen:      100000,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
			Service:    "shard-manager",
		},
	}
}
