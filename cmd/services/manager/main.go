package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/coordinator"
	grpcpool "github.com/shardfleet/shardfleet/internal/grpc"
	"github.com/shardfleet/shardfleet/internal/handlers"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/manifest"
	"github.com/shardfleet/shardfleet/internal/metadata"
	"github.com/shardfleet/shardfleet/internal/metrics"
	"github.com/shardfleet/shardfleet/internal/notification"
	"github.com/shardfleet/shardfleet/internal/provisioner"
	"github.com/shardfleet/shardfleet/internal/queue"
	"github.com/shardfleet/shardfleet/internal/registry"
	"github.com/shardfleet/shardfleet/internal/router"
	"github.com/shardfleet/shardfleet/internal/services"
	"github.com/shardfleet/shardfleet/internal/utils"
	"github.com/shardfleet/shardfleet/internal/workers"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	os.Exit(run())
}

// run returns the process exit code once every deferred close has run
func run() int {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Setup logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	logging.SetGlobal(logger)
	handlers.Version = Version
	logger.Info("Shard manager starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	// The registry is owned here and shared by the admin API and the workers
	shards := registry.NewShardRegistry()

	metricsRegistry := metrics.NewRegistry()
	metricsRegistry.MustRegister(metrics.NewFleetCollector(shards))

	// Connect to Queue (configurable backend)
	logger.Info("Connecting to Queue", "type", cfg.Queue.Type)
	queueClient, err := queue.NewQueue(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Queue", "error", err)
	}
	defer func() { _ = queueClient.Close() }()
	logger.Info("Queue connection established")

	var checks []handlers.HealthCheck

	// Shared metadata stores, connected only when a component needs them
	var etcdStore metadata.Store
	if cfg.NeedsEtcd() {
		logger.Info("Connecting to etcd", "endpoints", cfg.Etcd.Endpoints)
		etcdManager, err := metadata.NewEtcdManager(cfg.Etcd, 0)
		if err != nil {
			logger.Fatal("Failed to connect to etcd", "error", err)
		}
		defer func() { _ = etcdManager.Close() }()
		etcdStore = etcdManager
		checks = append(checks, handlers.HealthCheck{Name: "etcd", Check: etcdManager.Ping})
	}

	var redisClient *redis.Client
	var redisStore metadata.Store
	if cfg.NeedsRedis() {
		logger.Info("Connecting to Redis", "url", cfg.Redis.URL)
		redisClient, err = metadata.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer func() { _ = redisClient.Close() }()
		redisStore = metadata.NewRedisStore(redisClient)
		checks = append(checks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	manifests, err := manifest.New(cfg.Manifests, manifest.Stores{Etcd: etcdStore, Redis: redisStore})
	if err != nil {
		logger.Fatal("Failed to initialize manifest lookup", "error", err)
	}

	var pool *grpcpool.ConnectionPool
	if cfg.Provisioner.NormalizedMode() == config.ProvisionerModeAgent {
		pool = grpcpool.NewConnectionPool(logger, cfg.Provisioner.Agent.HealthCheckInterval)
		defer pool.Close()

		dialCtx, dialCancel := context.WithTimeout(context.Background(), utils.GRPCDialTimeout)
		if err := pool.WaitReady(dialCtx, cfg.Provisioner.Agent.Address); err != nil {
			logger.Warn("Shard agent not reachable yet", "address", cfg.Provisioner.Agent.Address, "error", err)
		}
		dialCancel()
	}
	prov, err := provisioner.New(cfg.Provisioner, provisioner.Deps{Store: etcdStore, Pool: pool, Logger: logger})
	if err != nil {
		logger.Fatal("Failed to initialize provisioner", "error", err)
	}

	notifications, err := notification.New(cfg.Notifications, redisClient, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notification store", "error", err)
	}
	if closer, ok := notifications.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	filter, err := workers.NewFilter(cfg.Notifications.Filter)
	if err != nil {
		logger.Fatal("Invalid notification filter", "error", err)
	}

	runner := workers.NewRunner(logger, buildWorkers(cfg, workerDeps{
		queue:         queueClient,
		shards:        shards,
		provisioner:   prov,
		manifests:     manifests,
		router:        coordinator.NewShardRouter(logger, shards),
		notifications: notifications,
		filter:        filter,
		recorder:      metricsRegistry,
		logger:        logger,
	})...)

	admin := services.NewShardAdminService(services.ShardAdminDeps{
		Shards:        shards,
		Publisher:     queueClient,
		CommandsTopic: cfg.Topics.ShardCommands,
		Admin:         cfg.Admin,
		Recorder:      metricsRegistry,
		Logger:        logger,
	})

	if cfg.Auth.Enabled {
		logger.Info("Role policies enabled", "num_api_keys", len(cfg.Auth.APIKeys))
	} else {
		logger.Warn("Authentication DISABLED - all requests will be allowed")
	}

	app := router.New(router.Deps{
		Logger:  logger,
		Admin:   admin,
		Metrics: metricsRegistry,
		Checks:  checks,
	}, *cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerErr := make(chan error, 1)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		logger.Info("Starting workers", "workers", runner.Workers())
		if err := runner.Run(ctx); err != nil {
			workerErr <- err
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		addr := cfg.GetServerAddress()
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal, a dead worker or a dead listener
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-workerErr:
		logger.Error("Worker stopped", "error", err)
		exitCode = 1
	case err := <-serverErr:
		logger.Error("Failed to start server", "error", err)
		exitCode = 1
	}

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		logger.Warn("Workers did not stop before the shutdown timeout")
	}

	logger.Info("Shard manager exited")
	return exitCode
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

type workerDeps struct {
	queue         queue.Queue
	shards        *registry.ShardRegistry
	provisioner   provisioner.Provisioner
	manifests     manifest.Lookup
	router        *coordinator.ShardRouter
	notifications notification.Store
	filter        *workers.Filter
	recorder      workers.Recorder
	logger        *logging.Logger
}

// buildWorkers creates the workers enabled in cfg, each on its own consumer group
func buildWorkers(cfg *config.Config, d workerDeps) []workers.Worker {
	var list []workers.Worker

	if cfg.Workers.Lifecycle.Enabled {
		list = append(list, workers.NewLifecycleWorker(workers.LifecycleDeps{
			Subscriber:  d.queue,
			Publisher:   d.queue,
			Provisioner: d.provisioner,
			Shards:      d.shards,
			Commands:    workers.Subscription{Topic: cfg.Topics.ShardCommands, Group: cfg.Workers.Lifecycle.GroupID},
			EventsTopic: cfg.Topics.ShardEvents,
			Recorder:    d.recorder,
			Logger:      d.logger,
		}))
	}

	if cfg.Workers.Ingest.Enabled {
		list = append(list, workers.NewIngestWorker(workers.IngestDeps{
			Subscriber:    d.queue,
			Publisher:     d.queue,
			Manifests:     d.manifests,
			Router:        d.router,
			Enrollments:   workers.Subscription{Topic: cfg.Topics.EnrollmentEvents, Group: cfg.Workers.Ingest.GroupID},
			CommandsTopic: cfg.Topics.ShardIngestCommands,
			Recorder:      d.recorder,
			Logger:        d.logger,
		}))
	}

	if cfg.Workers.Notification.Enabled {
		list = append(list, workers.NewNotificationWorker(workers.NotificationDeps{
			Subscriber: d.queue,
			Store:      d.notifications,
			Filter:     d.filter,
			Events:     workers.Subscription{Topic: cfg.Topics.PlatformEvents, Group: cfg.Workers.Notification.GroupID},
			Recorder:   d.recorder,
			Logger:     d.logger,
		}))
	}

	return list
}
