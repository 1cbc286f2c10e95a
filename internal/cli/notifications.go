package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/metadata"
	"github.com/shardfleet/shardfleet/internal/notification"
)

// openNotifications opens the durable notification store named in cfg
var openNotifications = func(cfg *config.Config, logger *logging.Logger) (notification.Reader, io.Closer, error) {
	switch strings.ToLower(cfg.Notifications.Store) {
	case "sqlite":
		s, err := notification.NewSQLiteStore(cfg.Notifications.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "redis":
		client, err := metadata.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return notification.NewRedisStreamStore(client, cfg.Notifications.RedisStream, cfg.Notifications.MaxLen, logger), client, nil
	default:
		return nil, nil, fmt.Errorf("notifications store %q cannot be read back (use sqlite or redis)", cfg.Notifications.Store)
	}
}

// NotificationsCmd lists notifications persisted by the notification worker
func NotificationsCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var eventType string

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List recently stored notifications",
		Long: `Read the newest notifications from the configured sqlite database or
Redis stream, newest first.

Usage:
  fleetctl notifications --limit 20 --type DeviceOffline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			store, closer, err := openNotifications(cfg, opts.logger())
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			envs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			shown := 0
			for _, env := range envs {
				if eventType != "" && !strings.EqualFold(env.EventType, eventType) {
					continue
				}
				severity := env.Severity
				if strings.EqualFold(severity, "critical") || strings.EqualFold(severity, "error") {
					severity = warnColor.Sprint(severity)
				}
				fmt.Fprintf(out, "%s  %-24s %-10s %s %s\n",
					env.Utc.UTC().Format(time.RFC3339), keyColor.Sprint(env.EventType), severity, env.Source, env.EventID)
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(out, "No notifications stored")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of notifications to read")
	cmd.Flags().StringVar(&eventType, "type", "", "Only show this event type")

	return cmd
}
