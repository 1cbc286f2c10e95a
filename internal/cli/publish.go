package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/utils"
)

// EnrollCmd publishes an EnrollmentCommitted event
func EnrollCmd(opts *globalOptions) *cobra.Command {
	var payload models.EnrollmentCommitted
	var correlationID, source string

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Publish an EnrollmentCommitted event",
		Long: `Publish an EnrollmentCommitted envelope to the enrollment events topic,
keyed by identifier. The ingest worker routes it to a shard.

Usage:
  fleetctl enroll --identifier U1 --modality face --manifest M1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if payload.Identifier == "" || payload.Modality == "" || payload.ManifestID == "" {
				return fmt.Errorf("--identifier, --modality and --manifest are required")
			}
			if correlationID == "" {
				correlationID = models.NewID()
			}

			env := models.NewEnvelope(models.EventTypeEnrollmentCommitted, source, correlationID, payload)
			data, err := json.Marshal(env)
			if err != nil {
				return fmt.Errorf("failed to encode envelope: %w", err)
			}

			topic, err := publish(cmd.Context(), opts, func(topics topicSet) string { return topics.enrollments }, payload.Identifier, data)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s to %s (event %s, correlation %s)\n",
				okColor.Sprint("Published"), env.EventType, keyColor.Sprint(topic), env.EventID, correlationID)
			return nil
		},
	}

	cmd.Flags().StringVar(&payload.Identifier, "identifier", "", "Enrolled identifier")
	cmd.Flags().StringVar(&payload.Modality, "modality", "", "Modality of the enrollment")
	cmd.Flags().StringVar(&payload.ManifestID, "manifest", "", "Manifest id")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation id (generated when empty)")
	cmd.Flags().StringVar(&source, "source", "fleetctl", "Envelope source")

	return cmd
}

// CommandCmd publishes a lifecycle command directly to the commands topic
func CommandCmd(opts *globalOptions) *cobra.Command {
	var modality, actor, correlationID string
	var capacity, grace int

	cmd := &cobra.Command{
		Use:   "command <Create|Start|Stop|Drain|Resume> <shardId>",
		Short: "Publish a shard lifecycle command",
		Long: `Publish a ShardCommand keyed by ShardId, bypassing the admin API.
The registry is not touched; the lifecycle worker applies the command.

Usage:
  fleetctl command Create S1 --modality face --capacity 4
  fleetctl command Drain S1 --grace 60`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdType, err := models.ParseCommandType(args[0])
			if err != nil {
				return err
			}

			shardCmd := models.NewShardCommand(cmdType, args[1])
			shardCmd.Modality = modality
			shardCmd.Capacity = capacity
			shardCmd.Actor = actor
			shardCmd.CorrelationID = correlationID
			if shardCmd.CorrelationID == "" {
				shardCmd.CorrelationID = models.NewID()
			}
			if cmdType == models.CommandDrain {
				shardCmd.GraceSeconds = &grace
			}

			data, err := json.Marshal(shardCmd)
			if err != nil {
				return fmt.Errorf("failed to encode command: %w", err)
			}

			topic, err := publish(cmd.Context(), opts, func(topics topicSet) string { return topics.commands }, shardCmd.ShardID, data)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %s to %s (command %s)\n",
				okColor.Sprint("Published"), shardCmd.Type, keyColor.Sprint(shardCmd.ShardID), topic, shardCmd.CommandID)
			return nil
		},
	}

	cmd.Flags().StringVar(&modality, "modality", "", "Shard modality (Create)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "Shard capacity (Create)")
	cmd.Flags().IntVar(&grace, "grace", utils.DefaultDrainGraceSeconds, "Grace period in seconds (Drain)")
	cmd.Flags().StringVar(&actor, "actor", "fleetctl", "Actor recorded on the command")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation id (generated when empty)")

	return cmd
}

type topicSet struct {
	enrollments string
	commands    string
}

// publish loads the configuration, connects to the bus and sends one keyed message.
// It returns the topic the message went to.
func publish(ctx context.Context, opts *globalOptions, pick func(topicSet) string, key string, data []byte) (string, error) {
	cfg, err := opts.load()
	if err != nil {
		return "", err
	}

	topic := pick(topicSet{
		enrollments: cfg.Topics.EnrollmentEvents,
		commands:    cfg.Topics.ShardCommands,
	})

	q, err := openQueue(cfg.Queue, opts.logger())
	if err != nil {
		return "", fmt.Errorf("failed to connect to queue: %w", err)
	}
	defer func() { _ = q.Close() }()

	pubCtx, cancel := context.WithTimeout(ctx, utils.PublishTimeout)
	defer cancel()

	if err := q.Publish(pubCtx, topic, key, data); err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return topic, nil
}
