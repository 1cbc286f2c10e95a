package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shardfleet/shardfleet/internal/coordinator"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/models"
	"github.com/shardfleet/shardfleet/internal/registry"
)

// RouteCmd computes the owning shard of identifiers without touching any service
func RouteCmd() *cobra.Command {
	var shardList string
	var modality string

	cmd := &cobra.Command{
		Use:   "route <identifier>...",
		Short: "Show which active shard owns each identifier",
		Long: `Resolve identifiers against a set of active shards exactly as the ingest
worker does: SHA-256 of the identifier, first four bytes little-endian,
modulo the number of shards ordered by ShardId.

Usage:
  fleetctl route --shards S1,S2,S3 U1 U2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.NewShardRegistry()
			for _, id := range strings.Split(shardList, ",") {
				if id = strings.TrimSpace(id); id != "" {
					reg.Upsert(models.Shard{ShardID: id, Modality: modality, Status: models.ShardStatusActive})
				}
			}

			router := coordinator.NewShardRouter(logging.NewNop(), reg)
			out := cmd.OutOrStdout()
			for _, identifier := range args {
				target, err := router.ResolveTargetShard(cmd.Context(), modality, identifier)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s -> %s (hash %d)\n",
					keyColor.Sprint(identifier), okColor.Sprint(target), coordinator.HashIdentifier(identifier))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&shardList, "shards", "", "Comma separated active shard ids")
	cmd.Flags().StringVar(&modality, "modality", "default", "Modality of the shard set")
	_ = cmd.MarkFlagRequired("shards")

	return cmd
}
