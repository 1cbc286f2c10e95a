package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/manifest"
	"github.com/shardfleet/shardfleet/internal/metadata"
)

// openManifestStore connects to the configured manifests backend
var openManifestStore = func(cfg *config.Config) (metadata.Store, error) {
	switch strings.ToLower(cfg.Manifests.Backend) {
	case "etcd":
		return metadata.NewEtcdManager(cfg.Etcd, 0)
	case "redis":
		client, err := metadata.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return metadata.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("manifests backend %q is not shared with other processes (use etcd or redis)", cfg.Manifests.Backend)
	}
}

// ManifestCmd seeds and inspects enrollment manifests
func ManifestCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Read and write enrollment manifests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "put <manifestId> [file]",
		Short: "Store a manifest document read from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			doc, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read manifest: %w", err)
			}

			lookup, closeStore, err := openManifests(opts)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := lookup.Put(cmd.Context(), args[0], json.RawMessage(doc)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s manifest %s at %s\n",
				okColor.Sprint("Stored"), args[0], keyColor.Sprint(lookup.Key(args[0])))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <manifestId>",
		Short: "Print a stored manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lookup, closeStore, err := openManifests(opts)
			if err != nil {
				return err
			}
			defer closeStore()

			doc, err := lookup.GetManifestJSON(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		},
	})

	return cmd
}

func openManifests(opts *globalOptions) (*manifest.StoreLookup, func(), error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, nil, err
	}
	store, err := openManifestStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return manifest.NewStoreLookup(store, cfg.Manifests.KeyPrefix), func() { _ = store.Close() }, nil
}
