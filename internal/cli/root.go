// Package cli implements the fleetctl operator commands
package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shardfleet/shardfleet/internal/config"
	"github.com/shardfleet/shardfleet/internal/logging"
	"github.com/shardfleet/shardfleet/internal/queue"
)

// openQueue connects to the configured bus; tests swap it for a memory queue
var openQueue = func(cfg config.QueueConfig, logger *logging.Logger) (queue.Queue, error) {
	return queue.NewQueue(cfg, logger)
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	keyColor  = color.New(color.FgCyan)
)

type globalOptions struct {
	configPath string
	verbose    bool
}

func (o *globalOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func (o *globalOptions) logger() *logging.Logger {
	if o.verbose {
		return logging.NewDevelopment()
	}
	return logging.NewNop()
}

// RootCmd returns the fleetctl root command with every subcommand attached
func RootCmd(version string) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "fleetctl",
		Short:   "fleetctl - operator tool for the shard fleet",
		Version: version,
		Long: `fleetctl talks to the same bus and stores as the shard manager.

It can compute routing offline, publish enrollment events and lifecycle
commands, decode event envelopes, seed manifests, read stored notifications
and run a local provisioning agent for development.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(RouteCmd())
	root.AddCommand(EnrollCmd(opts))
	root.AddCommand(CommandCmd(opts))
	root.AddCommand(DecodeCmd())
	root.AddCommand(ManifestCmd(opts))
	root.AddCommand(NotificationsCmd(opts))
	root.AddCommand(AgentCmd(opts))

	return root
}
