package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"

	grpcpool "github.com/shardfleet/shardfleet/internal/grpc"
	"github.com/shardfleet/shardfleet/internal/logging"
)

// devAgent accepts (or rejects) every shard command and echoes it to out
type devAgent struct {
	mu     sync.Mutex
	out    io.Writer
	reject bool
	logger *logging.Logger
}

func (a *devAgent) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	cmdType := fields["Type"].GetStringValue()
	shardID := fields["ShardId"].GetStringValue()

	a.mu.Lock()
	verdict := okColor.Sprint("accepted")
	if a.reject {
		verdict = warnColor.Sprint("rejected")
	}
	fmt.Fprintf(a.out, "%s %s for %s (command %s)\n",
		verdict, cmdType, keyColor.Sprint(shardID), fields["CommandId"].GetStringValue())
	a.mu.Unlock()

	a.logger.Info("Agent received command", "type", cmdType, "shard_id", shardID, "rejected", a.reject)

	message := "applied"
	if a.reject {
		message = "rejected by fleetctl agent"
	}
	return structpb.NewStruct(map[string]interface{}{
		"accepted": !a.reject,
		"message":  message,
	})
}

// AgentCmd runs a local shard agent for the agent provisioner mode
func AgentCmd(opts *globalOptions) *cobra.Command {
	var listen string
	var reject bool

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run a development shard agent",
		Long: `Serve the shard agent gRPC contract on a local address. Every command the
manager provisions through the agent is printed and accepted, or rejected
with --reject. Stops on SIGINT or SIGTERM.

Usage:
  fleetctl agent --listen 127.0.0.1:7443`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				listen = cfg.Provisioner.Agent.Address
			}
			if listen == "" {
				return fmt.Errorf("--listen is required when provisioner.agent.address is not configured")
			}

			logger := opts.logger()
			agent := &devAgent{out: cmd.OutOrStdout(), reject: reject, logger: logger}
			srv, err := grpcpool.NewAgentServer(listen, agent, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() { serveErr <- srv.Serve() }()
			fmt.Fprintf(cmd.OutOrStdout(), "%s on %s\n", okColor.Sprint("Agent listening"), srv.Addr())

			select {
			case <-ctx.Done():
				srv.Stop()
				return nil
			case err := <-serveErr:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (defaults to provisioner.agent.address)")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject every command")

	return cmd
}
