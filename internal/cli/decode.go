package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shardfleet/shardfleet/internal/models"
)

// DecodeCmd validates an event envelope against the payload bound to its EventType
func DecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file]",
		Short: "Validate and pretty-print an event envelope",
		Long: `Read an event envelope from a file (or stdin) and decode its Data strictly
into the payload type bound to EventType. Unknown event types, unknown
fields and missing required fields are reported as errors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read envelope: %w", err)
			}

			env, err := models.DecodeEvent(raw)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(env.Data, "  ", "  ")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", keyColor.Sprint("EventType:"), okColor.Sprint(env.EventType))
			fmt.Fprintf(out, "%s %s\n", keyColor.Sprint("EventId:  "), env.EventID)
			fmt.Fprintf(out, "%s %s\n", keyColor.Sprint("Source:   "), env.Source)
			if env.CorrelationID != "" {
				fmt.Fprintf(out, "%s %s\n", keyColor.Sprint("Correlation:"), env.CorrelationID)
			}
			fmt.Fprintf(out, "%s\n  %s\n", keyColor.Sprint("Data:"), data)
			return nil
		},
	}
}
