package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/avclabs/avc/internal/ledger"
	"github.com/avclabs/avc/internal/progress"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <ceremony>",
		Short: "Show the current state of a ceremony",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st := openStores()

			stats, err := st.ledger.Stats(name)
			if err != nil {
				return err
			}
			last, err := st.ledger.LastExecution(name)
			if err != nil {
				return err
			}
			abrupt, err := st.ledger.DetectAbruptTermination(name)
			if err != nil {
				return err
			}
			cp, err := st.progress.Read()
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(struct {
					Ceremony           string                  `json:"ceremony"`
					Stats              *ledger.Stats           `json:"stats"`
					LastExecution      *ledger.ExecutionRecord `json:"lastExecution,omitempty"`
					Checkpoint         *progress.Checkpoint    `json:"checkpoint,omitempty"`
					AbruptlyTerminated bool                    `json:"abruptlyTerminated"`
				}{name, stats, last, cp, abrupt})
			}

			fmt.Printf("Ceremony: %s\n", name)
			fmt.Printf("  executions: %d (completed %d, cancelled %d, aborted %d, in progress %d)\n",
				stats.Total, stats.Completed, stats.Cancelled, stats.Aborted, stats.InProgress)
			if stats.LastRun != nil {
				fmt.Printf("  last run:     %s\n", stats.LastRun.Format(time.RFC3339))
			}
			if stats.LastSuccess != nil {
				fmt.Printf("  last success: %s\n", stats.LastSuccess.Format(time.RFC3339))
			}

			if last != nil {
				fmt.Printf("  last execution: %s (%s, stage %s)\n", last.ID, last.Status, last.Stage)
				if last.Model != "" {
					fmt.Printf("    model:  %s\n", last.Model)
				}
				if last.TokenUsage.Total > 0 {
					fmt.Printf("    tokens: %d in / %d out ($%.4f)\n",
						last.TokenUsage.Input, last.TokenUsage.Output, last.Cost.Total)
				}
			} else {
				fmt.Println("  no executions recorded")
			}

			if cp != nil {
				fmt.Printf("  checkpoint: stage %s, %d/%d steps (updated %s)\n",
					cp.Stage, cp.CompletedSteps, cp.TotalSteps, cp.LastUpdate.Format(time.RFC3339))
			}
			if abrupt {
				fmt.Println("  warning: last execution terminated abruptly; it will be cleaned up on the next run")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
