package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history <ceremony>",
		Short: "List a ceremony's executions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := openStores()

			records, err := st.ledger.AllExecutions(args[0])
			if err != nil {
				return err
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			if asJSON {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("no executions recorded")
				return nil
			}

			for _, rec := range records {
				line := fmt.Sprintf("%s  %-12s  %s", rec.StartTime.Format(time.RFC3339), rec.Status, rec.ID)
				if rec.DurationMs > 0 {
					line += fmt.Sprintf("  %.1fs", float64(rec.DurationMs)/1000)
				}
				if rec.TokenUsage.Total > 0 {
					line += fmt.Sprintf("  %d tokens", rec.TokenUsage.Total)
				}
				fmt.Println(line)
				if rec.Error != "" {
					fmt.Printf("    error: %s\n", rec.Error)
				}
				if rec.Note != "" {
					fmt.Printf("    note:  %s\n", rec.Note)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many executions (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")
	return cmd
}
