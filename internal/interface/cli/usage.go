package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avclabs/avc/internal/usage"
)

func newUsageCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage [ceremony]",
		Short: "Show token and cost usage",
		Long: `Show aggregated token and cost usage: today, this ISO week, this
month, and all time. With a ceremony argument, only that ceremony's share
is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := openStores()

			var (
				sum *usage.Summary
				err error
			)
			if len(args) == 1 {
				sum, err = st.usage.CeremonyTotals(args[0])
			} else {
				sum, err = st.usage.Totals()
			}
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(sum)
			}
			if len(args) == 1 {
				fmt.Printf("Usage for ceremony %s\n", args[0])
			} else {
				fmt.Println("Usage (all ceremonies)")
			}

			printBucket := func(label string, b usage.Bucket) {
				fmt.Printf("  %-10s %4d runs  %8d in / %8d out  $%.4f\n",
					label, b.Executions, b.Input, b.Output, b.Cost.Total)
			}
			printBucket("today", sum.Today)
			printBucket("this week", sum.ThisWeek)
			printBucket("this month", sum.ThisMonth)
			printBucket("all time", sum.AllTime.Bucket)

			if sum.AllTime.FirstExecution != nil {
				fmt.Printf("  first execution: %s\n", sum.AllTime.FirstExecution.Format(time.RFC3339))
			}
			if sum.AllTime.LastExecution != nil {
				fmt.Printf("  last execution:  %s\n", sum.AllTime.LastExecution.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON")
	return cmd
}
