package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <ceremony>",
		Short: "Close an abruptly terminated execution",
		Long: `Close the last execution if a previous process died while generating.
This normally happens automatically on the next run; cleanup does it
explicitly without starting a new execution.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st := openStores()

			abrupt, err := st.ledger.DetectAbruptTermination(name)
			if err != nil {
				return err
			}
			if !abrupt {
				fmt.Println("nothing to clean up")
				return nil
			}

			if err := st.ledger.CleanupAbruptTermination(name); err != nil {
				return err
			}
			fmt.Println("abruptly terminated execution closed")
			return nil
		},
	}
}
