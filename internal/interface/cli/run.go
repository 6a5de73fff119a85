package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avclabs/avc/internal/ceremony"
)

func newRunCmd() *cobra.Command {
	var (
		answerFlags []string
		defPath     string
		timeoutSec  int
	)

	cmd := &cobra.Command{
		Use:   "run <ceremony>",
		Short: "Execute a ceremony end to end",
		Long: `Run a ceremony: collect answers, generate the document, verify it
against the ceremony's rules, and archive the result. A run interrupted by
a crash resumes from its checkpoint on the next invocation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st := openStores()

			if defPath == "" {
				defPath = definitionPath(st.paths, name)
			}
			def, err := ceremony.LoadDefinition(st.fs, defPath)
			if err != nil {
				return err
			}

			answers, err := parseAnswers(answerFlags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeoutSec <= 0 {
				timeoutSec = globalConfig.TimeoutSec()
			}
			ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
			defer cancel()

			runner, err := buildRunner(ctx, st)
			if err != nil {
				return err
			}

			res, err := runner.Run(ctx, def, answers)
			if err != nil {
				return err
			}

			fmt.Printf("Execution %s completed\n", res.ExecutionID)
			if res.Resumed {
				fmt.Println("  resumed from checkpoint")
			}
			for _, a := range res.Applied {
				fmt.Printf("  fix applied: [%s] %s\n", a.Severity, a.Name)
			}
			for _, path := range res.Artifacts {
				fmt.Printf("  archived: %s\n", path)
			}
			if res.ReportText != "" {
				fmt.Printf("  report:   %s\n", res.ReportText)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&answerFlags, "answer", "a", nil, "questionnaire answer as key=value (repeatable)")
	cmd.Flags().StringVar(&defPath, "definition", "", "path to the ceremony definition (default: <home>/etc/ceremonies/<name>.yaml)")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 0, "execution timeout in seconds (default: configured timeout)")
	return cmd
}

func parseAnswers(flags []string) (ceremony.StaticAnswers, error) {
	answers := ceremony.StaticAnswers{}
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --answer %q, expected key=value", f)
		}
		answers[key] = value
	}
	return answers, nil
}
