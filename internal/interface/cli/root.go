// Package cli wires the avc commands. Configuration is loaded once in the
// root command's PersistentPreRunE and shared by every subcommand.
package cli

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/avclabs/avc/internal/app"
	"github.com/avclabs/avc/internal/app/config"
	infraconfig "github.com/avclabs/avc/internal/infra/config"
)

// globalConfig holds the loaded configuration for all commands.
var globalConfig config.Config

// globalLog is the process logger, writing to stderr at the configured level.
var globalLog zerolog.Logger

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avc",
		Short: "avc runs LLM-backed document ceremonies",
		Long: `avc drives document-generation ceremonies: it collects answers,
calls the configured LLM provider, verifies the result against declarative
rules, and keeps a crash-safe record of every execution.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			baseDir := ".avc"
			if home := os.Getenv("AVC_HOME"); home != "" {
				baseDir = home
			}

			cfg, err := infraconfig.LoadSettings(baseDir)
			if err != nil {
				return err
			}
			globalConfig = cfg
			globalLog = newLogger(cfg.StderrLevel())
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newUsageCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// paths resolves the state layout for the configured home directory.
func paths() app.Paths {
	return app.ResolvePathsFrom(globalConfig.Home())
}

func newLogger(level string) zerolog.Logger {
	lvl := zerolog.WarnLevel
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
