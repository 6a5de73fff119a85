package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/avclabs/avc/internal/ceremony"
	"github.com/avclabs/avc/internal/verify"
)

func newValidateCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration, ceremony definitions, and provider connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := openStores()
			failed := 0

			fmt.Printf("config: %s", globalConfig.ConfigSource())
			if globalConfig.SettingPath() != "" {
				fmt.Printf(" (%s)", globalConfig.SettingPath())
			}
			fmt.Println()

			failed += validateDefinitions(st)

			if offline {
				fmt.Println("provider: skipped (--offline)")
			} else if err := validateProvider(cmd); err != nil {
				fmt.Printf("provider %s: NG: %v\n", globalConfig.Provider(), err)
				failed++
			} else {
				fmt.Printf("provider %s: OK\n", globalConfig.Provider())
			}

			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			fmt.Println("all checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "skip the provider connectivity check")
	return cmd
}

// validateDefinitions loads every ceremony definition and its rule file,
// reporting each result. Returns the number of failures.
func validateDefinitions(st stores) int {
	dir := filepath.Join(st.paths.Etc, "ceremonies")
	entries, err := afero.ReadDir(st.fs, dir)
	if err != nil {
		fmt.Printf("ceremonies: none found under %s\n", dir)
		return 0
	}

	failed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		path := filepath.Join(dir, name)

		def, err := ceremony.LoadDefinition(st.fs, path)
		if err != nil {
			fmt.Printf("ceremony %s: NG: %v\n", name, err)
			failed++
			continue
		}

		if def.Rules != "" {
			if _, err := verify.LoadRules(st.fs, def.Rules); err != nil {
				fmt.Printf("ceremony %s: NG: rules: %v\n", def.Name, err)
				failed++
				continue
			}
		}
		fmt.Printf("ceremony %s: OK (%d questions)\n", def.Name, len(def.Questions))
	}
	return failed
}

// validateProvider issues one minimal round-trip call.
func validateProvider(cmd *cobra.Command) error {
	client, err := buildClient()
	if err != nil {
		return err
	}
	return client.Validate(cmd.Context())
}
