package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	infraconfig "github.com/avclabs/avc/internal/infra/config"
)

const exampleDefinition = `name: release-notes
questions:
  - key: version
    prompt: Which version are these notes for?
  - key: audience
    prompt: Who is the audience?
    default: users
system: You are a precise technical writer.
generation: |
  Write release notes for version {{version}} aimed at {{audience}}.
rules: .avc/etc/rules/release-notes.yaml
`

const exampleRules = `verifications:
  - id: no-marketing-speak
    name: No marketing speak
    severity: warning
    check:
      prompt: |
        Does the following text contain marketing superlatives? Answer YES or NO.

        {{CONTENT}}
    fix:
      prompt: |
        Rewrite the following text without marketing superlatives:

        {{CONTENT}}
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the avc state directory",
		Long:  "Create the state directory layout, a default setting.json, and example ceremony files. Existing files are never overwritten.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st := openStores()
			fsys := st.fs
			p := st.paths

			for _, dir := range []string{p.Home, p.Etc, filepath.Join(p.Etc, "ceremonies"), p.Rules, p.Var, p.Reports, p.Archive} {
				if err := fsys.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			created := 0
			write := func(path string, content []byte) error {
				exists, err := afero.Exists(fsys, path)
				if err != nil {
					return err
				}
				if exists {
					fmt.Printf("  exists: %s\n", path)
					return nil
				}
				if err := afero.WriteFile(fsys, path, content, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				fmt.Printf("  created: %s\n", path)
				created++
				return nil
			}

			if err := write(p.Setting, infraconfig.CreateDefaultSettings()); err != nil {
				return err
			}
			if err := write(filepath.Join(p.Etc, "ceremonies", "release-notes.yaml"), []byte(exampleDefinition)); err != nil {
				return err
			}
			if err := write(filepath.Join(p.Rules, "release-notes.yaml"), []byte(exampleRules)); err != nil {
				return err
			}

			if created == 0 {
				fmt.Println("already initialized")
			}
			return nil
		},
	}
}
