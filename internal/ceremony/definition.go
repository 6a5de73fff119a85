// Package ceremony drives one document-generation ceremony end to end:
// questionnaire, LLM generation, verification, archival, and bookkeeping in
// the execution ledger and usage tracker.
package ceremony

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Question is one questionnaire entry. Its answer is substituted into the
// generation prompt as {{<key>}}.
type Question struct {
	Key     string `yaml:"key"`
	Prompt  string `yaml:"prompt"`
	Default string `yaml:"default"`
}

// Definition declares a ceremony kind.
type Definition struct {
	Name      string     `yaml:"name"`
	Questions []Question `yaml:"questions"`

	// System is an optional system prompt for the generation call.
	System string `yaml:"system"`

	// Generation is the document prompt. Every {{<key>}} placeholder is
	// replaced with the collected answer for that key.
	Generation string `yaml:"generation"`

	// MaxTokens bounds the generation call. Zero uses the provider default.
	MaxTokens int `yaml:"maxTokens"`

	// Rules is an optional path to a verification rule file.
	Rules string `yaml:"rules"`

	// Output is the archived document name. Defaults to "document.md".
	Output string `yaml:"output"`
}

// LoadDefinition reads and validates a ceremony definition file.
func LoadDefinition(fsys afero.Fs, path string) (*Definition, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read ceremony definition: %w", err)
	}

	def := &Definition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("parse ceremony definition %s: %w", path, err)
	}
	if err := def.validate(); err != nil {
		return nil, fmt.Errorf("invalid ceremony definition %s: %w", path, err)
	}
	return def, nil
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(d.Generation) == "" {
		return fmt.Errorf("generation prompt is required")
	}
	seen := map[string]bool{}
	for i, q := range d.Questions {
		if q.Key == "" {
			return fmt.Errorf("question %d: key is required", i)
		}
		if seen[q.Key] {
			return fmt.Errorf("duplicate question key %q", q.Key)
		}
		seen[q.Key] = true
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("question %q: prompt is required", q.Key)
		}
	}
	return nil
}

// OutputName returns the archived document file name.
func (d *Definition) OutputName() string {
	if d.Output != "" {
		return d.Output
	}
	return "document.md"
}

// renderPrompt substitutes collected answers into the generation prompt.
func renderPrompt(template string, values map[string]any) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{{"+key+"}}", fmt.Sprint(value))
	}
	return out
}

// AnswerSource supplies questionnaire answers.
type AnswerSource interface {
	Answer(q Question) (string, error)
}

// StaticAnswers answers from a fixed map, falling back to each question's
// default. Used for non-interactive runs and tests.
type StaticAnswers map[string]string

func (a StaticAnswers) Answer(q Question) (string, error) {
	if v, ok := a[q.Key]; ok {
		return v, nil
	}
	if q.Default != "" {
		return q.Default, nil
	}
	return "", fmt.Errorf("no answer for question %q", q.Key)
}
