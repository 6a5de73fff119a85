// Package verify implements the generate-time quality gate: a declarative
// set of check-then-fix rules applied to generated content through the LLM
// call layer.
package verify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Severity of a rule violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ContentPlaceholder marks where the working content is substituted into a
// rule's prompt templates.
const ContentPlaceholder = "{{CONTENT}}"

// GrammarYesNo is the only implemented expected-response grammar: the check
// answer is interpreted as a strict YES/NO decision. The schema allows other
// grammars in principle; declaring one fails at load time so the
// misconfiguration is caught before calls are spent.
const GrammarYesNo = "yes-no"

// Default output budgets applied when a directive omits maxTokens.
const (
	defaultCheckMaxTokens = 16
	defaultFixMaxTokens   = 4096
)

// Directive is one half of a rule: a prompt template plus an output budget.
type Directive struct {
	Prompt           string `json:"prompt" yaml:"prompt"`
	MaxTokens        int    `json:"maxTokens" yaml:"maxTokens"`
	ExpectedResponse string `json:"expectedResponse,omitempty" yaml:"expectedResponse,omitempty"`
}

// Rule is an atomic check-then-fix directive: one concern checked, one
// concern fixed.
type Rule struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Severity Severity  `json:"severity" yaml:"severity"`
	Enabled  bool      `json:"enabled" yaml:"enabled"`
	Check    Directive `json:"check" yaml:"check"`
	Fix      Directive `json:"fix" yaml:"fix"`
}

// ruleDoc is the wire form of a rule file. Enabled defaults to true when
// the author omits it.
type ruleDoc struct {
	Verifications []struct {
		ID       string    `json:"id" yaml:"id"`
		Name     string    `json:"name" yaml:"name"`
		Severity Severity  `json:"severity" yaml:"severity"`
		Enabled  *bool     `json:"enabled" yaml:"enabled"`
		Check    Directive `json:"check" yaml:"check"`
		Fix      Directive `json:"fix" yaml:"fix"`
	} `json:"verifications" yaml:"verifications"`
}

// LoadRules reads one agent's rule file. YAML and JSON documents share the
// same shape; the format is chosen by extension.
func LoadRules(fsys afero.Fs, path string) ([]Rule, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	var doc ruleDoc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		// JSON is a YAML subset; one decoder covers both and tolerates a
		// .json file that is really YAML-authored.
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}

	rules := make([]Rule, 0, len(doc.Verifications))
	for i, raw := range doc.Verifications {
		rule := Rule{
			ID:       raw.ID,
			Name:     raw.Name,
			Severity: raw.Severity,
			Enabled:  raw.Enabled == nil || *raw.Enabled,
			Check:    raw.Check,
			Fix:      raw.Fix,
		}
		if err := normalizeRule(&rule, i); err != nil {
			return nil, fmt.Errorf("rule file %s: %w", path, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func normalizeRule(rule *Rule, index int) error {
	if rule.ID == "" {
		return fmt.Errorf("rule %d: missing id", index)
	}
	if rule.Name == "" {
		return fmt.Errorf("rule %q: missing name", rule.ID)
	}
	if rule.Check.Prompt == "" {
		return fmt.Errorf("rule %q: missing check prompt", rule.ID)
	}
	if rule.Fix.Prompt == "" {
		return fmt.Errorf("rule %q: missing fix prompt", rule.ID)
	}
	if !strings.Contains(rule.Check.Prompt, ContentPlaceholder) {
		return fmt.Errorf("rule %q: check prompt lacks %s placeholder", rule.ID, ContentPlaceholder)
	}
	if !strings.Contains(rule.Fix.Prompt, ContentPlaceholder) {
		return fmt.Errorf("rule %q: fix prompt lacks %s placeholder", rule.ID, ContentPlaceholder)
	}

	switch rule.Check.ExpectedResponse {
	case "", GrammarYesNo:
	default:
		return fmt.Errorf("rule %q: unsupported expected-response grammar %q (only %q is implemented)",
			rule.ID, rule.Check.ExpectedResponse, GrammarYesNo)
	}

	if rule.Severity == "" {
		rule.Severity = SeverityWarning
	}
	if rule.Check.MaxTokens <= 0 {
		rule.Check.MaxTokens = defaultCheckMaxTokens
	}
	if rule.Fix.MaxTokens <= 0 {
		rule.Fix.MaxTokens = defaultFixMaxTokens
	}
	return nil
}
