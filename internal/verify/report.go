package verify

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	avcfs "github.com/avclabs/avc/internal/infra/fs"
)

// DefaultReportKeep is how many report pairs are retained per ceremony.
const DefaultReportKeep = 10

// Reporter exports session reports as a JSON document plus a human-readable
// text summary, pruned to the most recent N per ceremony kind.
type Reporter struct {
	fs   afero.Fs
	dir  string
	keep int
	log  zerolog.Logger

	now func() time.Time
}

// NewReporter creates a reporter writing under dir. keep <= 0 selects
// DefaultReportKeep.
func NewReporter(fsys afero.Fs, dir string, keep int, log zerolog.Logger) *Reporter {
	if keep <= 0 {
		keep = DefaultReportKeep
	}
	return &Reporter{
		fs:   fsys,
		dir:  dir,
		keep: keep,
		log:  log.With().Str("component", "verify-report").Logger(),
		now:  time.Now,
	}
}

// Flush writes the report pair for one ceremony run and prunes old reports.
func (r *Reporter) Flush(ceremony string, report *SessionReport) (jsonPath, textPath string, err error) {
	slug := Slugify(ceremony)
	base := fmt.Sprintf("verification-%s-%s", slug, r.now().UTC().Format("20060102-150405"))
	jsonPath = filepath.Join(r.dir, base+".json")
	textPath = filepath.Join(r.dir, base+".txt")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal verification report: %w", err)
	}
	if err := avcfs.WriteFileAtomic(r.fs, jsonPath, data); err != nil {
		return "", "", fmt.Errorf("write verification report: %w", err)
	}
	if err := avcfs.WriteFileAtomic(r.fs, textPath, []byte(r.summary(report))); err != nil {
		return "", "", fmt.Errorf("write verification summary: %w", err)
	}

	if err := r.prune(slug); err != nil {
		// Retention is housekeeping; a failed prune must not fail the run.
		r.log.Warn().Err(err).Str("ceremony", ceremony).Msg("report pruning failed")
	}
	return jsonPath, textPath, nil
}

func (r *Reporter) summary(report *SessionReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verification session %s\n", report.SessionID)
	fmt.Fprintf(&b, "Agent:         %s\n", report.Agent)
	fmt.Fprintf(&b, "Started:       %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration:      %dms\n", report.DurationMs)
	fmt.Fprintf(&b, "Rules checked: %d\n", report.RulesChecked)
	fmt.Fprintf(&b, "Violations:    %d (fixed %d)\n", report.RulesViolated, report.RulesFixed)
	fmt.Fprintf(&b, "API calls:     %d\n", report.APICalls)
	if report.WorkflowSharePct > 0 {
		fmt.Fprintf(&b, "Share of run:  %.1f%%\n", report.WorkflowSharePct)
	}
	if len(report.Applied) > 0 {
		b.WriteString("\nApplied fixes:\n")
		for _, a := range report.Applied {
			fmt.Fprintf(&b, "  - [%s] %s (%s)\n", a.Severity, a.Name, a.ID)
		}
	}
	return b.String()
}

// prune keeps only the newest report pairs for one ceremony slug. Report
// names embed a UTC timestamp, so lexical order is chronological order.
func (r *Reporter) prune(slug string) error {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return err
	}

	prefix := "verification-" + slug + "-"
	var bases []string
	seen := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		base := strings.TrimSuffix(strings.TrimSuffix(name, ".json"), ".txt")
		if !seen[base] {
			seen[base] = true
			bases = append(bases, base)
		}
	}

	if len(bases) <= r.keep {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(bases)))

	for _, base := range bases[r.keep:] {
		for _, ext := range []string{".json", ".txt"} {
			if err := r.fs.Remove(filepath.Join(r.dir, base+ext)); err != nil {
				r.log.Warn().Err(err).Str("report", base+ext).Msg("failed to remove old report")
			}
		}
	}
	return nil
}

// Slugify normalizes a ceremony name into a safe file-name fragment.
func Slugify(name string) string {
	normalized := norm.NFKC.String(name)
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(normalized) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
