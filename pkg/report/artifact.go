package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/flowcheck/pkg/engine"
)

// ArtifactWriter handles writing run artifacts
type ArtifactWriter struct {
	outputDir string

	// Individual format flags
	JSON     bool
	Markdown bool
	Metrics  bool
}

// NewArtifactWriter creates a writer with every format enabled
func NewArtifactWriter(outputDir string) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
		JSON:      true,
		Markdown:  true,
		Metrics:   true,
	}
}

// WriteAll writes all configured artifact formats
func (w *ArtifactWriter) WriteAll(summary *Summary) error {
	// Ensure output directory exists
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if w.JSON {
		if err := w.WriteResultsJSON(summary); err != nil {
			return err
		}
	}
	if w.Markdown {
		if err := w.WriteSummaryMarkdown(summary); err != nil {
			return err
		}
	}
	if w.Metrics {
		if err := w.WriteMetricsJSON(summary); err != nil {
			return err
		}
	}
	return nil
}

// WriteResultsJSON writes the full run summary as JSON
func (w *ArtifactWriter) WriteResultsJSON(summary *Summary) error {
	return w.writeJSON("results.json", summary)
}

// WriteMetricsJSON writes run metrics as JSON
func (w *ArtifactWriter) WriteMetricsJSON(summary *Summary) error {
	return w.writeJSON("metrics.json", summary.Metrics)
}

func (w *ArtifactWriter) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(w.outputDir, name), data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(summary *Summary) error {
	var md strings.Builder

	md.WriteString("# Flowcheck Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** %s\n\n", summary.RunID))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", summary.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", summary.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration))

	md.WriteString("## Scenarios\n\n")
	md.WriteString("| Scenario | Verdict | Duration | Alternates |\n")
	md.WriteString("|---|---|---|---|\n")
	for _, sc := range summary.Scenarios {
		icon := "⚠️"
		switch sc.Status {
		case engine.StatusPass:
			icon = "✅"
		case engine.StatusFail:
			icon = "❌"
		}
		alternates := 0
		for _, st := range sc.Steps {
			if st.Alternate {
				alternates++
			}
		}
		md.WriteString(fmt.Sprintf("| %s | %s %s | %s | %d |\n",
			sc.Name, icon, escapeCell(sc.Verdict), sc.Duration.Round(time.Millisecond), alternates))
	}
	md.WriteString("\n")

	// Failing steps
	var failures []string
	for _, sc := range summary.Scenarios {
		for _, st := range sc.Steps {
			if st.Error != "" {
				failures = append(failures, fmt.Sprintf("- **%s** step %d (%s): %s", sc.Name, st.Index+1, st.Name, st.Error))
			}
		}
	}
	if len(failures) > 0 {
		md.WriteString("## Step Errors\n\n")
		md.WriteString(strings.Join(failures, "\n"))
		md.WriteString("\n\n")
	}

	m := summary.Metrics
	md.WriteString("## Metrics\n\n")
	md.WriteString(fmt.Sprintf("- **Scenarios:** %d\n", m.Scenarios))
	md.WriteString(fmt.Sprintf("- **Passed:** %d\n", m.Passed))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", m.Failed))
	md.WriteString(fmt.Sprintf("- **Errored:** %d\n", m.Errored))
	md.WriteString(fmt.Sprintf("- **Steps:** %d\n", m.Steps))
	md.WriteString(fmt.Sprintf("- **Alternates Used:** %d\n", m.AlternatesUsed))

	path := filepath.Join(w.outputDir, "summary.md")
	if err := os.WriteFile(path, []byte(md.String()), 0600); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
