// Package report renders a finished pipeline run into Markdown/HTML and
// delivers it by email.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Formatter turns a RunReport into a Markdown digest and its HTML rendering
type Formatter struct {
	config *common.ReportConfig
	logger arbor.ILogger
	md     goldmark.Markdown
}

func NewFormatter(config *common.ReportConfig, logger arbor.ILogger) *Formatter {
	return &Formatter{
		config: config,
		logger: logger,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Render produces the full digest in Markdown and HTML. Per-paper analysis
// HTML is also attached to the report's AnalysisResults as a side effect, for
// consumers that render papers individually.
func (f *Formatter) Render(report *models.RunReport) (htmlOut, markdown string, err error) {
	var md strings.Builder

	date := report.StartedAt.Format("2006-01-02")
	md.WriteString(fmt.Sprintf("# %s — %s\n\n", f.config.Title, date))
	md.WriteString(fmt.Sprintf("Harvested **%d** papers, promoted **%d**, analyzed **%d**",
		report.Harvested, report.Promoted, len(report.Analyzed)))
	if report.FailedCount > 0 {
		md.WriteString(fmt.Sprintf(", **%d** failed", report.FailedCount))
	}
	md.WriteString(".\n\n")

	if report.Harvested == 0 {
		md.WriteString("No papers were found in the search window.\n")
	} else if len(report.Analyzed) == 0 {
		md.WriteString("No papers passed the promotion threshold for deep analysis.\n")
	}

	for i, ap := range report.Analyzed {
		md.WriteString("---\n\n")
		md.WriteString(fmt.Sprintf("## %d. %s\n\n", i+1, ap.Paper.Title))

		if len(ap.Paper.Authors) > 0 {
			md.WriteString(fmt.Sprintf("**Authors:** %s\n\n", strings.Join(ap.Paper.Authors, ", ")))
		}
		if ap.Score > 0 {
			md.WriteString(fmt.Sprintf("**Score:** %.1f\n\n", ap.Score))
		}
		md.WriteString(fmt.Sprintf("**Link:** <%s>\n\n", ap.Paper.AbsURL()))

		if ap.Analysis != nil {
			md.WriteString(ap.Analysis.RawText)
			md.WriteString("\n\n")

			if ap.Analysis.HTMLText == "" {
				rendered, renderErr := f.toHTML(ap.Analysis.RawText)
				if renderErr != nil {
					f.logger.Warn().Err(renderErr).Str("paper_id", ap.Paper.ID).Msg("Failed to render analysis HTML")
				} else {
					ap.Analysis.HTMLText = rendered
				}
			}
		}
	}

	if f.config.RepoURL != "" {
		md.WriteString(fmt.Sprintf("\n---\n\n*Generated by [indago](%s)*\n", f.config.RepoURL))
	}

	markdown = md.String()

	body, err := f.toHTML(markdown)
	if err != nil {
		return "", "", fmt.Errorf("failed to render report HTML: %w", err)
	}
	htmlOut = wrapHTML(f.config.Title, body)

	return htmlOut, markdown, nil
}

// WriteFiles persists the rendered report to the output directory and returns
// the paths written.
func (f *Formatter) WriteFiles(report *models.RunReport, htmlOut, markdown string) (htmlPath, mdPath string, err error) {
	if err := os.MkdirAll(f.config.OutputDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create report dir: %w", err)
	}

	stamp := report.StartedAt.Format("2006-01-02")
	htmlPath = filepath.Join(f.config.OutputDir, fmt.Sprintf("digest_%s.html", stamp))
	mdPath = filepath.Join(f.config.OutputDir, fmt.Sprintf("digest_%s.md", stamp))

	if err := os.WriteFile(htmlPath, []byte(htmlOut), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write HTML report: %w", err)
	}
	if err := os.WriteFile(mdPath, []byte(markdown), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write Markdown report: %w", err)
	}

	f.logger.Info().
		Str("html", htmlPath).
		Str("markdown", mdPath).
		Msg("Report written")

	return htmlPath, mdPath, nil
}

func (f *Formatter) toHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func wrapHTML(title, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString(fmt.Sprintf("<title>%s</title>\n", title))
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, Segoe UI, sans-serif; max-width: 800px; margin: 2em auto; padding: 0 1em; color: #222; }\n")
	b.WriteString("h2 { border-bottom: 1px solid #ddd; padding-bottom: 0.3em; }\n")
	b.WriteString("hr { border: none; border-top: 1px solid #ddd; margin: 2em 0; }\n")
	b.WriteString("a { color: #0969da; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("\n</body>\n</html>\n")
	return b.String()
}
