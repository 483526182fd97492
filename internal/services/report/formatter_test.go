package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
)

func testFormatter(outputDir string) *Formatter {
	cfg := &common.ReportConfig{
		Title:     "arXiv Digest",
		OutputDir: outputDir,
		RepoURL:   "https://github.com/ternarybob/indago",
	}
	return NewFormatter(cfg, common.GetLogger())
}

func sampleReport() *models.RunReport {
	return &models.RunReport{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Harvested: 12,
		Promoted:  2,
		Analyzed: []models.AnalyzedPaper{
			{
				Paper: &models.Paper{
					ID:      "2403.01234v1",
					Title:   "Windowed Ranking at Scale",
					Authors: []string{"Alice Example", "Bob Example"},
				},
				Score: 4.5,
				Analysis: &models.AnalysisResult{
					PaperID: "2403.01234v1",
					RawText: "**Key contribution:** a sliding-window ranking scheme.",
				},
			},
			{
				Paper: &models.Paper{
					ID:    "2403.05678v1",
					Title: "Batch Analysis of Research Papers",
				},
				Score: 3.8,
				Analysis: &models.AnalysisResult{
					PaperID: "2403.05678v1",
					RawText: "A solid incremental result.",
				},
			},
		},
		FailedCount: 1,
	}
}

func TestRenderMarkdown(t *testing.T) {
	formatter := testFormatter(t.TempDir())
	report := sampleReport()

	htmlOut, markdown, err := formatter.Render(report)
	require.NoError(t, err)

	assert.Contains(t, markdown, "# arXiv Digest — 2026-03-14")
	assert.Contains(t, markdown, "Harvested **12** papers, promoted **2**, analyzed **2**, **1** failed.")
	assert.Contains(t, markdown, "## 1. Windowed Ranking at Scale")
	assert.Contains(t, markdown, "## 2. Batch Analysis of Research Papers")
	assert.Contains(t, markdown, "**Authors:** Alice Example, Bob Example")
	assert.Contains(t, markdown, "**Score:** 4.5")
	assert.Contains(t, markdown, "https://arxiv.org/abs/2403.01234v1")
	assert.Contains(t, markdown, "**Key contribution:** a sliding-window ranking scheme.")
	assert.Contains(t, markdown, "[indago](https://github.com/ternarybob/indago)")

	assert.Contains(t, htmlOut, "<!DOCTYPE html>")
	assert.Contains(t, htmlOut, "<title>arXiv Digest</title>")
	assert.Contains(t, htmlOut, "<strong>Key contribution:</strong>")
}

func TestRenderFillsPerPaperHTML(t *testing.T) {
	formatter := testFormatter(t.TempDir())
	report := sampleReport()

	_, _, err := formatter.Render(report)
	require.NoError(t, err)

	assert.Contains(t, report.Analyzed[0].Analysis.HTMLText, "<strong>Key contribution:</strong>")
	assert.NotEmpty(t, report.Analyzed[1].Analysis.HTMLText)
}

func TestRenderEmptyRun(t *testing.T) {
	formatter := testFormatter(t.TempDir())
	report := &models.RunReport{
		RunID:     "run-2",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	_, markdown, err := formatter.Render(report)
	require.NoError(t, err)

	assert.Contains(t, markdown, "No papers were found in the search window.")
}

func TestRenderNothingPromoted(t *testing.T) {
	formatter := testFormatter(t.TempDir())
	report := &models.RunReport{
		RunID:     "run-3",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Harvested: 8,
	}

	_, markdown, err := formatter.Render(report)
	require.NoError(t, err)

	assert.Contains(t, markdown, "No papers passed the promotion threshold")
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	formatter := testFormatter(filepath.Join(dir, "reports"))
	report := sampleReport()

	htmlOut, markdown, err := formatter.Render(report)
	require.NoError(t, err)

	htmlPath, mdPath, err := formatter.WriteFiles(report, htmlOut, markdown)
	require.NoError(t, err)

	assert.Equal(t, "digest_2026-03-14.html", filepath.Base(htmlPath))
	assert.Equal(t, "digest_2026-03-14.md", filepath.Base(mdPath))

	written, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, markdown, string(written))
}
