package backends

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/indago/internal/models"
)

// rankingSystemPrompt forces a relative score distribution across the window
// so one window's scores are comparable to another's. The distribution is a
// prompt-level contract; the parser tolerates backends that ignore it.
const rankingSystemPrompt = `You are a senior research-paper reviewer ranking a batch of arXiv papers relative to each other.

Rules:
1. Score every paper on a 1.0-5.0 scale, one decimal place.
2. Force a relative distribution across the batch:
   - top ~10%: 4.5-5.0 (breakthrough work)
   - next ~20%: 3.5-4.4 (important and interesting)
   - middle ~40%: 2.5-3.4 (solid incremental contribution)
   - bottom ~30%: 1.0-2.4 (minor, limited impact, or flawed)
3. Output a JSON list only. Each element must contain paper_id, score and
   justification. Do not output any text outside the JSON.

Example output:
[
  {"paper_id": "2401.0001", "score": 4.8, "justification": "breakthrough method for a long-standing problem"},
  {"paper_id": "2401.0002", "score": 3.2, "justification": "solid incremental work, good experiments"},
  {"paper_id": "2401.0003", "score": 1.8, "justification": "flawed method, unconvincing results"}
]`

// analysisSystemPrompt drives the stage-2 deep analysis of promoted papers
const analysisSystemPrompt = `You are a professional academic research analyst. For each paper you are given, write an objective, rigorous analysis in Markdown covering:

1. **Background and motivation** - why the problem matters, what gap is filled
2. **Technical contributions** - key methods, algorithmic or architectural novelty
3. **Experiments and results** - soundness of the evaluation, key metrics, comparisons
4. **Assessment** - theoretical significance, impact on the field, practical value
5. **Limitations and outlook** - weaknesses and future directions

When analyzing multiple papers, begin each paper's analysis with a line of the
exact form "Paper ID: <id>" using the id you were given, followed by the
analysis. Do not merge papers into a single analysis.`

const (
	rankMaxTokens      = 2048
	rankTemperature    = 0.2
	analyzeMaxTokens   = 8000
	analyzeTemperature = 0.5

	// Hard cap on per-paper content inside a batch prompt, independent of the
	// configured full-text cap applied upstream.
	maxPromptContentLen = 20000
	maxAbstractLen      = 2500
)

// formatRankingPrompt lists one window of papers for relative scoring
func formatRankingPrompt(papers []*models.Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rank the following %d papers relative to each other.\n\n", len(papers))
	for i, p := range papers {
		fmt.Fprintf(&b, "Paper %d\n", i+1)
		fmt.Fprintf(&b, "paper_id: %s\n", p.ID)
		fmt.Fprintf(&b, "Title: %s\n", p.Title)
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(p.Categories, ", "))
		fmt.Fprintf(&b, "Abstract: %s\n\n", truncate(p.Abstract, maxAbstractLen))
	}
	b.WriteString("Return the JSON list now.")
	return b.String()
}

// formatAnalysisPrompt builds the stage-2 batch prompt. Full text, when
// available in the fullText map, replaces the abstract as analysis content.
func formatAnalysisPrompt(papers []*models.Paper, fullText map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %d papers. Begin each analysis with \"Paper ID: <id>\".\n\n", len(papers))
	for _, p := range papers {
		content := p.Abstract
		if text, ok := fullText[p.ID]; ok && text != "" {
			content = text
		}

		fmt.Fprintf(&b, "Paper ID: %s\n", p.ID)
		fmt.Fprintf(&b, "Title: %s\n", p.Title)
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(p.Authors, ", "))
		fmt.Fprintf(&b, "Published: %s\n", p.Published.Format("2006-01-02"))
		fmt.Fprintf(&b, "Link: %s\n", p.AbsURL())
		fmt.Fprintf(&b, "Content: %s\n", truncate(content, maxPromptContentLen))
		b.WriteString("---\n")
	}
	return b.String()
}

// truncate caps s at max characters, marking the cut
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never splits a character
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "\n... (content truncated)"
}
