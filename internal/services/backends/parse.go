package backends

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/indago/internal/models"
)

// rankingEntry is the wire shape of one ranking verdict. Score is kept raw so
// a non-numeric value drops the entry instead of failing the whole response.
type rankingEntry struct {
	PaperID       string          `json:"paper_id"`
	Score         json.RawMessage `json:"score"`
	Justification string          `json:"justification"`
}

// ParseRankingResponse parses a stage-1 ranking response into RankingResults.
// Tolerated input shapes: a bare JSON list, a list wrapped in a single-key
// object, and either of those inside a Markdown code fence. Entries with a
// missing id or a non-numeric score are dropped, not defaulted to zero, so
// they cannot corrupt max-aggregation. Returns an error only when no list
// could be recovered at all.
func ParseRankingResponse(raw string) ([]models.RankingResult, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, fmt.Errorf("empty ranking response")
	}

	var entries []rankingEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		// Some backends wrap the list in an object ({"rankings": [...]})
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
			return nil, fmt.Errorf("ranking response is not valid JSON: %w", err)
		}
		found := false
		for _, v := range wrapper {
			var inner []rankingEntry
			if err := json.Unmarshal(v, &inner); err == nil {
				entries = inner
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("ranking response JSON contains no list")
		}
	}

	results := make([]models.RankingResult, 0, len(entries))
	for _, e := range entries {
		if e.PaperID == "" || len(e.Score) == 0 {
			continue
		}
		var score float64
		if err := json.Unmarshal(e.Score, &score); err != nil {
			continue
		}
		results = append(results, models.RankingResult{
			PaperID:       e.PaperID,
			Score:         score,
			Justification: e.Justification,
		})
	}
	return results, nil
}

// SplitBatchAnalysis de-multiplexes a stage-2 batch response into per-paper
// analysis text. The response contract is one section per paper opening with
// "Paper ID: <id>"; anything before the first delimiter is discarded. Papers
// whose id never appears are simply absent from the result, and a missing
// delimiter never merges one paper's text into a neighbor's. The returned map
// has at most len(paperIDs) entries.
func SplitBatchAnalysis(raw string, paperIDs []string) map[string]string {
	results := make(map[string]string)
	if raw == "" || len(paperIDs) == 0 {
		return results
	}

	escaped := make([]string, 0, len(paperIDs))
	for _, id := range paperIDs {
		escaped = append(escaped, regexp.QuoteMeta(id))
	}
	pattern := regexp.MustCompile(`Paper ID\s*:\s*(` + strings.Join(escaped, "|") + `)`)

	matches := pattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return results
	}

	known := make(map[string]bool, len(paperIDs))
	for _, id := range paperIDs {
		known[id] = true
	}

	for i, m := range matches {
		id := raw[m[2]:m[3]]
		if !known[id] {
			continue
		}

		start := m[1]
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		text := strings.TrimSpace(trimEchoedHeader(raw[start:end]))
		if text == "" {
			continue
		}
		// Keep the first section when a backend repeats an id
		if _, exists := results[id]; !exists {
			results[id] = text
		}
	}

	return results
}

// headerSeparator matches the "---" line that closes an echoed prompt header
var headerSeparator = regexp.MustCompile(`(?m)^\s*---\s*$`)

// trimEchoedHeader drops a section's echoed Title/Authors/Content header when
// the backend repeats it before the actual analysis.
func trimEchoedHeader(section string) string {
	loc := headerSeparator.FindStringIndex(section)
	if loc == nil {
		return section
	}
	// Only trim when the part before "---" looks like an echoed prompt header
	head := section[:loc[0]]
	if strings.Contains(head, "Title:") && strings.Contains(head, "Content:") {
		return section[loc[1]:]
	}
	return section
}

// codeFenceRegex matches a fenced block with an optional language tag
var codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// stripCodeFence unwraps a Markdown code fence around a JSON payload
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
