package pipeline

import (
	"github.com/ternarybob/indago/internal/models"
)

// Promote selects the papers eligible for deep analysis: aggregated score at
// or above threshold, truncated to maxPromote, rank order preserved. Pure
// function; the input is expected sorted descending by score.
func Promote(scored []models.ScoredPaper, threshold float64, maxPromote int) []models.ScoredPaper {
	promoted := make([]models.ScoredPaper, 0, len(scored))
	for _, sp := range scored {
		if sp.Score >= threshold {
			promoted = append(promoted, sp)
		}
	}
	if maxPromote > 0 && len(promoted) > maxPromote {
		promoted = promoted[:maxPromote]
	}
	return promoted
}
