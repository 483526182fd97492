package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/indago/internal/models"
)

func scoredList(scores ...float64) []models.ScoredPaper {
	papers := makePapers(len(scores))
	scored := make([]models.ScoredPaper, len(scores))
	for i, s := range scores {
		scored[i] = models.ScoredPaper{Paper: papers[i], Score: s}
	}
	return scored
}

func TestPromote(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float64
		threshold  float64
		maxPromote int
		wantCount  int
	}{
		{"all above threshold", []float64{5.0, 4.5, 4.0}, 3.5, 20, 3},
		{"threshold cuts", []float64{5.0, 3.5, 3.4, 1.0}, 3.5, 20, 2},
		{"threshold inclusive", []float64{3.5}, 3.5, 20, 1},
		{"cap truncates", []float64{5.0, 4.9, 4.8, 4.7}, 3.5, 2, 2},
		{"nothing qualifies", []float64{2.0, 1.0}, 3.5, 20, 0},
		{"unscored sentinel never promoted", []float64{0.0, 0.0}, 3.5, 20, 0},
		{"empty input", nil, 3.5, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promoted := Promote(scoredList(tt.scores...), tt.threshold, tt.maxPromote)
			assert.Len(t, promoted, tt.wantCount)
		})
	}
}

func TestPromotePreservesRankOrder(t *testing.T) {
	scored := scoredList(5.0, 4.5, 4.0, 3.6)
	promoted := Promote(scored, 3.5, 3)

	require.Len(t, promoted, 3)
	assert.Equal(t, scored[0].Paper.ID, promoted[0].Paper.ID)
	assert.Equal(t, scored[1].Paper.ID, promoted[1].Paper.ID)
	assert.Equal(t, scored[2].Paper.ID, promoted[2].Paper.ID)
}

func TestPromoteIsDeterministic(t *testing.T) {
	scored := scoredList(5.0, 4.0, 3.6, 3.0, 1.0)

	first := Promote(scored, 3.5, 2)
	second := Promote(scored, 3.5, 2)

	assert.Equal(t, first, second)
}
