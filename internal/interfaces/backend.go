package interfaces

import (
	"context"

	"github.com/ternarybob/indago/internal/models"
)

// AnalysisBackend is the contract every provider wrapper implements.
// Backends never mutate the papers they are given; full text for a paper is
// supplied through the fullText map keyed by paper ID.
type AnalysisBackend interface {
	// RankBatch scores one window of papers relative to each other and
	// returns one RankingResult per paper the backend could score.
	// Malformed entries in the provider response are dropped, not defaulted.
	RankBatch(ctx context.Context, papers []*models.Paper) ([]models.RankingResult, error)

	// AnalyzeBatch performs deep analysis on a batch of papers and returns a
	// single response containing one "Paper ID: <id>" delimited section per
	// paper. De-multiplexing is the caller's concern.
	AnalyzeBatch(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, error)

	// Identity returns the static backend identity.
	Identity() models.BackendIdentity

	// IsAvailable is a cheap, non-network check (credential present and
	// well-formed) gating whether the backend is offered as a candidate.
	IsAvailable() bool
}
