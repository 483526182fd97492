// Package backends wraps the interchangeable analysis providers behind a
// single contract and adds the failure tracking and fallback selection used
// by the batch pipeline.
package backends

import (
	"context"

	"github.com/ternarybob/indago/internal/models"
)

// generateFunc is the provider-specific completion call shared by the rank
// and analyze operations of a backend.
type generateFunc func(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)

// rankWith runs the stage-1 ranking prompt through a backend's generator and
// parses the JSON verdict list.
func rankWith(ctx context.Context, name string, gen generateFunc, papers []*models.Paper) ([]models.RankingResult, error) {
	if len(papers) == 0 {
		return nil, nil
	}

	raw, err := gen(ctx, rankingSystemPrompt, formatRankingPrompt(papers), rankMaxTokens, rankTemperature)
	if err != nil {
		return nil, wrapErr(name, err)
	}

	results, err := ParseRankingResponse(raw)
	if err != nil {
		return nil, &BackendError{Backend: name, Kind: FailureParse, Err: err}
	}
	return results, nil
}

// analyzeWith runs the stage-2 batch analysis prompt through a backend's
// generator. The raw multi-section response is returned unparsed.
func analyzeWith(ctx context.Context, name string, gen generateFunc, papers []*models.Paper, fullText map[string]string) (string, error) {
	if len(papers) == 0 {
		return "", nil
	}

	raw, err := gen(ctx, analysisSystemPrompt, formatAnalysisPrompt(papers, fullText), analyzeMaxTokens, analyzeTemperature)
	if err != nil {
		return "", wrapErr(name, err)
	}
	return raw, nil
}
