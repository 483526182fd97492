package interfaces

import (
	"context"

	"github.com/ternarybob/indago/internal/models"
)

// PaperSource discovers recently published papers
type PaperSource interface {
	// FetchRecent returns papers published within the trailing windowDays,
	// newest first, capped at maxCount. Transport failure is fatal for the run.
	FetchRecent(ctx context.Context, categories []string, maxCount, windowDays int) ([]*models.Paper, error)
}

// FullTextProvider fetches and releases full-text content for a paper.
// FetchFullText is best-effort: it returns empty text on failure, never an
// error that should abort the paper.
type FullTextProvider interface {
	// FetchFullText downloads and extracts the paper's full text. The returned
	// handle identifies a local artifact to release once analysis is done;
	// it is empty when nothing was downloaded.
	FetchFullText(ctx context.Context, paper *models.Paper) (text string, handle string)

	// Release removes the local artifact for a handle. Best-effort; failures
	// are logged only.
	Release(handle string)
}
