package interfaces

import (
	"context"

	"github.com/ternarybob/indago/internal/models"
)

// ResultSink persists per-paper run outcomes. The pipeline is a pure producer
// into the sink and never reads back from it.
type ResultSink interface {
	SaveOutcome(ctx context.Context, outcome *models.PaperOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]models.PaperOutcome, error)
	Close() error
}

// Notifier delivers the finished report, or a run-level failure notice when
// the pipeline could not obtain any analysis at all.
type Notifier interface {
	SendReport(ctx context.Context, report *models.RunReport, html, text string) error
	SendFailure(ctx context.Context, runID string, reason string) error
}
