package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// OutcomeStorage implements the ResultSink interface for Badger
type OutcomeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.ResultSink = (*OutcomeStorage)(nil)

// NewOutcomeStorage creates a new OutcomeStorage instance
func NewOutcomeStorage(db *BadgerDB, logger arbor.ILogger) *OutcomeStorage {
	return &OutcomeStorage{
		db:     db,
		logger: logger,
	}
}

// SaveOutcome upserts one per-paper run record. Re-saving the same key is
// allowed; the pipeline's delivery contract is at-least-once.
func (s *OutcomeStorage) SaveOutcome(ctx context.Context, outcome *models.PaperOutcome) error {
	if outcome.Key == "" {
		return fmt.Errorf("outcome key is required")
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(outcome.Key, outcome); err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns every outcome recorded for a run
func (s *OutcomeStorage) ListOutcomes(ctx context.Context, runID string) ([]models.PaperOutcome, error) {
	var outcomes []models.PaperOutcome
	if err := s.db.Store().Find(&outcomes, badgerhold.Where("RunID").Eq(runID)); err != nil {
		return nil, fmt.Errorf("failed to list outcomes for run %s: %w", runID, err)
	}
	return outcomes, nil
}

// Close closes the underlying database
func (s *OutcomeStorage) Close() error {
	return s.db.Close()
}
