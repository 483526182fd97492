package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/ternarybob/indago/internal/services/backends"
)

// stubSource hands back a fixed paper list
type stubSource struct {
	papers []*models.Paper
	err    error
}

func (s *stubSource) FetchRecent(ctx context.Context, categories []string, maxCount, windowDays int) ([]*models.Paper, error) {
	return s.papers, s.err
}

// memorySink collects outcomes in memory
type memorySink struct {
	mu       sync.Mutex
	outcomes []models.PaperOutcome
}

func (s *memorySink) SaveOutcome(ctx context.Context, outcome *models.PaperOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, *outcome)
	return nil
}

func (s *memorySink) ListOutcomes(ctx context.Context, runID string) ([]models.PaperOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PaperOutcome(nil), s.outcomes...), nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) byStatus(status models.PaperStatus) []models.PaperOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaperOutcome
	for _, o := range s.outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// memoryNotifier records notifications
type memoryNotifier struct {
	mu       sync.Mutex
	reports  int
	failures []string
}

func (n *memoryNotifier) SendReport(ctx context.Context, report *models.RunReport, html, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports++
	return nil
}

func (n *memoryNotifier) SendFailure(ctx context.Context, runID string, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, reason)
	return nil
}

// pipelineBackend serves both stages: fixed ranking scores and batch analyses
// that omit configured papers.
type pipelineBackend struct {
	scores     map[string]float64
	omit       map[string]bool
	analyzeErr error
}

func (b *pipelineBackend) RankBatch(ctx context.Context, papers []*models.Paper) ([]models.RankingResult, error) {
	results := make([]models.RankingResult, 0, len(papers))
	for _, p := range papers {
		results = append(results, models.RankingResult{PaperID: p.ID, Score: b.scores[p.ID]})
	}
	return results, nil
}

func (b *pipelineBackend) AnalyzeBatch(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, error) {
	if b.analyzeErr != nil {
		return "", b.analyzeErr
	}
	var sb strings.Builder
	for _, p := range papers {
		if b.omit[p.ID] {
			continue
		}
		fmt.Fprintf(&sb, "Paper ID: %s\nDeep analysis of %s.\n\n", p.ID, p.ID)
	}
	if sb.Len() == 0 {
		sb.WriteString("Nothing to report.")
	}
	return sb.String(), nil
}

func (b *pipelineBackend) Identity() models.BackendIdentity {
	return models.BackendIdentity{Name: "stub", Model: "fake", Provider: "fake"}
}

func (b *pipelineBackend) IsAvailable() bool { return true }

func coordinatorConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Analysis.Workers = 2
	cfg.Analysis.IOMultiplier = 1
	cfg.Analysis.FetchFullText = false
	cfg.Backends.MaxAttempts = 1
	return cfg
}

func newCoordinatorForTest(cfg *common.Config, source interfaces.PaperSource, backend interfaces.AnalysisBackend, sink interfaces.ResultSink, notifier interfaces.Notifier) *Coordinator {
	logger := common.GetLogger()
	selector := backends.NewSelector(
		[]interfaces.AnalysisBackend{backend},
		backends.NewFailureTracker(cfg.Backends.MaxFailures, time.Minute),
		backends.SelectorOptions{},
		logger,
	)
	return NewCoordinator(cfg, source, nil, selector, sink, notifier, logger)
}

func TestCoordinatorTwoStageFlow(t *testing.T) {
	papers := makePapers(6)
	backend := &pipelineBackend{
		scores: map[string]float64{
			papers[0].ID: 4.5,
			papers[1].ID: 4.0,
			papers[2].ID: 3.6,
			papers[3].ID: 2.0,
			papers[4].ID: 1.5,
			papers[5].ID: 1.0,
		},
		omit: map[string]bool{papers[2].ID: true},
	}
	sink := &memorySink{}
	notifier := &memoryNotifier{}
	coordinator := newCoordinatorForTest(coordinatorConfig(), &stubSource{papers: papers}, backend, sink, notifier)

	report, err := coordinator.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 6, report.Harvested)
	assert.Equal(t, 3, report.Promoted)
	assert.Len(t, report.Analyzed, 2)
	assert.Equal(t, 1, report.FailedCount)

	// Analyzed papers come back in rank order
	assert.Equal(t, papers[0].ID, report.Analyzed[0].Paper.ID)
	assert.Equal(t, papers[1].ID, report.Analyzed[1].Paper.ID)
	assert.Equal(t, 4.5, report.Analyzed[0].Score)

	// Every harvested paper gets a terminal outcome
	assert.Len(t, sink.byStatus(models.StatusAnalyzed), 2)
	assert.Len(t, sink.byStatus(models.StatusFailed), 1)
	assert.Len(t, sink.byStatus(models.StatusFiltered), 3)
	assert.Empty(t, notifier.failures)
}

func TestCoordinatorAllAnalysesFailedNotifies(t *testing.T) {
	papers := makePapers(3)
	backend := &pipelineBackend{
		scores: map[string]float64{
			papers[0].ID: 4.5,
			papers[1].ID: 4.0,
			papers[2].ID: 3.8,
		},
		analyzeErr: fmt.Errorf("401 unauthorized"),
	}
	sink := &memorySink{}
	notifier := &memoryNotifier{}
	coordinator := newCoordinatorForTest(coordinatorConfig(), &stubSource{papers: papers}, backend, sink, notifier)

	report, err := coordinator.Run(context.Background())

	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Promoted)
	assert.Empty(t, report.Analyzed)
	assert.Equal(t, 3, report.FailedCount)
	require.Len(t, notifier.failures, 1)
	assert.Contains(t, notifier.failures[0], "3 papers promoted")
}

func TestCoordinatorHarvestFailureIsFatal(t *testing.T) {
	coordinator := newCoordinatorForTest(coordinatorConfig(), &stubSource{err: fmt.Errorf("dial tcp: timeout")}, &pipelineBackend{}, &memorySink{}, &memoryNotifier{})

	report, err := coordinator.Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, report)
}

func TestCoordinatorEmptyHarvestIsNotAFailure(t *testing.T) {
	notifier := &memoryNotifier{}
	coordinator := newCoordinatorForTest(coordinatorConfig(), &stubSource{}, &pipelineBackend{}, &memorySink{}, notifier)

	report, err := coordinator.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Harvested)
	assert.Empty(t, notifier.failures, "no papers found is a valid outcome, not a pipeline failure")
}

func TestCoordinatorLegacyDirectMode(t *testing.T) {
	papers := makePapers(4)
	cfg := coordinatorConfig()
	cfg.Analysis.TwoStage = false

	backend := &pipelineBackend{}
	sink := &memorySink{}
	coordinator := newCoordinatorForTest(cfg, &stubSource{papers: papers}, backend, sink, &memoryNotifier{})

	report, err := coordinator.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, report.Harvested)
	assert.Len(t, report.Analyzed, 4)
	assert.Empty(t, sink.byStatus(models.StatusFiltered), "legacy mode has no promotion filter")
}

func TestCoordinatorNothingPromoted(t *testing.T) {
	papers := makePapers(3)
	backend := &pipelineBackend{
		scores: map[string]float64{
			papers[0].ID: 2.0,
			papers[1].ID: 1.5,
			papers[2].ID: 1.0,
		},
	}
	sink := &memorySink{}
	notifier := &memoryNotifier{}
	coordinator := newCoordinatorForTest(coordinatorConfig(), &stubSource{papers: papers}, backend, sink, notifier)

	report, err := coordinator.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Promoted)
	assert.Empty(t, report.Analyzed)
	assert.Len(t, sink.byStatus(models.StatusFiltered), 3)
	assert.Empty(t, notifier.failures)
}
