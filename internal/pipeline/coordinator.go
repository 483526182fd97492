package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/ternarybob/indago/internal/services/backends"
)

// Coordinator composes one pipeline invocation: harvest, windowed ranking,
// promotion, deep analysis, and outcome persistence. In legacy mode the
// ranking and promotion stages are skipped and every harvested paper goes
// straight to batched deep analysis.
type Coordinator struct {
	config   *common.Config
	source   interfaces.PaperSource
	fullText interfaces.FullTextProvider
	selector *backends.Selector
	sink     interfaces.ResultSink
	notifier interfaces.Notifier
	logger   arbor.ILogger
}

func NewCoordinator(
	config *common.Config,
	source interfaces.PaperSource,
	fullText interfaces.FullTextProvider,
	selector *backends.Selector,
	sink interfaces.ResultSink,
	notifier interfaces.Notifier,
	logger arbor.ILogger,
) *Coordinator {
	return &Coordinator{
		config:   config,
		source:   source,
		fullText: fullText,
		selector: selector,
		sink:     sink,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes one full pipeline invocation and returns the run report.
// Harvest transport failure is fatal for the run; downstream failures degrade
// to a partial report, or to a run-level failure notification when no paper
// could be analyzed at all.
func (c *Coordinator) Run(ctx context.Context) (*models.RunReport, error) {
	runID := uuid.NewString()
	report := &models.RunReport{
		RunID:     runID,
		StartedAt: time.Now(),
	}

	c.logger.Info().
		Str("run_id", runID).
		Strs("categories", c.config.Arxiv.Categories).
		Msg("Pipeline run starting")

	papers, err := c.source.FetchRecent(ctx, c.config.Arxiv.Categories, c.config.Arxiv.MaxPapers, c.config.Arxiv.SearchDays)
	if err != nil {
		return nil, fmt.Errorf("paper harvest failed: %w", err)
	}
	report.Harvested = len(papers)

	if len(papers) == 0 {
		c.logger.Info().Str("run_id", runID).Msg("No papers found in search window")
		report.FinishedAt = time.Now()
		return report, nil
	}

	analysisPool := NewPool("analysis", c.config.Analysis.Workers, c.logger)
	defer analysisPool.Stop()
	ioPool := NewPool("io", c.config.Analysis.Workers*c.config.Analysis.IOMultiplier, c.logger)
	defer ioPool.Stop()

	fullText := c.fullText
	if !c.config.Analysis.FetchFullText {
		fullText = nil
	}
	deep := NewDeepAnalyzer(c.selector, fullText, analysisPool, ioPool,
		c.config.Analysis.BatchSize, c.config.Backends.MaxAttempts, c.logger)

	if c.config.Analysis.TwoStage {
		c.runTwoStage(ctx, runID, papers, analysisPool, deep, report)
	} else {
		c.logger.Info().Str("run_id", runID).Msg("Two-stage analysis disabled, running direct batch analysis")
		c.runDirect(ctx, runID, papers, deep, report)
	}

	report.FinishedAt = time.Now()

	// A run with promoted papers and zero analyses is a pipeline failure, not
	// an empty report.
	if report.Promoted > 0 && len(report.Analyzed) == 0 {
		reason := fmt.Sprintf("%d papers promoted for analysis, none completed", report.Promoted)
		c.logger.Error().Str("run_id", runID).Msg(reason)
		if c.notifier != nil {
			if notifyErr := c.notifier.SendFailure(ctx, runID, reason); notifyErr != nil {
				c.logger.Error().Err(notifyErr).Msg("Failed to send failure notification")
			}
		}
		return report, fmt.Errorf("pipeline could not obtain any analysis: %s", reason)
	}

	c.logger.Info().
		Str("run_id", runID).
		Int("harvested", report.Harvested).
		Int("promoted", report.Promoted).
		Int("analyzed", len(report.Analyzed)).
		Int("failed", report.FailedCount).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Pipeline run finished")

	return report, nil
}

func (c *Coordinator) runTwoStage(ctx context.Context, runID string, papers []*models.Paper, analysisPool *Pool, deep *DeepAnalyzer, report *models.RunReport) {
	ranker := NewRanker(c.selector, analysisPool, c.config.Analysis.WindowSize, c.config.Analysis.StepSize, c.logger)
	scored := ranker.Rank(ctx, papers)

	promoted := Promote(scored, c.config.Analysis.PromotionThreshold, c.config.Analysis.MaxPromote)
	report.Promoted = len(promoted)

	c.logger.Info().
		Str("run_id", runID).
		Int("promoted", len(promoted)).
		Float64("threshold", c.config.Analysis.PromotionThreshold).
		Int("max_promote", c.config.Analysis.MaxPromote).
		Msg("Promotion filter applied")

	// Non-promoted papers are terminal for this run but still recorded, so
	// the report is distinguishable from a run that found nothing.
	promotedIDs := make(map[string]bool, len(promoted))
	for _, sp := range promoted {
		promotedIDs[sp.Paper.ID] = true
	}
	for _, sp := range scored {
		if !promotedIDs[sp.Paper.ID] {
			c.saveOutcome(ctx, runID, sp.Paper, models.StatusFiltered, sp.Score, "")
		}
	}

	if len(promoted) == 0 {
		return
	}

	promotedPapers := make([]*models.Paper, len(promoted))
	for i, sp := range promoted {
		promotedPapers[i] = sp.Paper
	}
	results := deep.Analyze(ctx, promotedPapers)

	for _, sp := range promoted {
		if result, ok := results[sp.Paper.ID]; ok {
			report.Analyzed = append(report.Analyzed, models.AnalyzedPaper{
				Paper:    sp.Paper,
				Score:    sp.Score,
				Analysis: result,
			})
			c.saveOutcome(ctx, runID, sp.Paper, models.StatusAnalyzed, sp.Score, result.RawText)
		} else {
			report.FailedCount++
			c.saveOutcome(ctx, runID, sp.Paper, models.StatusFailed, sp.Score, "")
		}
	}
}

// runDirect is the legacy single-stage mode: every harvested paper is batch
// analyzed with no ranking signal attached.
func (c *Coordinator) runDirect(ctx context.Context, runID string, papers []*models.Paper, deep *DeepAnalyzer, report *models.RunReport) {
	report.Promoted = len(papers)
	results := deep.Analyze(ctx, papers)

	for _, paper := range papers {
		if result, ok := results[paper.ID]; ok {
			report.Analyzed = append(report.Analyzed, models.AnalyzedPaper{
				Paper:    paper,
				Analysis: result,
			})
			c.saveOutcome(ctx, runID, paper, models.StatusAnalyzed, 0, result.RawText)
		} else {
			report.FailedCount++
			c.saveOutcome(ctx, runID, paper, models.StatusFailed, 0, "")
		}
	}
}

// saveOutcome persists one per-paper record. Sink failures are logged, never
// fatal: persistence is downstream of analysis, not a gate on it.
func (c *Coordinator) saveOutcome(ctx context.Context, runID string, paper *models.Paper, status models.PaperStatus, score float64, analysis string) {
	if c.sink == nil {
		return
	}

	outcome := &models.PaperOutcome{
		Key:       runID + "/" + paper.ID,
		RunID:     runID,
		PaperID:   paper.ID,
		Title:     paper.Title,
		Status:    status,
		Score:     score,
		Analysis:  analysis,
		CreatedAt: time.Now(),
	}
	if err := c.sink.SaveOutcome(ctx, outcome); err != nil {
		c.logger.Error().
			Err(err).
			Str("paper_id", paper.ID).
			Str("status", string(status)).
			Msg("Failed to persist paper outcome")
	}
}
