package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/ternarybob/indago/internal/services/backends"
)

// DeepAnalyzer is stage 2: it groups promoted papers into fixed-size batches,
// fetches full text per paper on the I/O pool, submits each batch for
// free-text analysis through the backend selector, and de-multiplexes the
// single batch response into per-paper analysis text.
type DeepAnalyzer struct {
	selector     *backends.Selector
	fullText     interfaces.FullTextProvider // nil disables full-text fetch
	analysisPool *Pool
	ioPool       *Pool
	logger       arbor.ILogger
	batchSize    int
	maxAttempts  int
	retry        *backends.RetryConfig
}

func NewDeepAnalyzer(selector *backends.Selector, fullText interfaces.FullTextProvider, analysisPool, ioPool *Pool, batchSize, maxAttempts int, logger arbor.ILogger) *DeepAnalyzer {
	if batchSize <= 0 {
		batchSize = 5
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &DeepAnalyzer{
		selector:     selector,
		fullText:     fullText,
		analysisPool: analysisPool,
		ioPool:       ioPool,
		logger:       logger,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
		retry:        backends.NewDefaultRetryConfig(),
	}
}

// Analyze runs deep analysis over the promoted papers and returns one
// AnalysisResult per paper that completed. Papers whose analysis failed are
// absent from the result, never present with partial text.
func (d *DeepAnalyzer) Analyze(ctx context.Context, papers []*models.Paper) map[string]*models.AnalysisResult {
	if len(papers) == 0 {
		return map[string]*models.AnalysisResult{}
	}

	var batches [][]*models.Paper
	for start := 0; start < len(papers); start += d.batchSize {
		end := start + d.batchSize
		if end > len(papers) {
			end = len(papers)
		}
		batches = append(batches, papers[start:end])
	}

	d.logger.Info().
		Int("papers", len(papers)).
		Int("batches", len(batches)).
		Int("batch_size", d.batchSize).
		Msg("Stage 2: deep analysis")

	var mu sync.Mutex
	results := make(map[string]*models.AnalysisResult)

	var wg sync.WaitGroup
	for i, batch := range batches {
		batchIndex, batchPapers := i, batch
		wg.Add(1)
		d.analysisPool.Submit(func() {
			defer wg.Done()

			sections := d.analyzeBatch(ctx, batchIndex, batchPapers)

			mu.Lock()
			for id, text := range sections {
				results[id] = &models.AnalysisResult{PaperID: id, RawText: text}
			}
			mu.Unlock()
		})
	}
	wg.Wait()

	d.logger.Info().
		Int("analyzed", len(results)).
		Int("failed", len(papers)-len(results)).
		Msg("Stage 2: deep analysis complete")

	return results
}

// analyzeBatch runs the full lifecycle for one batch: full-text fetch
// (blocking, on the I/O pool), the batched backend call with retries, response
// de-multiplexing, one bounded shortfall re-submit, then fire-and-forget
// artifact cleanup.
func (d *DeepAnalyzer) analyzeBatch(ctx context.Context, batchIndex int, papers []*models.Paper) map[string]string {
	fullText, handles := d.fetchFullText(ctx, papers)
	defer d.releaseArtifacts(handles)

	raw, err := d.callWithRetries(ctx, papers, fullText)
	if err != nil {
		d.logger.Error().
			Err(err).
			Int("batch", batchIndex).
			Int("size", len(papers)).
			Msg("Deep analysis batch exhausted all attempts")
		return nil
	}

	ids := make([]string, len(papers))
	byID := make(map[string]*models.Paper, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	sections := backends.SplitBatchAnalysis(raw, ids)

	// Papers whose delimiter never appeared get one re-submit as a smaller
	// fresh batch; a second shortfall is final.
	if len(sections) < len(papers) && len(sections) > 0 {
		var missing []*models.Paper
		for _, id := range ids {
			if _, ok := sections[id]; !ok {
				missing = append(missing, byID[id])
			}
		}

		d.logger.Warn().
			Int("batch", batchIndex).
			Int("missing", len(missing)).
			Msg("Batch response missing sections, re-submitting shortfall once")

		retryRaw, _, retryErr := d.selector.AnalyzeBatch(ctx, missing, fullText)
		if retryErr == nil {
			missingIDs := make([]string, len(missing))
			for i, p := range missing {
				missingIDs[i] = p.ID
			}
			for id, text := range backends.SplitBatchAnalysis(retryRaw, missingIDs) {
				sections[id] = text
			}
		} else {
			d.logger.Warn().
				Err(retryErr).
				Int("batch", batchIndex).
				Msg("Shortfall re-submit failed")
		}
	}

	for _, id := range ids {
		if _, ok := sections[id]; !ok {
			d.logger.Warn().
				Str("paper_id", id).
				Int("batch", batchIndex).
				Msg("No analysis recovered for paper")
		}
	}

	return sections
}

// callWithRetries submits the batch through the fallback sequence up to
// maxAttempts times with exponential backoff between attempts. Each attempt
// already walks every eligible backend, so retries here cover transient
// outages that disabled the whole sequence briefly.
func (d *DeepAnalyzer) callWithRetries(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		raw, identity, err := d.selector.AnalyzeBatch(ctx, papers, fullText)
		if err == nil {
			d.logger.Debug().
				Str("backend", identity.Name).
				Int("size", len(papers)).
				Msg("Batch analyzed")
			return raw, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, backends.ErrExhausted) {
			return "", err
		}
		if attempt == d.maxAttempts-1 {
			break
		}

		backoff := d.retry.CalculateBackoff(attempt, 0)
		d.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Batch attempt exhausted fallback sequence, backing off")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", lastErr
}

// fetchFullText pulls full text for each paper concurrently on the I/O pool.
// Best-effort: a paper with no retrievable text is analyzed from its abstract.
func (d *DeepAnalyzer) fetchFullText(ctx context.Context, papers []*models.Paper) (map[string]string, []string) {
	if d.fullText == nil {
		return nil, nil
	}

	var mu sync.Mutex
	texts := make(map[string]string, len(papers))
	var handles []string

	var wg sync.WaitGroup
	for _, paper := range papers {
		p := paper
		wg.Add(1)
		d.ioPool.Submit(func() {
			defer wg.Done()

			text, handle := d.fullText.FetchFullText(ctx, p)

			mu.Lock()
			if text != "" {
				texts[p.ID] = text
			}
			if handle != "" {
				handles = append(handles, handle)
			}
			mu.Unlock()

			if text == "" {
				d.logger.Warn().
					Str("paper_id", p.ID).
					Msg("No full text available, falling back to abstract")
			}
		})
	}
	wg.Wait()

	return texts, handles
}

// releaseArtifacts dispatches cleanup for downloaded artifacts. Fire and
// forget: the batch result does not wait on it.
func (d *DeepAnalyzer) releaseArtifacts(handles []string) {
	for _, handle := range handles {
		h := handle
		d.ioPool.Submit(func() {
			d.fullText.Release(h)
		})
	}
}
