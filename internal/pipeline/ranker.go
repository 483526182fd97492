package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/models"
	"github.com/ternarybob/indago/internal/services/backends"
)

// Ranker is stage 1: it slices the harvested papers into overlapping windows,
// scores every window concurrently through the backend selector, and
// aggregates per-paper scores across windows by keeping the maximum.
type Ranker struct {
	selector   *backends.Selector
	pool       *Pool
	logger     arbor.ILogger
	windowSize int
	stepSize   int
}

func NewRanker(selector *backends.Selector, pool *Pool, windowSize, stepSize int, logger arbor.ILogger) *Ranker {
	return &Ranker{
		selector:   selector,
		pool:       pool,
		logger:     logger,
		windowSize: windowSize,
		stepSize:   stepSize,
	}
}

// buildWindows slices papers into windows of windowSize advancing by stepSize
// (overlap windowSize-stepSize). A trailing slice smaller than half a window
// is not submitted on its own; the previous window is extended to the end of
// the list instead, so no runt window ever reaches a backend. Windows share
// the backing array and must be treated as read-only.
func buildWindows(papers []*models.Paper, windowSize, stepSize int) [][]*models.Paper {
	n := len(papers)
	if n == 0 {
		return nil
	}
	if windowSize <= 0 {
		windowSize = n
	}
	if stepSize <= 0 {
		stepSize = 1
	}

	type span struct{ start, end int }
	var spans []span

	for start := 0; start < n; start += stepSize {
		end := start + windowSize
		if end > n {
			end = n
		}
		if len(spans) > 0 && (end-start)*2 < windowSize {
			spans[len(spans)-1].end = n
			break
		}
		spans = append(spans, span{start, end})
		if end == n {
			break
		}
	}

	windows := make([][]*models.Paper, len(spans))
	for i, s := range spans {
		windows[i] = papers[s.start:s.end:s.end]
	}
	return windows
}

// Rank scores all papers and returns them sorted by aggregated score,
// descending. Papers that received no score carry the 0.0 sentinel and sort
// last, preserving their original relative order. A window whose every
// fallback candidate failed contributes nothing; the run continues.
func (r *Ranker) Rank(ctx context.Context, papers []*models.Paper) []models.ScoredPaper {
	windows := buildWindows(papers, r.windowSize, r.stepSize)

	r.logger.Info().
		Int("papers", len(papers)).
		Int("windows", len(windows)).
		Int("window_size", r.windowSize).
		Int("step_size", r.stepSize).
		Msg("Stage 1: ranking windows")

	known := make(map[string]bool, len(papers))
	for _, p := range papers {
		known[p.ID] = true
	}

	var mu sync.Mutex
	scores := make(map[string]float64)

	var wg sync.WaitGroup
	for i, window := range windows {
		windowIndex, windowPapers := i, window
		wg.Add(1)
		r.pool.Submit(func() {
			defer wg.Done()

			results, identity, err := r.selector.RankBatch(ctx, windowPapers)
			if err != nil {
				r.logger.Error().
					Err(err).
					Int("window", windowIndex).
					Int("size", len(windowPapers)).
					Msg("Window ranking failed, papers remain unscored")
				return
			}

			// Merge at the window join point; ids the backend invented are
			// ignored.
			mu.Lock()
			for _, res := range results {
				if !known[res.PaperID] {
					continue
				}
				if existing, ok := scores[res.PaperID]; !ok || res.Score > existing {
					scores[res.PaperID] = res.Score
				}
			}
			mu.Unlock()

			r.logger.Debug().
				Int("window", windowIndex).
				Int("scored", len(results)).
				Str("backend", identity.Name).
				Msg("Window ranked")
		})
	}
	wg.Wait()

	scored := make([]models.ScoredPaper, len(papers))
	for i, p := range papers {
		scored[i] = models.ScoredPaper{Paper: p, Score: scores[p.ID]}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	r.logger.Info().
		Int("scored", len(scores)).
		Int("unscored", len(papers)-len(scores)).
		Msg("Stage 1: ranking complete")

	return scored
}
