package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
	"github.com/ternarybob/indago/internal/services/backends"
)

// batchAnalyzer returns a well-formed batch response, optionally omitting the
// section for configured paper ids.
type batchAnalyzer struct {
	omit     map[string]bool
	err      error
	calls    atomic.Int64
	lastText map[string]string
	mu       sync.Mutex
}

func (b *batchAnalyzer) RankBatch(ctx context.Context, papers []*models.Paper) ([]models.RankingResult, error) {
	return nil, nil
}

func (b *batchAnalyzer) AnalyzeBatch(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, error) {
	b.calls.Add(1)
	if b.err != nil {
		return "", b.err
	}

	b.mu.Lock()
	b.lastText = fullText
	b.mu.Unlock()

	var sb strings.Builder
	for _, p := range papers {
		if b.omit[p.ID] {
			continue
		}
		fmt.Fprintf(&sb, "Paper ID: %s\nAnalysis of %s.\n\n", p.ID, p.ID)
	}
	if sb.Len() == 0 {
		sb.WriteString("No analyses produced.")
	}
	return sb.String(), nil
}

func (b *batchAnalyzer) Identity() models.BackendIdentity {
	return models.BackendIdentity{Name: "analyzer", Model: "fake", Provider: "fake"}
}

func (b *batchAnalyzer) IsAvailable() bool { return true }

func newDeepForTest(t *testing.T, backend interfaces.AnalysisBackend, fullText interfaces.FullTextProvider, batchSize, maxAttempts int) (*DeepAnalyzer, func()) {
	t.Helper()
	logger := common.GetLogger()
	analysisPool := NewPool("test-analysis", 2, logger)
	ioPool := NewPool("test-io", 4, logger)
	selector := backends.NewSelector(
		[]interfaces.AnalysisBackend{backend},
		backends.NewFailureTracker(3, time.Minute),
		backends.SelectorOptions{},
		logger,
	)
	deep := NewDeepAnalyzer(selector, fullText, analysisPool, ioPool, batchSize, maxAttempts, logger)
	cleanup := func() {
		analysisPool.Stop()
		ioPool.Stop()
	}
	return deep, cleanup
}

func TestDeepAnalyzeAllSucceed(t *testing.T) {
	papers := makePapers(5)
	backend := &batchAnalyzer{}
	deep, cleanup := newDeepForTest(t, backend, nil, 5, 1)
	defer cleanup()

	results := deep.Analyze(context.Background(), papers)

	require.Len(t, results, 5)
	for _, p := range papers {
		require.Contains(t, results, p.ID)
		assert.Equal(t, "Analysis of "+p.ID+".", results[p.ID].RawText)
	}
	assert.Equal(t, int64(1), backend.calls.Load())
}

func TestDeepAnalyzeMissingSectionIsAbsentNotCorrupt(t *testing.T) {
	papers := makePapers(5)
	missing := papers[2].ID
	backend := &batchAnalyzer{omit: map[string]bool{missing: true}}
	deep, cleanup := newDeepForTest(t, backend, nil, 5, 1)
	defer cleanup()

	results := deep.Analyze(context.Background(), papers)

	require.Len(t, results, 4)
	assert.NotContains(t, results, missing)
	for _, p := range papers {
		if p.ID == missing {
			continue
		}
		assert.Equal(t, "Analysis of "+p.ID+".", results[p.ID].RawText, "neighbor text must not absorb the missing section")
	}
	// Initial call plus exactly one shortfall re-submit
	assert.Equal(t, int64(2), backend.calls.Load())
}

func TestDeepAnalyzeExhaustionYieldsNoResults(t *testing.T) {
	papers := makePapers(3)
	backend := &batchAnalyzer{err: fmt.Errorf("503 service unavailable")}
	deep, cleanup := newDeepForTest(t, backend, nil, 5, 1)
	defer cleanup()

	results := deep.Analyze(context.Background(), papers)

	assert.Empty(t, results)
}

func TestDeepAnalyzeSplitsIntoBatches(t *testing.T) {
	papers := makePapers(7)
	backend := &batchAnalyzer{}
	deep, cleanup := newDeepForTest(t, backend, nil, 3, 1)
	defer cleanup()

	results := deep.Analyze(context.Background(), papers)

	assert.Len(t, results, 7)
	assert.Equal(t, int64(3), backend.calls.Load(), "7 papers at batch size 3 is 3 batches")
}

// recordingFullText serves canned text and records released handles
type recordingFullText struct {
	mu       sync.Mutex
	text     map[string]string
	released []string
	logger   arbor.ILogger
}

func (r *recordingFullText) FetchFullText(ctx context.Context, paper *models.Paper) (string, string) {
	text, ok := r.text[paper.ID]
	if !ok {
		return "", ""
	}
	return text, "/tmp/" + paper.ID + ".pdf"
}

func (r *recordingFullText) Release(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, handle)
}

func TestDeepAnalyzeFetchesAndReleasesFullText(t *testing.T) {
	papers := makePapers(2)
	backend := &batchAnalyzer{}
	provider := &recordingFullText{
		text: map[string]string{papers[0].ID: "full text of the first paper"},
	}
	deep, cleanup := newDeepForTest(t, backend, provider, 5, 1)

	results := deep.Analyze(context.Background(), papers)
	cleanup() // drains the I/O pool so all Release calls have run

	require.Len(t, results, 2)

	backend.mu.Lock()
	passed := backend.lastText
	backend.mu.Unlock()
	assert.Equal(t, "full text of the first paper", passed[papers[0].ID])
	assert.NotContains(t, passed, papers[1].ID, "papers without full text fall back to the abstract")

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, []string{"/tmp/" + papers[0].ID + ".pdf"}, provider.released)
}
