package backends

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// Selector orders available, non-disabled backends into a fallback sequence
// and drives calls through it, recording every outcome on the failure
// tracker. Exhausting the sequence surfaces ErrExhausted.
type Selector struct {
	backends    []interfaces.AnalysisBackend
	tracker     *FailureTracker
	logger      arbor.ILogger
	pinned      string
	callTimeout time.Duration
	sweepExempt map[FailureKind]bool
}

// SelectorOptions configures a Selector
type SelectorOptions struct {
	// Pinned short-circuits selection to a single named backend
	Pinned string

	// CallTimeout bounds every individual backend call
	CallTimeout time.Duration

	// SweepExemptKinds lists failure kinds excluded from the recovery sweep
	SweepExemptKinds []string
}

// NewSelector creates a Selector over the given backends. The backend slice
// order is the static preference order.
func NewSelector(backendList []interfaces.AnalysisBackend, tracker *FailureTracker, opts SelectorOptions, logger arbor.ILogger) *Selector {
	exempt := make(map[FailureKind]bool, len(opts.SweepExemptKinds))
	for _, kind := range opts.SweepExemptKinds {
		exempt[FailureKind(kind)] = true
	}

	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Selector{
		backends:    backendList,
		tracker:     tracker,
		logger:      logger,
		pinned:      opts.Pinned,
		callTimeout: timeout,
		sweepExempt: exempt,
	}
}

// candidates builds the fallback sequence for one call: pinned backend if
// configured, else the preference order filtered to available and
// non-disabled backends. When filtering leaves nothing but some backends are
// merely disabled, a one-shot recovery sweep partially resets counters and
// the filter is re-applied.
func (s *Selector) candidates(now time.Time) []interfaces.AnalysisBackend {
	if s.pinned != "" {
		for _, b := range s.backends {
			if b.Identity().Name == s.pinned && b.IsAvailable() {
				return []interfaces.AnalysisBackend{b}
			}
		}
		s.logger.Warn().Str("backend", s.pinned).Msg("Pinned backend not available")
		return nil
	}

	eligible := make([]interfaces.AnalysisBackend, 0, len(s.backends))
	for _, b := range s.backends {
		if b.IsAvailable() {
			eligible = append(eligible, b)
		}
	}

	active := s.filterDisabled(eligible, now)
	if len(active) > 0 || len(eligible) == 0 {
		return active
	}

	// Every configured backend is disabled: run the recovery sweep rather
	// than hard-failing the whole pipeline.
	reenabled := s.tracker.Sweep(s.sweepExempt)
	if len(reenabled) == 0 {
		return nil
	}
	s.logger.Warn().
		Strs("reenabled", reenabled).
		Msg("All backends disabled, recovery sweep re-enabled some")

	return s.filterDisabled(eligible, now)
}

func (s *Selector) filterDisabled(eligible []interfaces.AnalysisBackend, now time.Time) []interfaces.AnalysisBackend {
	active := make([]interfaces.AnalysisBackend, 0, len(eligible))
	for _, b := range eligible {
		if !s.tracker.IsDisabled(b.Identity().Name, now) {
			active = append(active, b)
		}
	}
	return active
}

// RankBatch scores one window of papers through the fallback sequence and
// returns the first successful backend's results.
func (s *Selector) RankBatch(ctx context.Context, papers []*models.Paper) ([]models.RankingResult, models.BackendIdentity, error) {
	var results []models.RankingResult
	identity, err := s.attempt(ctx, "rank_batch", func(callCtx context.Context, b interfaces.AnalysisBackend) error {
		var callErr error
		results, callErr = b.RankBatch(callCtx, papers)
		return callErr
	})
	if err != nil {
		return nil, models.BackendIdentity{}, err
	}
	return results, identity, nil
}

// AnalyzeBatch performs deep analysis through the fallback sequence and
// returns the first successful backend's raw batch response.
func (s *Selector) AnalyzeBatch(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, models.BackendIdentity, error) {
	var response string
	identity, err := s.attempt(ctx, "analyze_batch", func(callCtx context.Context, b interfaces.AnalysisBackend) error {
		var callErr error
		response, callErr = b.AnalyzeBatch(callCtx, papers, fullText)
		return callErr
	})
	if err != nil {
		return "", models.BackendIdentity{}, err
	}
	return response, identity, nil
}

// attempt walks the candidate list in order, recording success or failure on
// the tracker after every call, and returns the identity of the backend that
// succeeded. No candidates or all candidates failing yields ErrExhausted
// without further network calls.
func (s *Selector) attempt(ctx context.Context, op string, call func(context.Context, interfaces.AnalysisBackend) error) (models.BackendIdentity, error) {
	sequence := s.candidates(time.Now())
	if len(sequence) == 0 {
		return models.BackendIdentity{}, fmt.Errorf("%s: no candidate backends: %w", op, ErrExhausted)
	}

	var lastErr error
	for _, b := range sequence {
		name := b.Identity().Name

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := call(callCtx, b)
		cancel()

		if err == nil {
			s.tracker.RecordSuccess(name)
			return b.Identity(), nil
		}

		kind := KindOf(err)
		s.tracker.RecordFailure(name, kind)
		s.logger.Warn().
			Err(err).
			Str("backend", name).
			Str("op", op).
			Str("kind", string(kind)).
			Msg("Backend call failed, trying next candidate")
		lastErr = err

		if ctx.Err() != nil {
			return models.BackendIdentity{}, ctx.Err()
		}
	}

	return models.BackendIdentity{}, fmt.Errorf("%s: %d backends failed, last error: %v: %w", op, len(sequence), lastErr, ErrExhausted)
}
