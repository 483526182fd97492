package models

import (
	"time"
)

// BackendIdentity describes an analysis backend. Static, set at construction.
type BackendIdentity struct {
	Name     string `json:"name"`     // Selector key, e.g. "gemini"
	Model    string `json:"model"`    // Provider model name
	Provider string `json:"provider"` // Provider kind, e.g. "google", "anthropic", "openai-compatible"
}

// RankingResult is one backend scoring verdict for a paper within a window.
// The same paper may be scored in several overlapping windows; aggregation
// keeps the maximum score seen.
type RankingResult struct {
	PaperID       string  `json:"paper_id"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// ScoredPaper pairs a paper with its aggregated stage-1 score
type ScoredPaper struct {
	Paper *Paper
	Score float64
}

// AnalysisResult is the deep-analysis outcome for a single promoted paper.
// Papers whose analysis failed have no AnalysisResult at all.
type AnalysisResult struct {
	PaperID  string `json:"paper_id"`
	RawText  string `json:"raw_text"`  // Markdown analysis as returned by the backend
	HTMLText string `json:"html_text"` // Rendered HTML
}

// PaperStatus records the terminal state of a paper within one run
type PaperStatus string

const (
	StatusAnalyzed PaperStatus = "analyzed"
	StatusFiltered PaperStatus = "filtered"
	StatusFailed   PaperStatus = "failed"
)

// PaperOutcome is the persisted per-paper record handed to the result sink
type PaperOutcome struct {
	Key       string      `badgerhold:"key"` // runID + "/" + paperID
	RunID     string      `json:"run_id"`
	PaperID   string      `json:"paper_id"`
	Title     string      `json:"title"`
	Status    PaperStatus `json:"status"`
	Score     float64     `json:"score"`
	Analysis  string      `json:"analysis,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// AnalyzedPaper pairs a paper with its completed analysis, in rank order
type AnalyzedPaper struct {
	Paper    *Paper
	Score    float64
	Analysis *AnalysisResult
}

// RunReport summarizes one pipeline invocation
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Harvested   int
	Promoted    int
	Analyzed    []AnalyzedPaper
	FailedCount int
}
