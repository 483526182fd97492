package models

import (
	"time"
)

// Paper represents one harvested document. Papers are immutable once created;
// pipeline stages attach scores and analyses out of band rather than mutating
// a shared instance across goroutines.
type Paper struct {
	ID         string    `json:"id"` // arXiv short id, e.g. "2401.01234"
	Title      string    `json:"title"`
	Abstract   string    `json:"abstract"`
	Authors    []string  `json:"authors"`
	Categories []string  `json:"categories"`
	Published  time.Time `json:"published"`
	EntryURL   string    `json:"entry_url"`
	PDFURL     string    `json:"pdf_url"`
}

// AbsURL returns the canonical abstract page URL for the paper
func (p *Paper) AbsURL() string {
	if p.EntryURL != "" {
		return p.EntryURL
	}
	return "https://arxiv.org/abs/" + p.ID
}
