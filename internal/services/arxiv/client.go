// Package arxiv implements paper discovery and full-text retrieval against
// the arXiv API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
)

// Client queries the arXiv Atom API for recently submitted papers
type Client struct {
	config     *common.ArxivConfig
	logger     arbor.ILogger
	httpClient *http.Client
}

func NewClient(config *common.ArxivConfig, logger arbor.ILogger) *Client {
	return &Client{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: common.ParseDurationOr(config.RequestTimeout, 30*time.Second),
		},
	}
}

// Atom feed wire format, limited to the fields the pipeline consumes
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// FetchRecent returns papers submitted within the trailing windowDays in the
// given categories, newest first, capped at maxCount. A transport or decode
// failure is returned to the caller; the pipeline treats it as fatal for the
// run.
func (c *Client) FetchRecent(ctx context.Context, categories []string, maxCount, windowDays int) ([]*models.Paper, error) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -windowDays)

	catTerms := make([]string, len(categories))
	for i, cat := range categories {
		catTerms[i] = "cat:" + cat
	}
	query := fmt.Sprintf("(%s) AND submittedDate:[%s0000 TO %s2359]",
		strings.Join(catTerms, " OR "),
		start.Format("200601021504")[:8],
		now.Format("200601021504")[:8])

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxCount))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	requestURL := c.config.BaseURL + "?" + params.Encode()
	c.logger.Info().
		Str("query", query).
		Int("max_results", maxCount).
		Msg("Searching arXiv")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build arXiv request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arXiv request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("arXiv returned status %d: %s", resp.StatusCode, string(body))
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode arXiv feed: %w", err)
	}

	papers := make([]*models.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper := entryToPaper(entry)
		if paper.ID == "" {
			c.logger.Warn().Str("entry_id", entry.ID).Msg("Skipping arXiv entry without a parseable id")
			continue
		}
		papers = append(papers, paper)
	}

	filtered := filterByKeywords(papers, c.config.Keywords)

	c.logger.Info().
		Int("found", len(papers)).
		Int("after_keyword_filter", len(filtered)).
		Msg("arXiv search complete")

	return filtered, nil
}

func entryToPaper(entry atomEntry) *models.Paper {
	paper := &models.Paper{
		ID:       shortID(entry.ID),
		Title:    collapseWhitespace(entry.Title),
		Abstract: collapseWhitespace(entry.Summary),
		EntryURL: entry.ID,
	}

	for _, author := range entry.Authors {
		paper.Authors = append(paper.Authors, author.Name)
	}
	for _, cat := range entry.Categories {
		paper.Categories = append(paper.Categories, cat.Term)
	}
	for _, link := range entry.Links {
		if link.Title == "pdf" || strings.Contains(link.Href, "/pdf/") {
			paper.PDFURL = link.Href
			break
		}
	}
	if published, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		paper.Published = published
	}

	return paper
}

// shortID extracts the short arXiv id ("2401.01234v1") from an entry URL
func shortID(entryURL string) string {
	if idx := strings.LastIndex(entryURL, "/abs/"); idx >= 0 {
		return entryURL[idx+len("/abs/"):]
	}
	return ""
}

// filterByKeywords keeps papers whose title or abstract contains at least one
// keyword, case-insensitive. An empty keyword list keeps everything.
func filterByKeywords(papers []*models.Paper, keywords []string) []*models.Paper {
	if len(keywords) == 0 {
		return papers
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	filtered := make([]*models.Paper, 0, len(papers))
	for _, paper := range papers {
		title := strings.ToLower(paper.Title)
		abstract := strings.ToLower(paper.Abstract)
		for _, kw := range lowered {
			if strings.Contains(title, kw) || strings.Contains(abstract, kw) {
				filtered = append(filtered, paper)
				break
			}
		}
	}
	return filtered
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
