package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
	"golang.org/x/time/rate"
)

// FullTextService downloads a paper's PDF and extracts its text with pdfcpu.
// Best-effort by contract: any failure returns empty text, never an error,
// because analysis falls back to the abstract.
type FullTextService struct {
	config     *common.ArxivConfig
	logger     arbor.ILogger
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewFullTextService(config *common.ArxivConfig, logger arbor.ILogger) *FullTextService {
	delay := common.ParseDurationOr(config.DownloadDelay, 3*time.Second)

	return &FullTextService{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: common.ParseDurationOr(config.RequestTimeout, 30*time.Second) * 4,
		},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// FetchFullText downloads the paper's PDF and extracts its text. The returned
// handle is the local PDF path, to be passed to Release once analysis is done;
// it is empty when nothing was downloaded.
func (s *FullTextService) FetchFullText(ctx context.Context, paper *models.Paper) (string, string) {
	if paper.PDFURL == "" {
		s.logger.Debug().Str("paper_id", paper.ID).Msg("Paper has no PDF link")
		return "", ""
	}

	pdfPath, err := s.download(ctx, paper)
	if err != nil {
		s.logger.Warn().Err(err).Str("paper_id", paper.ID).Msg("PDF download failed")
		return "", ""
	}

	text, err := s.extractText(pdfPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("paper_id", paper.ID).Msg("PDF text extraction failed")
		return "", pdfPath
	}

	text = collapseWhitespace(text)
	if s.config.MaxContentLen > 0 && len(text) > s.config.MaxContentLen {
		text = truncateRunes(text, s.config.MaxContentLen)
		s.logger.Debug().
			Str("paper_id", paper.ID).
			Int("max_content_len", s.config.MaxContentLen).
			Msg("Extracted text truncated")
	}

	s.logger.Info().
		Str("paper_id", paper.ID).
		Int("chars", len(text)).
		Msg("Full text extracted")

	return text, pdfPath
}

// Release deletes the downloaded PDF. Best-effort; failures are logged only.
func (s *FullTextService) Release(handle string) {
	if handle == "" {
		return
	}
	if err := os.Remove(handle); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", handle).Msg("Failed to delete PDF artifact")
		return
	}
	s.logger.Debug().Str("path", handle).Msg("PDF artifact deleted")
}

func (s *FullTextService) download(ctx context.Context, paper *models.Paper) (string, error) {
	if err := os.MkdirAll(s.config.PapersDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create papers dir: %w", err)
	}

	filename := strings.ReplaceAll(paper.ID, "/", "_") + ".pdf"
	pdfPath := filepath.Join(s.config.PapersDir, filename)

	// Reuse a PDF that an earlier batch already fetched
	if _, err := os.Stat(pdfPath); err == nil {
		return pdfPath, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, paper.PDFURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PDF download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(pdfPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(pdfPath)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(pdfPath)
		return "", err
	}

	return pdfPath, nil
}

// extractText pulls page content out of the PDF with pdfcpu and joins it in
// page order.
func (s *FullTextService) extractText(pdfPath string) (string, error) {
	outDir, err := os.MkdirTemp(s.config.PapersDir, "extract_")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(pdfPath, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("pdfcpu content extraction failed: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sortByPage(names)

	var builder strings.Builder
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			continue
		}
		builder.Write(content)
		builder.WriteByte('\n')
	}

	if builder.Len() == 0 {
		return "", fmt.Errorf("no text content extracted")
	}
	return builder.String(), nil
}

// sortByPage orders extracted content filenames by their numeric page suffix
// ("<name>_Content_page_12.txt"). Lexicographic order would put page 10 before
// page 2. Files without a parseable suffix sort last, by name.
func sortByPage(names []string) {
	sort.Slice(names, func(i, j int) bool {
		pi, oki := pageNumber(names[i])
		pj, okj := pageNumber(names[j])
		if oki != okj {
			return oki
		}
		if oki && pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
}

func pageNumber(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "page_")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[idx+len("page_"):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// truncateRunes cuts s to at most max bytes without splitting a rune
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
