package backends

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiBackend performs ranking and deep analysis through the Gemini API.
// Gemini safety rejections are classified as content-policy failures, which
// are permanent and (by default config) exempt from the recovery sweep.
type GeminiBackend struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	limiter *rate.Limiter
	retry   *RetryConfig

	clientOnce sync.Once
	client     *genai.Client
	clientErr  error
}

// NewGeminiBackend creates a Gemini analysis backend. The genai client needs
// a context, so it is created lazily on first call.
func NewGeminiBackend(config *common.GeminiConfig, logger arbor.ILogger) *GeminiBackend {
	interval := common.ParseDurationOr(config.RateLimit, 4*time.Second)

	return &GeminiBackend{
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry:   NewDefaultRetryConfig(),
	}
}

func (b *GeminiBackend) Identity() models.BackendIdentity {
	return models.BackendIdentity{
		Name:     "gemini",
		Model:    b.config.Model,
		Provider: "google",
	}
}

// IsAvailable checks that a plausible API key is configured. No network call.
func (b *GeminiBackend) IsAvailable() bool {
	return len(b.config.APIKey) > 10
}

func (b *GeminiBackend) RankBatch(ctx context.Context, papers []*models.Paper) ([]models.RankingResult, error) {
	return rankWith(ctx, "gemini", b.generate, papers)
}

func (b *GeminiBackend) AnalyzeBatch(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, error) {
	return analyzeWith(ctx, "gemini", b.generate, papers, fullText)
}

func (b *GeminiBackend) getClient(ctx context.Context) (*genai.Client, error) {
	b.clientOnce.Do(func() {
		b.client, b.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  b.config.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if b.clientErr != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", b.clientErr)
	}
	return b.client, nil
}

// generate sends one completion request, honoring the API-suggested retry
// delay on rate-limit errors before the selector-level fallback takes over.
func (b *GeminiBackend) generate(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	client, err := b.getClient(ctx)
	if err != nil {
		return "", err
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(temperature),
		MaxOutputTokens:   int32(maxTokens),
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	contents := []*genai.Content{
		genai.NewContentFromText(user, genai.RoleUser),
	}

	var resp *genai.GenerateContentResponse
	var apiErr error

	for attempt := 0; attempt <= b.retry.MaxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, b.config.Model, contents, config)
		if apiErr == nil {
			break
		}
		if attempt == b.retry.MaxRetries || !IsRateLimitError(apiErr) {
			break
		}

		backoff := b.retry.CalculateBackoff(attempt, ExtractRetryDelay(apiErr))
		b.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	// A finish reason of SAFETY means the content was rejected, not that the
	// call failed; surface it as a content-policy error.
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", &BackendError{
			Backend: "gemini",
			Kind:    FailureContentPolicy,
			Err:     fmt.Errorf("response blocked by safety filter"),
		}
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty text in Gemini response")
	}

	return text, nil
}
