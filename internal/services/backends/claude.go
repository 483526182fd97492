package backends

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
	"golang.org/x/time/rate"
)

// ClaudeBackend performs ranking and deep analysis through the Anthropic API
type ClaudeBackend struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  anthropic.Client
	limiter *rate.Limiter
	retry   *RetryConfig
}

// NewClaudeBackend creates a Claude analysis backend. The client is built
// eagerly; IsAvailable gates whether it is ever called.
func NewClaudeBackend(config *common.ClaudeConfig, logger arbor.ILogger) *ClaudeBackend {
	interval := common.ParseDurationOr(config.RateLimit, time.Second)

	return &ClaudeBackend{
		config:  config,
		logger:  logger,
		client:  anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry:   NewDefaultRetryConfig(),
	}
}

func (b *ClaudeBackend) Identity() models.BackendIdentity {
	return models.BackendIdentity{
		Name:     "claude",
		Model:    b.config.Model,
		Provider: "anthropic",
	}
}

// IsAvailable checks that a plausible API key is configured. No network call.
func (b *ClaudeBackend) IsAvailable() bool {
	return len(b.config.APIKey) > 10
}

func (b *ClaudeBackend) RankBatch(ctx context.Context, papers []*models.Paper) ([]models.RankingResult, error) {
	return rankWith(ctx, "claude", b.generate, papers)
}

func (b *ClaudeBackend) AnalyzeBatch(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, error) {
	return analyzeWith(ctx, "claude", b.generate, papers, fullText)
}

// generate sends one completion request, retrying rate-limit failures with
// backoff before the selector-level fallback takes over.
func (b *ClaudeBackend) generate(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(float64(temperature))
	}

	var resp *anthropic.Message
	var apiErr error

	for attempt := 0; attempt <= b.retry.MaxRetries; attempt++ {
		resp, apiErr = b.client.Messages.New(ctx, params)
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
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return "", fmt.Errorf("Claude API call failed: %w", apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}

	return text.String(), nil
}
