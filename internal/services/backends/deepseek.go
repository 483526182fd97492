package backends

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
	"golang.org/x/time/rate"
)

// DeepSeekBackend performs ranking and deep analysis through an
// OpenAI-compatible chat-completions endpoint. The default base URL targets
// DeepSeek; any compatible provider works by overriding it.
type DeepSeekBackend struct {
	config  *common.DeepSeekConfig
	logger  arbor.ILogger
	client  openai.Client
	limiter *rate.Limiter
	retry   *RetryConfig
}

// NewDeepSeekBackend creates a DeepSeek analysis backend
func NewDeepSeekBackend(config *common.DeepSeekConfig, logger arbor.ILogger) *DeepSeekBackend {
	interval := common.ParseDurationOr(config.RateLimit, time.Second)

	return &DeepSeekBackend{
		config: config,
		logger: logger,
		client: openai.NewClient(
			option.WithAPIKey(config.APIKey),
			option.WithBaseURL(config.BaseURL),
		),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry:   NewDefaultRetryConfig(),
	}
}

func (b *DeepSeekBackend) Identity() models.BackendIdentity {
	return models.BackendIdentity{
		Name:     "deepseek",
		Model:    b.config.Model,
		Provider: "openai-compatible",
	}
}

// IsAvailable checks that a plausible API key is configured. No network call.
func (b *DeepSeekBackend) IsAvailable() bool {
	return len(b.config.APIKey) > 10
}

func (b *DeepSeekBackend) RankBatch(ctx context.Context, papers []*models.Paper) ([]models.RankingResult, error) {
	return rankWith(ctx, "deepseek", b.generate, papers)
}

func (b *DeepSeekBackend) AnalyzeBatch(ctx context.Context, papers []*models.Paper, fullText map[string]string) (string, error) {
	return analyzeWith(ctx, "deepseek", b.generate, papers, fullText)
}

// generate sends one chat completion, retrying rate-limit failures with
// backoff before the selector-level fallback takes over.
func (b *DeepSeekBackend) generate(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(float64(temperature)),
	}

	var resp *openai.ChatCompletion
	var apiErr error

	for attempt := 0; attempt <= b.retry.MaxRetries; attempt++ {
		resp, apiErr = b.client.Chat.Completions.New(ctx, params)
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
			Msg("Retrying DeepSeek API call")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return "", fmt.Errorf("DeepSeek API call failed: %w", apiErr)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from DeepSeek API")
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", fmt.Errorf("empty text in DeepSeek response")
	}

	return text, nil
}
