package backends

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("rate limit exceeded")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for model")))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.False(t, IsRateLimitError(nil))
}

func TestExtractRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, ExtractRetryDelay(errors.New("429: Please retry in 30s")))
	assert.Equal(t, time.Duration(float64(2.5)*float64(time.Second)), ExtractRetryDelay(errors.New("retryDelay: 2.5s")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no delay here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestCalculateBackoff(t *testing.T) {
	c := NewDefaultRetryConfig()

	first := c.CalculateBackoff(0, 0)
	second := c.CalculateBackoff(1, 0)
	assert.Equal(t, c.InitialBackoff, first)
	assert.Greater(t, second, first)

	// API-suggested delay replaces the base and gains a safety margin
	suggested := c.CalculateBackoff(0, 20*time.Second)
	assert.Equal(t, 25*time.Second, suggested)

	// Never exceeds the cap
	capped := c.CalculateBackoff(10, 0)
	assert.Equal(t, c.MaxBackoff, capped)
}
