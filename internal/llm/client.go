package llm

import (
	"context"
	"time"

	"github.com/Veraticus/parcel/internal/model"
)

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends a system prompt and conversation and returns the raw
	// text of the model's reply.
	Complete(ctx context.Context, system string, messages []model.Exchange) (string, error)
}

// Config holds configuration for an inference client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// Role names used in exchanges.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
