package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

// Inferrer wraps a provider client with caching, rate limiting and retries.
// It satisfies service.Inferrer.
type Inferrer struct {
	client      Client
	cache       *replyCache
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewInferrer creates an Inferrer for the configured provider.
func NewInferrer(cfg Config, logger *slog.Logger) (*Inferrer, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewInferrerWithClient(client, cfg, logger), nil
}

// NewInferrerWithClient wraps an existing client.
func NewInferrerWithClient(client Client, cfg Config, logger *slog.Logger) *Inferrer {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 2
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = 250 * time.Millisecond
	}

	return &Inferrer{
		client:      client,
		cache:       newReplyCache(cfg.CacheTTL),
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}
}

// Complete returns the model's reply, serving repeats from cache.
func (i *Inferrer) Complete(ctx context.Context, system string, messages []model.Exchange) (string, error) {
	key := cacheKey(system, messages)
	if reply, found := i.cache.get(key); found {
		i.logger.Debug("inference cache hit")
		return reply, nil
	}

	var reply string
	err := common.WithRetry(ctx, func() error {
		if err := i.rateLimiter.wait(ctx); err != nil {
			return common.Permanent(err)
		}
		var callErr error
		reply, callErr = i.client.Complete(ctx, system, messages)
		return callErr
	}, i.retryOpts)
	if err != nil {
		return "", err
	}

	i.cache.set(key, reply)
	return reply, nil
}

// Close releases background resources.
func (i *Inferrer) Close() {
	i.cache.Close()
}
