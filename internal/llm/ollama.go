package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
)

// ollamaClient talks to a local Ollama server through langchaingo.
type ollamaClient struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

func newOllamaClient(cfg Config) (Client, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = "llama3.1"
	}

	opts := []ollama.Option{
		ollama.WithModel(modelName),
		ollama.WithFormat("json"),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.1
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}

	return &ollamaClient{llm: llm, temperature: temperature, maxTokens: maxTokens}, nil
}

// Complete runs a chat generation against the local model.
func (c *ollamaClient) Complete(ctx context.Context, system string, messages []model.Exchange) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	resp, err := c.llm.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", common.Permanent(fmt.Errorf("no completion choices returned"))
	}
	return resp.Choices[0].Content, nil
}
