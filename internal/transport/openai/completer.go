package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/metrics"
	"github.com/kailas-cloud/triage/internal/usecase/oracle"
)

// DefaultMaxTokens caps oracle replies; verdicts are short JSON objects.
const DefaultMaxTokens = 256

// Completer runs oracle prompts through the chat completions API.
type Completer struct {
	client    *openai.Client
	model     string
	maxTokens int
	user      string
	provider  string
	logger    *zap.Logger
}

var _ oracle.Completer = (*Completer)(nil)

// NewCompleter creates an OpenAI-compatible chat completer.
func NewCompleter(cfg *Config) *Completer {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Completer{
		client:    newClient(cfg),
		model:     cfg.Model,
		maxTokens: maxTokens,
		user:      cfg.User,
		provider:  cfg.Provider,
		logger:    loggerOrNop(cfg.Logger),
	}
}

// Complete sends one system and one user message at temperature 0.
func (c *Completer) Complete(ctx context.Context, system, user string) (oracle.Completion, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		User:        c.user,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return oracle.Completion{}, parseAPIError("completion", err, domain.ErrOracleUnavailable)
	}

	metrics.OracleTokensTotal.WithLabelValues(c.provider, c.model, "input").Add(float64(resp.Usage.PromptTokens))
	metrics.OracleTokensTotal.WithLabelValues(c.provider, c.model, "output").Add(float64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return oracle.Completion{}, fmt.Errorf("completion returned no choices: %w", domain.ErrOracleUnavailable)
	}
	c.logger.Debug("completion finished",
		zap.String("provider", c.provider),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return oracle.Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
