// Package anthropic adapts the Anthropic Messages API to the oracle completion contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/kailas-cloud/triage/internal/domain"
	"github.com/kailas-cloud/triage/internal/metrics"
	"github.com/kailas-cloud/triage/internal/usecase/oracle"
)

// DefaultMaxTokens caps oracle replies.
const DefaultMaxTokens = 256

// Config holds the Anthropic provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int // SDK-level retries on 429 and 5xx; 0 disables
	Provider   string
	Logger     *zap.Logger
}

// Completer runs oracle prompts through the Messages API.
type Completer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	provider  string
	logger    *zap.Logger
}

var _ oracle.Completer = (*Completer)(nil)

// NewCompleter creates an Anthropic completer.
func NewCompleter(cfg *Config) *Completer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "anthropic"
	}
	return &Completer{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		provider:  provider,
		logger:    logger,
	}
}

// Complete sends the system prompt and one user message and concatenates the text blocks.
func (c *Completer) Complete(ctx context.Context, system, user string) (oracle.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return oracle.Completion{}, fmt.Errorf("anthropic API error %d: %w: %w",
				apiErr.StatusCode, domain.ErrOracleUnavailable, err)
		}
		return oracle.Completion{}, fmt.Errorf("anthropic request failed: %w: %w", domain.ErrOracleUnavailable, err)
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	metrics.OracleTokensTotal.WithLabelValues(c.provider, c.model, "input").Add(float64(in))
	metrics.OracleTokensTotal.WithLabelValues(c.provider, c.model, "output").Add(float64(out))

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	c.logger.Debug("completion finished",
		zap.String("provider", c.provider),
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Int("output_tokens", out),
	)
	return oracle.Completion{Text: text.String(), InputTokens: in, OutputTokens: out}, nil
}
