package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/north-cloud/source-registry/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
	"github.com/jonesrussell/north-cloud/source-registry/internal/metrics"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
	defaultTimeout   = 90 * time.Second
)

// AnthropicConfig configures AnthropicClient.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// BaseURL overrides the API endpoint.
	BaseURL    string
	MaxRetries int
	Breaker    circuitbreaker.Config
}

// AnthropicClient calls the Anthropic Messages API behind a circuit breaker.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	breaker   *circuitbreaker.Breaker
	log       logger.Logger
	metrics   *metrics.Metrics
}

// NewAnthropicClient returns ErrMissingAPIKey when cfg.APIKey is empty.
func NewAnthropicClient(cfg AnthropicConfig, log logger.Logger, m *metrics.Metrics) (*AnthropicClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	breakerCfg := cfg.Breaker
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("llm circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		breaker:   circuitbreaker.New(breakerCfg),
		log:       log.With(logger.String("component", "llm"), logger.String("model", cfg.Model)),
		metrics:   m,
	}, nil
}

// Complete sends req as a single user message and returns the concatenated
// text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	var text string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		msg, callErr := c.client.Messages.New(callCtx, params)
		if callErr != nil {
			return callErr
		}

		var b strings.Builder
		for i := range msg.Content {
			if msg.Content[i].Type == "text" {
				b.WriteString(msg.Content[i].Text)
			}
		}
		text = b.String()
		return nil
	})

	if err != nil {
		c.metrics.ObserveLLM(req.Operation, "error")
		c.log.Warn("llm call failed",
			logger.String("operation", req.Operation),
			logger.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return "", fmt.Errorf("%s: %w", req.Operation, err)
	}
	if strings.TrimSpace(text) == "" {
		c.metrics.ObserveLLM(req.Operation, "empty")
		return "", fmt.Errorf("%s: %w", req.Operation, ErrEmptyResponse)
	}

	c.metrics.ObserveLLM(req.Operation, "success")
	c.log.Debug("llm call completed",
		logger.String("operation", req.Operation),
		logger.Duration("duration", time.Since(start)),
		logger.Int("response_chars", len(text)),
	)
	return text, nil
}

var _ Client = (*AnthropicClient)(nil)
