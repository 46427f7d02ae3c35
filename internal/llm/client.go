package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/acharya-agent/backend/pkg/circuitbreaker"
	"github.com/acharya-agent/backend/pkg/logger"
	"github.com/acharya-agent/backend/pkg/retry"
)

var ErrNoChoices = errors.New("completion returned no choices")

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Client talks to an OpenAI compatible chat completion endpoint. It is used
// as the general-purpose translation backend.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	names       func(code string) string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Option func(*Client)

// WithLanguageNames lets prompts use display names instead of bare codes.
func WithLanguageNames(names func(code string) string) Option {
	return func(c *Client) {
		c.names = names
	}
}

func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retryConfig = cfg
	}
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config, opts ...Option) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		names:       func(code string) string { return code },
		cb:          cb,
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Info("LLM client initialized", zap.String("model", cfg.Model))

	return c
}

func (c *Client) Name() string {
	return "llm"
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return ErrNoChoices
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Translate asks the model for a plain translation. The reply is trimmed of
// surrounding quotes the model sometimes adds.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	systemPrompt := fmt.Sprintf(`You are a translation engine. Translate the user's message from %s to %s.
Keep names of people, places and Sanskrit terms recognisable.
Reply with the translation only, without notes or quotation marks.`, c.names(source), c.names(target))

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   text,
		Temperature:  0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to translate: %w", err)
	}

	out := strings.TrimSpace(resp.Content)
	out = strings.Trim(out, "\"“”")
	return strings.TrimSpace(out), nil
}
