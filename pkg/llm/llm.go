package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	APIKey      string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxTokens   int64         `envconfig:"MAX_TOKENS" split_words:"true" default:"1024"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"-1"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

// Client wraps the OpenAI SDK behind the single call the agent loop needs.
type Client struct {
	api         openaisdk.Client
	model       openaisdk.ChatModel
	maxTokens   int64
	temperature float64
}

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("llm api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("llm model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Client{
		api:         openaisdk.NewClient(opts...),
		model:       openaisdk.ChatModel(model),
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete generates the next turn for the transcript with the tool catalog
// attached.
func (c *Client) Complete(
	ctx context.Context,
	messages []openaisdk.ChatCompletionMessageParamUnion,
	tools []openaisdk.ChatCompletionToolParam,
) (*openaisdk.ChatCompletion, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:     c.model,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: openaisdk.Int(c.maxTokens),
	}
	if c.temperature >= 0 {
		params.Temperature = openaisdk.Float(c.temperature)
	}
	return c.api.Chat.Completions.New(ctx, params)
}
