package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"scopevoice/internal/ports"
	"scopevoice/internal/providers/prompt"
)

// Config controls the OpenAI client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
}

func newClient(cfg Config) (*openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	client := openai.NewClient(opts...)
	return &client, nil
}

// AnswerGenerator implements ports.AnswerGenerator with chat completions.
type AnswerGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ ports.AnswerGenerator = (*AnswerGenerator)(nil)

func NewAnswerGenerator(cfg Config) (*AnswerGenerator, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &AnswerGenerator{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

func (g *AnswerGenerator) Generate(ctx context.Context, req ports.AnswerRequest) (ports.AnswerResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System(req.Kind)),
			openai.UserMessage(prompt.User(req)),
		},
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(g.maxTokens))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.AnswerResponse{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.AnswerResponse{}, errors.New("openai chat: no choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return ports.AnswerResponse{}, errors.New("openai chat: empty answer")
	}
	return ports.AnswerResponse{Text: text}, nil
}
