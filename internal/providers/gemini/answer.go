package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"scopevoice/internal/ports"
	"scopevoice/internal/providers/prompt"
)

// Config controls the Gemini client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// AnswerGenerator implements ports.AnswerGenerator with Gemini models.
type AnswerGenerator struct {
	client    *genai.Client
	model     string
	maxTokens int
}

var _ ports.AnswerGenerator = (*AnswerGenerator)(nil)

func NewAnswerGenerator(ctx context.Context, cfg Config) (*AnswerGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	clientCfg := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return &AnswerGenerator{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

func (g *AnswerGenerator) Generate(ctx context.Context, req ports.AnswerRequest) (ports.AnswerResponse, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System(req.Kind), genai.RoleUser),
	}
	if g.maxTokens > 0 {
		config.MaxOutputTokens = int32(g.maxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User(req)), config)
	if err != nil {
		return ports.AnswerResponse{}, fmt.Errorf("genai generate: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return ports.AnswerResponse{}, errors.New("genai generate: empty answer")
	}
	return ports.AnswerResponse{Text: text}, nil
}
