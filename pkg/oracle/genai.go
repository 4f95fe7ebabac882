package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-pro"

// GenAIConfig configures the Gemini oracle.
type GenAIConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
}

// GenAI is an Oracle backed by the Gemini API.
type GenAI struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGenAI creates a Gemini oracle.
func NewGenAI(ctx context.Context, cfg GenAIConfig) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	if cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxOutputTokens) // #nosec G115 -- bounded by config validation
	}

	return &GenAI{client: client, model: cfg.Model, config: gc}, nil
}

// Complete sends prompt as a single user turn and returns the text reply.
func (g *GenAI) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}

// Verify interface compliance.
var _ Oracle = (*GenAI)(nil)
