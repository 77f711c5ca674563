// Package gemini serves the "gemini" inference service through the Google
// GenAI SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"interrogation/config"
	"interrogation/llm"
	"interrogation/models"

	"google.golang.org/genai"
)

func init() {
	llm.Register(New, "gemini")
}

type Backend struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func New(ctx context.Context, cfg config.Inference) (llm.Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrMissingModelName)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Backend{client: client, model: cfg.Model, maxTokens: int32(cfg.MaxTokens)}, nil
}

func (b *Backend) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, toContents(req.Messages), b.generateConfig(req))
	if err != nil {
		return llm.Completion{}, err
	}
	text := resp.Text()
	if text == "" {
		return llm.Completion{}, llm.ErrEmptyCompletion
	}
	completion := llm.Completion{Text: text}
	addUsage(&completion, resp)
	return completion, nil
}

func (b *Backend) GenerateStream(ctx context.Context, req llm.Request, onChunk func(string) error) (llm.Completion, error) {
	var (
		full       strings.Builder
		completion llm.Completion
	)
	for resp, err := range b.client.Models.GenerateContentStream(ctx, b.model, toContents(req.Messages), b.generateConfig(req)) {
		if err != nil {
			return llm.Completion{}, err
		}
		chunk := resp.Text()
		full.WriteString(chunk)
		if err := onChunk(chunk); err != nil {
			return llm.Completion{}, err
		}
		// Usage metadata is cumulative; the last response carries the totals.
		addUsage(&completion, resp)
	}
	completion.Text = full.String()
	return completion, nil
}

func (b *Backend) generateConfig(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: b.maxTokens,
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

// toContents maps chat roles onto Gemini's user/model roles.
func toContents(messages []models.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return contents
}

func addUsage(c *llm.Completion, resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	c.InputTokens = llm.Tokens(int(resp.UsageMetadata.PromptTokenCount))
	c.OutputTokens = llm.Tokens(int(resp.UsageMetadata.CandidatesTokenCount))
}
