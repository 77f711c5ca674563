// Package ollama serves the "ollama" local-inference service through the
// /api/generate endpoint. Usage is not reported.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"interrogation/config"
	"interrogation/llm"
	"interrogation/models"

	"github.com/ollama/ollama/api"
)

func init() {
	llm.Register(New, "ollama")
}

type Backend struct {
	client    *api.Client
	model     string
	maxTokens int
}

func New(ctx context.Context, cfg config.Inference) (llm.Backend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: %w", llm.ErrMissingModelName)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama: invalid OLLAMA_URL %q", cfg.BaseURL)
	}
	return &Backend{
		client:    api.NewClient(base, http.DefaultClient),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

func (b *Backend) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	text, err := b.generate(ctx, req, false, nil)
	if err != nil {
		return llm.Completion{}, err
	}
	if text == "" {
		return llm.Completion{}, llm.ErrEmptyCompletion
	}
	return llm.Completion{Text: text}, nil
}

func (b *Backend) GenerateStream(ctx context.Context, req llm.Request, onChunk func(string) error) (llm.Completion, error) {
	text, err := b.generate(ctx, req, true, onChunk)
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{Text: text}, nil
}

func (b *Backend) generate(ctx context.Context, req llm.Request, stream bool, onChunk func(string) error) (string, error) {
	options := map[string]any{"temperature": req.Temperature}
	if b.maxTokens > 0 {
		options["num_predict"] = b.maxTokens
	}
	genReq := &api.GenerateRequest{
		Model:   b.model,
		Prompt:  flattenPrompt(req.SystemPrompt, req.Messages),
		Stream:  &stream,
		Options: options,
	}

	var full strings.Builder
	err := b.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		full.WriteString(resp.Response)
		if onChunk != nil && resp.Response != "" {
			return onChunk(resp.Response)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}

// flattenPrompt renders the system prompt followed by one "role: content"
// line per message, since /api/generate takes a single prompt string.
func flattenPrompt(systemPrompt string, messages []models.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return systemPrompt + "\n" + strings.Join(lines, "\n")
}
