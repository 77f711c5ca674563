// Package anthropic serves the "anthropic" inference service through the
// Messages API. It does not stream; the invoker delivers its reply as one
// chunk.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"interrogation/config"
	"interrogation/llm"
	"interrogation/models"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func init() {
	llm.Register(New, "anthropic")
}

type Backend struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

func New(ctx context.Context, cfg config.Inference) (llm.Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrMissingModelName)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Backend{
		client:    sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

func (b *Backend) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(b.model),
		MaxTokens:   b.maxTokens,
		Messages:    toMessageParams(req.Messages),
		Temperature: sdk.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Completion{}, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return llm.Completion{}, llm.ErrEmptyCompletion
	}
	return llm.Completion{
		Text:         text.String(),
		InputTokens:  llm.Tokens(int(msg.Usage.InputTokens)),
		OutputTokens: llm.Tokens(int(msg.Usage.OutputTokens)),
	}, nil
}

func toMessageParams(messages []models.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == models.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}
