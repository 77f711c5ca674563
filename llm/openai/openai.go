// Package openai serves the OpenAI chat-completions API and the compatible
// endpoints of Groq and OpenRouter.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"interrogation/config"
	"interrogation/llm"
	"interrogation/models"

	goopenai "github.com/sashabaranov/go-openai"
)

func init() {
	llm.Register(New, "openai", "groq", "openrouter")
}

type Backend struct {
	client       *goopenai.Client
	model        string
	maxTokens    int
	includeUsage bool
}

func New(ctx context.Context, cfg config.Inference) (llm.Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Service, llm.ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Service, llm.ErrMissingModelName)
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Backend{
		client:    goopenai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		// Stream usage reporting is only relied on for OpenAI itself.
		includeUsage: cfg.Service == "openai",
	}, nil
}

func (b *Backend) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	resp, err := b.client.CreateChatCompletion(ctx, b.chatRequest(req))
	if err != nil {
		return llm.Completion{}, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return llm.Completion{}, llm.ErrEmptyCompletion
	}
	return llm.Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  llm.Tokens(resp.Usage.PromptTokens),
		OutputTokens: llm.Tokens(resp.Usage.CompletionTokens),
	}, nil
}

func (b *Backend) GenerateStream(ctx context.Context, req llm.Request, onChunk func(string) error) (llm.Completion, error) {
	chatReq := b.chatRequest(req)
	chatReq.Stream = true
	if b.includeUsage {
		chatReq.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
	}

	stream, err := b.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return llm.Completion{}, err
	}
	defer stream.Close()

	var (
		full       strings.Builder
		completion llm.Completion
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return llm.Completion{}, err
		}
		if resp.Usage != nil {
			completion.InputTokens = llm.Tokens(resp.Usage.PromptTokens)
			completion.OutputTokens = llm.Tokens(resp.Usage.CompletionTokens)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		if err := onChunk(chunk); err != nil {
			return llm.Completion{}, err
		}
	}
	completion.Text = full.String()
	return completion, nil
}

func (b *Backend) chatRequest(req llm.Request) goopenai.ChatCompletionRequest {
	// Temperature is omitempty in go-openai, so an exact zero would be dropped
	// and the server default used instead.
	temperature := float32(req.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	return goopenai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    toChatMessages(req.SystemPrompt, req.Messages),
		Temperature: temperature,
		MaxTokens:   b.maxTokens,
	}
}

func toChatMessages(systemPrompt string, messages []models.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == models.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
