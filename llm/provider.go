package llm

import (
	"context"
	"errors"

	"interrogation/models"
)

var (
	ErrUnknownBackend   = errors.New("unknown inference service")
	ErrEmptyCompletion  = errors.New("backend returned no text")
	ErrStageTimeout     = errors.New("model invocation timed out")
	ErrMissingAPIKey    = errors.New("inference service requires an API key")
	ErrMissingModelName = errors.New("inference service requires a model name")
)

// Stage labels which pipeline step a model call belongs to.
type Stage string

const (
	StageInitial  Stage = "initial"
	StageCritique Stage = "critique"
	StageRefine   Stage = "refine"
)

// Request is the uniform input every backend accepts.
type Request struct {
	SystemPrompt string
	Messages     []models.Message
	Temperature  float64
}

// Completion is a backend reply. Token counts are nil when the backend does
// not report usage.
type Completion struct {
	Text         string
	InputTokens  *int
	OutputTokens *int
}

// Backend is a text-generation service.
type Backend interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

// StreamingBackend is implemented by backends that can deliver text as it
// is produced. onChunk is called once per fragment; a non-nil error from it
// aborts the stream.
type StreamingBackend interface {
	Backend
	GenerateStream(ctx context.Context, req Request, onChunk func(string) error) (Completion, error)
}

// Tokens is a helper for backends that report usage as plain integers.
func Tokens(n int) *int {
	return &n
}
