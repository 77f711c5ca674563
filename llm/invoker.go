package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"interrogation/config"
	dbmodels "interrogation/db/models"
	"interrogation/models"

	"github.com/google/uuid"
)

const recordTimeout = 5 * time.Second

// Recorder persists one audit row per model call. db.Conn satisfies it.
type Recorder interface {
	RecordInvocation(ctx context.Context, doc *dbmodels.InvocationDocument) error
}

// Invoker runs a single pipeline stage against the configured backend and
// writes the audit row for it.
type Invoker struct {
	backend  Backend
	model    string
	modelKey string
	timeout  time.Duration
}

// NewInvoker wraps backend. A zero timeout disables the per-stage deadline.
func NewInvoker(backend Backend, cfg config.Inference, timeout time.Duration) *Invoker {
	return &Invoker{
		backend:  backend,
		model:    cfg.Model,
		modelKey: cfg.ModelKey,
		timeout:  timeout,
	}
}

func (iv *Invoker) Model() string    { return iv.model }
func (iv *Invoker) ModelKey() string { return iv.modelKey }

// Invoke sends systemPrompt and messages to the backend and returns the reply
// text. Backend errors are returned as is; nothing is retried. An empty reply
// is ErrEmptyCompletion, on this path and on InvokeStream alike.
func (iv *Invoker) Invoke(ctx context.Context, rec Recorder, turnID int64, stage Stage, systemPrompt string, messages []models.Message, temperature float64) (string, error) {
	req := Request{SystemPrompt: systemPrompt, Messages: messages, Temperature: temperature}

	stageCtx, cancel := iv.stageContext(ctx)
	defer cancel()

	started := time.Now()
	completion, err := iv.backend.Generate(stageCtx, req)
	if err != nil {
		return "", iv.stageError(ctx, stageCtx, stage, err)
	}
	if completion.Text == "" {
		return "", ErrEmptyCompletion
	}
	finished := time.Now()
	log.Printf("[LLM] %s stage in %s", stage, finished.Sub(started))

	iv.record(ctx, rec, newInvocationDocument(turnID, stage, iv, req, completion, started, finished))
	return completion.Text, nil
}

// InvokeStream is Invoke with incremental delivery. onChunk receives each
// fragment as it arrives; an error from it stops the stream. Backends that
// cannot stream deliver their whole reply as one chunk. The audit row is
// written once, after the stream completes, with the concatenated text.
func (iv *Invoker) InvokeStream(ctx context.Context, rec Recorder, turnID int64, stage Stage, systemPrompt string, messages []models.Message, temperature float64, onChunk func(string) error) (string, error) {
	req := Request{SystemPrompt: systemPrompt, Messages: messages, Temperature: temperature}

	stageCtx, cancel := iv.stageContext(ctx)
	defer cancel()

	var full strings.Builder
	emit := func(chunk string) error {
		if chunk == "" {
			return nil
		}
		full.WriteString(chunk)
		return onChunk(chunk)
	}

	started := time.Now()
	var (
		completion Completion
		err        error
	)
	if streamer, ok := iv.backend.(StreamingBackend); ok {
		completion, err = streamer.GenerateStream(stageCtx, req, emit)
	} else {
		completion, err = iv.backend.Generate(stageCtx, req)
		if err == nil {
			err = emit(completion.Text)
		}
	}
	if err != nil {
		return full.String(), iv.stageError(ctx, stageCtx, stage, err)
	}
	if full.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	finished := time.Now()
	log.Printf("[LLM] %s stage streamed in %s", stage, finished.Sub(started))

	completion.Text = full.String()
	if completion.InputTokens == nil {
		completion.InputTokens = Tokens(0)
	}
	if completion.OutputTokens == nil {
		completion.OutputTokens = Tokens(0)
	}

	iv.record(ctx, rec, newInvocationDocument(turnID, stage, iv, req, completion, started, finished))
	return completion.Text, nil
}

func (iv *Invoker) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if iv.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, iv.timeout)
}

// stageError marks errors caused by the stage deadline rather than by the
// caller going away.
func (iv *Invoker) stageError(parent, stageCtx context.Context, stage Stage, err error) error {
	if parent.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s stage exceeded %s: %w", ErrStageTimeout, stage, iv.timeout, err)
	}
	return err
}

// record writes the audit row. It runs detached from the caller's
// cancellation so a finished call is still logged after a client disconnect.
func (iv *Invoker) record(ctx context.Context, rec Recorder, doc *dbmodels.InvocationDocument) {
	if rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := rec.RecordInvocation(ctx, doc); err != nil {
		log.Printf("[INVOCATION_RECORD_FAILED] turn %d stage %s: %v", doc.TurnID, doc.PromptRole, err)
	}
}

func newInvocationDocument(turnID int64, stage Stage, iv *Invoker, req Request, completion Completion, started, finished time.Time) *dbmodels.InvocationDocument {
	promptMessages, err := json.Marshal(req.Messages)
	if err != nil {
		promptMessages = []byte("[]")
	}
	return &dbmodels.InvocationDocument{
		InvocationID:   uuid.NewString(),
		TurnID:         turnID,
		Model:          iv.model,
		ModelKey:       iv.modelKey,
		PromptMessages: string(promptMessages),
		SystemPrompt:   req.SystemPrompt,
		PromptRole:     string(stage),
		InputTokens:    completion.InputTokens,
		OutputTokens:   completion.OutputTokens,
		TotalTokens:    totalTokens(completion.InputTokens, completion.OutputTokens),
		Response:       completion.Text,
		StartedAt:      started,
		FinishedAt:     finished,
	}
}

func totalTokens(input, output *int) *int {
	if input == nil && output == nil {
		return nil
	}
	total := 0
	if input != nil {
		total += *input
	}
	if output != nil {
		total += *output
	}
	return &total
}
