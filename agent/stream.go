package agent

import (
	"context"
	"log"

	"interrogation/llm"
	"interrogation/models"
	"interrogation/prompts"
)

type EventType string

const (
	EventChunk EventType = "chunk"
	EventEnd   EventType = "end"
	EventError EventType = "error"
)

// StreamEvent is one frame of a streamed reply.
type StreamEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Message string    `json:"message,omitempty"`
}

// RunStream streams the generate stage only. Text reaches the client as it
// is produced, so there is nothing left for critique or refinement to fix.
//
// The channel yields chunk events followed by exactly one end or error
// event. The store connection is released after the terminal event and
// before the channel is closed. Cancelling ctx stops delivery.
func (p *Pipeline) RunStream(ctx context.Context, req *models.InvocationRequest) <-chan StreamEvent {
	events := make(chan StreamEvent)

	go func() {
		defer close(events)

		if err := req.Validate(); err != nil {
			send(ctx, events, StreamEvent{Type: EventError, Message: err.Error()})
			return
		}

		conn := p.acquire(ctx)
		if conn != nil {
			defer conn.Release()
		}

		turnID := p.createTurn(ctx, conn, req)
		log.Printf("[PIPELINE] serving turn %d (streaming)", turnID)

		text, err := p.invoker.InvokeStream(ctx, recorder(conn), turnID, llm.StageInitial,
			prompts.BuildSystemPrompt(req), req.Actor.Messages, req.SamplingTemperature(),
			func(chunk string) error {
				if !send(ctx, events, StreamEvent{Type: EventChunk, Content: chunk}) {
					return ctx.Err()
				}
				return nil
			})
		if err != nil {
			log.Printf("[STREAM_FAILED] turn %d: %v", turnID, err)
			send(ctx, events, StreamEvent{Type: EventError, Message: err.Error()})
			return
		}

		p.storeResponse(ctx, conn, turnID, &models.InvocationResponse{
			TurnID:           turnID,
			OriginalResponse: text,
			FinalResponse:    text,
		})
		send(ctx, events, StreamEvent{Type: EventEnd})
	}()

	return events
}

// send reports false when ctx ended before the event was taken.
func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
