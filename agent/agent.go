package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"interrogation/db"
	dbmodels "interrogation/db/models"
	"interrogation/llm"
	"interrogation/models"
	"interrogation/prompts"

	"github.com/google/uuid"
)

const storeTimeout = 5 * time.Second

// Pipeline produces one character reply per request: generate, critique and,
// when the critique finds a problem, refine.
type Pipeline struct {
	invoker  *llm.Invoker
	store    db.Store
	classify VerdictClassifier
}

// NewPipeline wires the stages together. store may be nil, in which case no
// audit trail is written. A nil classify uses ClassifyVerdict.
func NewPipeline(invoker *llm.Invoker, store db.Store, classify VerdictClassifier) *Pipeline {
	if classify == nil {
		classify = ClassifyVerdict
	}
	return &Pipeline{invoker: invoker, store: store, classify: classify}
}

// Run executes one full turn. Model failures abort the turn; persistence
// failures are logged and the reply is still returned.
func (p *Pipeline) Run(ctx context.Context, req *models.InvocationRequest) (*models.InvocationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	conn := p.acquire(ctx)
	if conn != nil {
		defer conn.Release()
	}
	connTime := time.Now()
	log.Printf("[PIPELINE] conn in %s", connTime.Sub(start))

	turnID := p.createTurn(ctx, conn, req)
	log.Printf("[PIPELINE] serving turn %d", turnID)

	temperature := req.SamplingTemperature()
	unrefined, err := p.invoker.Invoke(ctx, recorder(conn), turnID, llm.StageInitial,
		prompts.BuildSystemPrompt(req), req.Actor.Messages, temperature)
	if err != nil {
		return nil, fmt.Errorf("initial stage: %w", err)
	}

	critique, err := Critique(ctx, p.invoker, recorder(conn), turnID, req, unrefined)
	if err != nil {
		return nil, fmt.Errorf("critique stage: %w", err)
	}

	resp := &models.InvocationResponse{
		TurnID:           turnID,
		OriginalResponse: unrefined,
		CritiqueResponse: critique,
	}
	if p.classify(critique) == VerdictAccept {
		resp.FinalResponse = unrefined
	} else {
		refined, err := Refine(ctx, p.invoker, recorder(conn), turnID, req, critique, unrefined)
		if err != nil {
			return nil, fmt.Errorf("refine stage: %w", err)
		}
		resp.ProblemsDetected = true
		resp.FinalResponse = refined
		resp.RefinedResponse = &refined
	}
	log.Printf("[PIPELINE] turn %d response in %s (problems detected: %v)", turnID, time.Since(connTime), resp.ProblemsDetected)

	p.storeResponse(ctx, conn, turnID, resp)
	return resp, nil
}

// acquire returns nil when there is no store or it cannot hand out a
// connection.
func (p *Pipeline) acquire(ctx context.Context) db.Conn {
	if p.store == nil {
		return nil
	}
	conn, err := p.store.Acquire(ctx)
	if err != nil {
		log.Printf("[CONN_ACQUIRE_FAILED] %v", err)
		return nil
	}
	return conn
}

// createTurn returns 0 when the turn row could not be written.
func (p *Pipeline) createTurn(ctx context.Context, conn db.Conn, req *models.InvocationRequest) int64 {
	if conn == nil {
		return 0
	}

	chatMessages, err := json.Marshal(req.Actor.Messages)
	if err != nil {
		log.Printf("[TURN_CREATE_FAILED] encode messages: %v", err)
		return 0
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	turnID, err := conn.CreateTurn(ctx, &dbmodels.TurnDocument{
		SessionID:            sessionID,
		CharacterFileVersion: req.CharacterFileVersion,
		Model:                p.invoker.Model(),
		ModelKey:             p.invoker.ModelKey(),
		ActorName:            req.Actor.Name,
		ChatMessages:         string(chatMessages),
	})
	if err != nil {
		log.Printf("[TURN_CREATE_FAILED] session %s: %v", sessionID, err)
		return 0
	}
	return turnID
}

func (p *Pipeline) storeResponse(ctx context.Context, conn db.Conn, turnID int64, resp *models.InvocationResponse) {
	if conn == nil || turnID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	start := time.Now()
	err := conn.StoreResponse(ctx, turnID, dbmodels.TurnOutcome{
		OriginalResponse: resp.OriginalResponse,
		CritiqueResponse: resp.CritiqueResponse,
		ProblemsDetected: resp.ProblemsDetected,
		FinalResponse:    resp.FinalResponse,
		RefinedResponse:  resp.RefinedResponse,
	})
	if err != nil {
		log.Printf("[STORE_RESPONSE_FAILED] turn %d: %v", turnID, err)
		return
	}
	log.Printf("[PIPELINE] turn %d stored in %s", turnID, time.Since(start))
}

// recorder keeps a nil Conn from becoming a non-nil Recorder.
func recorder(conn db.Conn) llm.Recorder {
	if conn == nil {
		return nil
	}
	return conn
}
