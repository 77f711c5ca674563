package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"interrogation/config"
	"interrogation/db"
	dbmodels "interrogation/db/models"
	"interrogation/llm"
	"interrogation/models"

	"github.com/google/go-cmp/cmp"
)

// scriptedBackend answers each stage with a fixed reply, telling stages
// apart by their system prompt.
type scriptedBackend struct {
	mu        sync.Mutex
	replies   map[llm.Stage]string
	failStage llm.Stage
	chunks    []string
	calls     []llm.Stage
}

func stageOf(req llm.Request) llm.Stage {
	switch {
	case strings.Contains(req.SystemPrompt, "last utterance"):
		return llm.StageCritique
	case strings.Contains(req.SystemPrompt, "edit dialogue"):
		return llm.StageRefine
	default:
		return llm.StageInitial
	}
}

func (b *scriptedBackend) Generate(ctx context.Context, req llm.Request) (llm.Completion, error) {
	stage := stageOf(req)
	b.mu.Lock()
	b.calls = append(b.calls, stage)
	b.mu.Unlock()
	if stage == b.failStage {
		return llm.Completion{}, errors.New("upstream 500")
	}
	return llm.Completion{Text: b.replies[stage], InputTokens: llm.Tokens(10), OutputTokens: llm.Tokens(5)}, nil
}

func (b *scriptedBackend) GenerateStream(ctx context.Context, req llm.Request, onChunk func(string) error) (llm.Completion, error) {
	b.mu.Lock()
	b.calls = append(b.calls, stageOf(req))
	b.mu.Unlock()
	if b.failStage == llm.StageInitial {
		return llm.Completion{}, errors.New("stream reset")
	}
	for _, c := range b.chunks {
		if err := onChunk(c); err != nil {
			return llm.Completion{}, err
		}
	}
	return llm.Completion{}, nil
}

type fakeConn struct {
	mu          sync.Mutex
	turnID      int64
	turnErr     error
	storeErr    error
	turns       []*dbmodels.TurnDocument
	invocations []*dbmodels.InvocationDocument
	outcomes    []dbmodels.TurnOutcome
	releases    int
}

func (c *fakeConn) CreateTurn(ctx context.Context, turn *dbmodels.TurnDocument) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnErr != nil {
		return 0, c.turnErr
	}
	c.turns = append(c.turns, turn)
	return c.turnID, nil
}

func (c *fakeConn) RecordInvocation(ctx context.Context, doc *dbmodels.InvocationDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations = append(c.invocations, doc)
	return nil
}

func (c *fakeConn) StoreResponse(ctx context.Context, turnID int64, outcome dbmodels.TurnOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
	return c.storeErr
}

func (c *fakeConn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

func (c *fakeConn) releaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

func (c *fakeConn) stages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, doc := range c.invocations {
		out = append(out, doc.PromptRole)
	}
	return out
}

type fakeStore struct {
	conn       *fakeConn
	acquireErr error
}

func (s *fakeStore) Acquire(ctx context.Context) (db.Conn, error) {
	if s.acquireErr != nil {
		return nil, s.acquireErr
	}
	return s.conn, nil
}

func (s *fakeStore) Ping(ctx context.Context) error  { return nil }
func (s *fakeStore) Close(ctx context.Context) error { return nil }

func newTestPipeline(backend llm.Backend, store db.Store) *Pipeline {
	invoker := llm.NewInvoker(backend, config.Inference{Model: "test-model", ModelKey: "test-key"}, time.Second)
	return NewPipeline(invoker, store, nil)
}

func testRequest() *models.InvocationRequest {
	return &models.InvocationRequest{
		GlobalStory:          "Lord Ashby was found dead in the library of Ashby Hall. Julian Hale and Ada Finch were in the house.",
		SessionID:            "session-42",
		CharacterFileVersion: "v2",
		Actor: models.Character{
			Name:        "Julian Hale",
			Personality: "charming, evasive",
			Context:     "Julian stands to inherit the estate.",
			Secret:      "Julian switched the decanter.",
			Violation:   "Principle B: Julian must never admit to switching the decanter.",
			RoleType:    models.RoleTypeKiller,
			Messages: []models.Message{
				{Role: models.RoleUser, Content: "Did you touch the decanter?"},
			},
		},
	}
}

func TestRunRefinesFlaggedReply(t *testing.T) {
	backend := &scriptedBackend{replies: map[llm.Stage]string{
		llm.StageInitial:  "Yes, I switched the decanter.",
		llm.StageCritique: `Quote: "Yes, I switched the decanter." Critique: confesses. Violated principle: Principle B.`,
		llm.StageRefine:   "(he smiles thinly) Why would I touch the decanter?",
	}}
	conn := &fakeConn{turnID: 17}
	p := newTestPipeline(backend, &fakeStore{conn: conn})

	resp, err := p.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	refined := "(he smiles thinly) Why would I touch the decanter?"
	want := &models.InvocationResponse{
		TurnID:           17,
		OriginalResponse: "Yes, I switched the decanter.",
		CritiqueResponse: backend.replies[llm.StageCritique],
		ProblemsDetected: true,
		FinalResponse:    refined,
		RefinedResponse:  &refined,
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"initial", "critique", "refine"}, conn.stages()); diff != "" {
		t.Errorf("recorded stages mismatch (-want +got):\n%s", diff)
	}
	for _, doc := range conn.invocations {
		if doc.TurnID != 17 {
			t.Errorf("invocation %s recorded against turn %d", doc.PromptRole, doc.TurnID)
		}
	}
	if len(conn.outcomes) != 1 || !conn.outcomes[0].ProblemsDetected || *conn.outcomes[0].RefinedResponse != refined {
		t.Errorf("stored outcome = %+v", conn.outcomes)
	}
	if len(conn.turns) != 1 || conn.turns[0].SessionID != "session-42" || conn.turns[0].ActorName != "Julian Hale" {
		t.Errorf("turn row = %+v", conn.turns)
	}
	if conn.turns[0].ChatMessages != `[{"role":"user","content":"Did you touch the decanter?"}]` {
		t.Errorf("chat messages = %s", conn.turns[0].ChatMessages)
	}
	if conn.releaseCount() != 1 {
		t.Errorf("released %d times, want 1", conn.releaseCount())
	}
}

func TestRunAcceptsCleanReply(t *testing.T) {
	backend := &scriptedBackend{replies: map[llm.Stage]string{
		llm.StageInitial:  "(he glances at the window) I was in the garden all evening.",
		llm.StageCritique: "NONE!",
	}}
	conn := &fakeConn{turnID: 3}
	p := newTestPipeline(backend, &fakeStore{conn: conn})

	resp, err := p.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.ProblemsDetected || resp.RefinedResponse != nil {
		t.Errorf("clean reply should not be refined: %+v", resp)
	}
	if resp.FinalResponse != resp.OriginalResponse {
		t.Errorf("final %q != original %q", resp.FinalResponse, resp.OriginalResponse)
	}
	if diff := cmp.Diff([]llm.Stage{llm.StageInitial, llm.StageCritique}, backend.calls); diff != "" {
		t.Errorf("backend calls mismatch (-want +got):\n%s", diff)
	}
	if len(conn.outcomes) != 1 || conn.outcomes[0].RefinedResponse != nil {
		t.Errorf("stored outcome = %+v", conn.outcomes)
	}
}

func TestRunWithoutStore(t *testing.T) {
	backend := &scriptedBackend{replies: map[llm.Stage]string{
		llm.StageInitial:  "I have nothing to say.",
		llm.StageCritique: "NONE!",
	}}

	tests := []struct {
		name  string
		store db.Store
	}{
		{"No store configured", nil},
		{"Acquire fails", &fakeStore{acquireErr: errors.New("pool exhausted")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(backend, tc.store)
			resp, err := p.Run(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if resp.TurnID != 0 || resp.FinalResponse != "I have nothing to say." {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestRunPersistenceFailuresAreSwallowed(t *testing.T) {
	backend := &scriptedBackend{replies: map[llm.Stage]string{
		llm.StageInitial:  "Ask my lawyer.",
		llm.StageCritique: "NONE!",
	}}

	t.Run("Turn creation fails", func(t *testing.T) {
		conn := &fakeConn{turnErr: errors.New("insert failed")}
		resp, err := newTestPipeline(backend, &fakeStore{conn: conn}).Run(context.Background(), testRequest())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if resp.TurnID != 0 {
			t.Errorf("turn id = %d, want 0", resp.TurnID)
		}
		if len(conn.outcomes) != 0 {
			t.Error("response must not be stored against turn 0")
		}
		if conn.releaseCount() != 1 {
			t.Errorf("released %d times, want 1", conn.releaseCount())
		}
	})

	t.Run("Store response fails", func(t *testing.T) {
		conn := &fakeConn{turnID: 8, storeErr: errors.New("update failed")}
		resp, err := newTestPipeline(backend, &fakeStore{conn: conn}).Run(context.Background(), testRequest())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if resp.FinalResponse != "Ask my lawyer." {
			t.Errorf("response = %+v", resp)
		}
	})
}

func TestRunStageFailureAbortsTurn(t *testing.T) {
	for _, stage := range []llm.Stage{llm.StageInitial, llm.StageCritique, llm.StageRefine} {
		t.Run(string(stage), func(t *testing.T) {
			backend := &scriptedBackend{
				replies: map[llm.Stage]string{
					llm.StageInitial:  "reply",
					llm.StageCritique: "Quote: reply Critique: bad. Violated principle: B.",
				},
				failStage: stage,
			}
			conn := &fakeConn{turnID: 5}
			resp, err := newTestPipeline(backend, &fakeStore{conn: conn}).Run(context.Background(), testRequest())
			if err == nil {
				t.Fatalf("Run succeeded with failing %s stage: %+v", stage, resp)
			}
			if !strings.HasPrefix(err.Error(), string(stage)+" stage") {
				t.Errorf("error %q should name the %s stage", err, stage)
			}
			if len(conn.outcomes) != 0 {
				t.Error("aborted turn must not store a response")
			}
			if conn.releaseCount() != 1 {
				t.Errorf("released %d times, want 1", conn.releaseCount())
			}
		})
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	req := testRequest()
	req.Actor.Messages = nil
	_, err := newTestPipeline(&scriptedBackend{}, nil).Run(context.Background(), req)
	if !errors.Is(err, models.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestRunLenientClassifier(t *testing.T) {
	backend := &scriptedBackend{replies: map[llm.Stage]string{
		llm.StageInitial:  "No comment.",
		llm.StageCritique: "  none!",
		llm.StageRefine:   "(he shrugs) No comment.",
	}}
	invoker := llm.NewInvoker(backend, config.Inference{}, time.Second)

	strict, err := NewPipeline(invoker, nil, nil).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strict.ProblemsDetected {
		t.Error("strict classifier should refine a lowercase sentinel")
	}

	lenient, err := NewPipeline(invoker, nil, ClassifyVerdictLenient).Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lenient.ProblemsDetected {
		t.Error("lenient classifier should accept a lowercase sentinel")
	}
}

func collect(events <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestRunStream(t *testing.T) {
	backend := &scriptedBackend{chunks: []string{"(he pauses) ", "The garden, ", "all evening."}}
	conn := &fakeConn{turnID: 21}
	p := newTestPipeline(backend, &fakeStore{conn: conn})

	got := collect(p.RunStream(context.Background(), testRequest()))
	want := []StreamEvent{
		{Type: EventChunk, Content: "(he pauses) "},
		{Type: EventChunk, Content: "The garden, "},
		{Type: EventChunk, Content: "all evening."},
		{Type: EventEnd},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if conn.releaseCount() != 1 {
		t.Errorf("released %d times, want 1", conn.releaseCount())
	}
	if diff := cmp.Diff([]string{"initial"}, conn.stages()); diff != "" {
		t.Errorf("recorded stages mismatch (-want +got):\n%s", diff)
	}
	if conn.invocations[0].Response != "(he pauses) The garden, all evening." {
		t.Errorf("recorded response = %q", conn.invocations[0].Response)
	}
	if len(conn.outcomes) != 1 || conn.outcomes[0].FinalResponse != "(he pauses) The garden, all evening." {
		t.Errorf("stored outcome = %+v", conn.outcomes)
	}
}

func TestRunStreamInterruptedReleasesOnce(t *testing.T) {
	backend := &scriptedBackend{chunks: []string{"one ", "two ", "three ", "four "}}
	conn := &fakeConn{turnID: 4}
	p := newTestPipeline(backend, &fakeStore{conn: conn})

	ctx, cancel := context.WithCancel(context.Background())
	events := p.RunStream(ctx, testRequest())

	for i := 0; i < 2; i++ {
		ev := <-events
		if ev.Type != EventChunk {
			t.Fatalf("event %d = %+v, want chunk", i, ev)
		}
	}
	cancel()
	for range events {
	}

	if conn.releaseCount() != 1 {
		t.Errorf("released %d times, want 1", conn.releaseCount())
	}
	if len(conn.invocations) != 0 {
		t.Errorf("interrupted stream recorded %d invocations", len(conn.invocations))
	}
}

func TestRunStreamBackendError(t *testing.T) {
	backend := &scriptedBackend{failStage: llm.StageInitial}
	conn := &fakeConn{turnID: 2}
	p := newTestPipeline(backend, &fakeStore{conn: conn})

	got := collect(p.RunStream(context.Background(), testRequest()))
	if len(got) != 1 || got[0].Type != EventError || !strings.Contains(got[0].Message, "stream reset") {
		t.Errorf("events = %+v", got)
	}
	if conn.releaseCount() != 1 {
		t.Errorf("released %d times, want 1", conn.releaseCount())
	}
}

func TestRunStreamInvalidRequest(t *testing.T) {
	req := testRequest()
	req.Actor.Name = ""
	got := collect(newTestPipeline(&scriptedBackend{}, nil).RunStream(context.Background(), req))
	if len(got) != 1 || got[0].Type != EventError {
		t.Errorf("events = %+v", got)
	}
}
