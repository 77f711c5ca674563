package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"interrogation/db/models"

	supa "github.com/supabase-community/supabase-go"
)

// SupabaseStore writes the audit tables through Supabase's PostgREST API.
// The HTTP client is shared, so Acquire only wraps it in a handle.
type SupabaseStore struct {
	client *supa.Client
}

func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	if url == "" || key == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_KEY must be set")
	}
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize supabase client: %w", err)
	}
	log.Println("Supabase client initialized")
	return &SupabaseStore{client: client}, nil
}

func (s *SupabaseStore) Acquire(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &supabaseConn{client: s.client}, nil
}

// Ping reads at most one turn row to confirm the table is reachable.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	var rows []models.TurnDocument
	_, err := s.client.From(turnsCollection).Select("id", "", false).Limit(1, "").ExecuteTo(&rows)
	return err
}

func (s *SupabaseStore) Close(context.Context) error {
	return nil
}

type supabaseConn struct {
	client *supa.Client
}

func (c *supabaseConn) CreateTurn(ctx context.Context, turn *models.TurnDocument) (int64, error) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	var inserted []models.TurnDocument
	_, err := c.client.From(turnsCollection).
		Insert(turn, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return 0, err
	}
	if len(inserted) == 0 {
		return 0, errors.New("supabase returned no inserted turn")
	}
	turn.ID = inserted[0].ID
	return turn.ID, nil
}

func (c *supabaseConn) RecordInvocation(ctx context.Context, doc *models.InvocationDocument) error {
	_, _, err := c.client.From(invocationsCollection).
		Insert(doc, false, "", "minimal", "").
		Execute()
	return err
}

func (c *supabaseConn) StoreResponse(ctx context.Context, turnID int64, outcome models.TurnOutcome) error {
	update := struct {
		models.TurnOutcome
		FinishedAt time.Time `json:"finished_at"`
	}{outcome, time.Now()}

	var updated []models.TurnDocument
	_, err := c.client.From(turnsCollection).
		Update(update, "representation", "").
		Eq("id", strconv.FormatInt(turnID, 10)).
		ExecuteTo(&updated)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return fmt.Errorf("turn %d not found", turnID)
	}
	return nil
}

func (c *supabaseConn) Release() {}
