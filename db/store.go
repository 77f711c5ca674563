package db

import (
	"context"
	"errors"
	"fmt"

	"interrogation/config"
	"interrogation/db/models"
)

var ErrUnknownStore = errors.New("unknown store kind")

// Store hands out connections for the audit tables. Implementations are
// safe for concurrent use.
type Store interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Conn is one acquired persistence handle. Every write is committed before
// the method returns. Release returns the handle to its store; calling it
// more than once is a no-op.
type Conn interface {
	CreateTurn(ctx context.Context, turn *models.TurnDocument) (int64, error)
	RecordInvocation(ctx context.Context, doc *models.InvocationDocument) error
	StoreResponse(ctx context.Context, turnID int64, outcome models.TurnOutcome) error
	Release()
}

// New opens the store selected by cfg.Kind. Kind "none" yields a nil Store
// and no error: the pipeline then runs without an audit trail.
func New(ctx context.Context, cfg config.Store) (Store, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "mongo", "mongodb":
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "supabase":
		s, err := NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Kind)
	}
}
