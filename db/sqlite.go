package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"interrogation/db/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	character_file_version TEXT NOT NULL,
	model TEXT NOT NULL,
	model_key TEXT NOT NULL,
	actor_name TEXT NOT NULL,
	chat_messages TEXT NOT NULL,
	original_response TEXT,
	critique_response TEXT,
	problems_detected INTEGER,
	final_response TEXT,
	refined_response TEXT,
	created_at TEXT NOT NULL,
	finished_at TEXT
);
CREATE TABLE IF NOT EXISTS ai_invocations (
	invocation_id TEXT PRIMARY KEY,
	conversation_turn_id INTEGER NOT NULL,
	model TEXT NOT NULL,
	model_key TEXT NOT NULL,
	prompt_messages TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	prompt_role TEXT NOT NULL,
	input_tokens INTEGER,
	output_tokens INTEGER,
	total_tokens INTEGER,
	response TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_invocations_turn ON ai_invocations (conversation_turn_id);
`

// SQLiteStore keeps the audit tables in a local SQLite file. Connections
// come from the database/sql pool.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path, creating the file and schema when missing.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("SQLITE_PATH is empty")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.ExecContext(ctx, sqliteSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	log.Printf("Opened SQLite store at %s", path)
	return &SQLiteStore{db: sqlDB}, nil
}

func (s *SQLiteStore) Acquire(ctx context.Context) (Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteConn{conn: conn}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

type sqliteConn struct {
	conn *sql.Conn
	once sync.Once
}

func (c *sqliteConn) CreateTurn(ctx context.Context, turn *models.TurnDocument) (int64, error) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	res, err := c.conn.ExecContext(ctx,
		`INSERT INTO conversation_turns
			(session_id, character_file_version, model, model_key, actor_name, chat_messages, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, turn.CharacterFileVersion, turn.Model, turn.ModelKey,
		turn.ActorName, turn.ChatMessages, formatTime(turn.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	turn.ID = id
	return id, nil
}

func (c *sqliteConn) RecordInvocation(ctx context.Context, doc *models.InvocationDocument) error {
	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO ai_invocations
			(invocation_id, conversation_turn_id, model, model_key, prompt_messages, system_prompt,
			 prompt_role, input_tokens, output_tokens, total_tokens, response, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.InvocationID, doc.TurnID, doc.Model, doc.ModelKey, doc.PromptMessages, doc.SystemPrompt,
		doc.PromptRole, nullInt(doc.InputTokens), nullInt(doc.OutputTokens), nullInt(doc.TotalTokens),
		doc.Response, formatTime(doc.StartedAt), formatTime(doc.FinishedAt),
	)
	return err
}

func (c *sqliteConn) StoreResponse(ctx context.Context, turnID int64, outcome models.TurnOutcome) error {
	var refined sql.NullString
	if outcome.RefinedResponse != nil {
		refined = sql.NullString{String: *outcome.RefinedResponse, Valid: true}
	}
	res, err := c.conn.ExecContext(ctx,
		`UPDATE conversation_turns
		SET original_response = ?, critique_response = ?, problems_detected = ?,
			final_response = ?, refined_response = ?, finished_at = ?
		WHERE id = ?`,
		outcome.OriginalResponse, outcome.CritiqueResponse, outcome.ProblemsDetected,
		outcome.FinalResponse, refined, formatTime(time.Now()), turnID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (c *sqliteConn) Release() {
	c.once.Do(func() {
		if err := c.conn.Close(); err != nil {
			log.Printf("[SQLITE_RELEASE_FAILED] %v", err)
		}
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
