package models

import (
	"time"
)

// TurnDocument is one player-utterance/character-reply exchange. It is
// inserted when the turn starts and completed once the reply is known.
type TurnDocument struct {
	ID                   int64      `bson:"_id" json:"id,omitempty"`
	SessionID            string     `bson:"session_id" json:"session_id"`
	CharacterFileVersion string     `bson:"character_file_version" json:"character_file_version"`
	Model                string     `bson:"model" json:"model"`
	ModelKey             string     `bson:"model_key" json:"model_key"`
	ActorName            string     `bson:"actor_name" json:"actor_name"`
	ChatMessages         string     `bson:"chat_messages" json:"chat_messages"` // JSON-encoded history
	OriginalResponse     *string    `bson:"original_response,omitempty" json:"original_response,omitempty"`
	CritiqueResponse     *string    `bson:"critique_response,omitempty" json:"critique_response,omitempty"`
	ProblemsDetected     *bool      `bson:"problems_detected,omitempty" json:"problems_detected,omitempty"`
	FinalResponse        *string    `bson:"final_response,omitempty" json:"final_response,omitempty"`
	RefinedResponse      *string    `bson:"refined_response,omitempty" json:"refined_response,omitempty"`
	CreatedAt            time.Time  `bson:"created_at" json:"created_at"`
	FinishedAt           *time.Time `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
}

// TurnOutcome is what a finished turn writes back onto its TurnDocument.
type TurnOutcome struct {
	OriginalResponse string  `bson:"original_response" json:"original_response"`
	CritiqueResponse string  `bson:"critique_response" json:"critique_response"`
	ProblemsDetected bool    `bson:"problems_detected" json:"problems_detected"`
	FinalResponse    string  `bson:"final_response" json:"final_response"`
	RefinedResponse  *string `bson:"refined_response" json:"refined_response"`
}

// InvocationDocument is the audit row for a single model call. Rows are
// append-only.
type InvocationDocument struct {
	InvocationID   string    `bson:"_id" json:"invocation_id"`
	TurnID         int64     `bson:"conversation_turn_id" json:"conversation_turn_id"`
	Model          string    `bson:"model" json:"model"`
	ModelKey       string    `bson:"model_key" json:"model_key"`
	PromptMessages string    `bson:"prompt_messages" json:"prompt_messages"` // JSON-encoded
	SystemPrompt   string    `bson:"system_prompt" json:"system_prompt"`
	PromptRole     string    `bson:"prompt_role" json:"prompt_role"` // initial, critique or refine
	InputTokens    *int      `bson:"input_tokens" json:"input_tokens"`
	OutputTokens   *int      `bson:"output_tokens" json:"output_tokens"`
	TotalTokens    *int      `bson:"total_tokens" json:"total_tokens"`
	Response       string    `bson:"response" json:"response"`
	StartedAt      time.Time `bson:"started_at" json:"started_at"`
	FinishedAt     time.Time `bson:"finished_at" json:"finished_at"`
}
