package models

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultDetectiveName = "the investigator"
	DefaultVictimName    = "the victim"
	DefaultTemperature   = 0.7
)

var ErrInvalidRequest = errors.New("invalid invocation request")

// InvocationRequest is everything needed to produce one character reply.
type InvocationRequest struct {
	GlobalStory          string          `json:"global_story"`
	Actor                Character       `json:"actor"`
	SessionID            string          `json:"session_id"`
	CharacterFileVersion string          `json:"character_file_version"`
	DetectiveName        string          `json:"detective_name,omitempty"`
	VictimName           string          `json:"victim_name,omitempty"`
	AllActors            []SafeCharacter `json:"all_actors,omitempty"`
	Temperature          *float64        `json:"temperature,omitempty"`
}

// Normalize fills in the defaults the game client is allowed to omit.
func (r *InvocationRequest) Normalize() {
	if strings.TrimSpace(r.DetectiveName) == "" {
		r.DetectiveName = DefaultDetectiveName
	}
	if strings.TrimSpace(r.VictimName) == "" {
		r.VictimName = DefaultVictimName
	}
	if r.Temperature == nil {
		t := DefaultTemperature
		r.Temperature = &t
	}
}

// Validate checks the request can be turned into prompts.
func (r *InvocationRequest) Validate() error {
	if strings.TrimSpace(r.Actor.Name) == "" {
		return fmt.Errorf("%w: actor name is required", ErrInvalidRequest)
	}
	if len(r.Actor.Messages) == 0 {
		return fmt.Errorf("%w: actor has no messages", ErrInvalidRequest)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 1) {
		return fmt.Errorf("%w: temperature %.2f outside [0, 1]", ErrInvalidRequest, *r.Temperature)
	}
	return nil
}

// SamplingTemperature returns the requested temperature or the default.
func (r *InvocationRequest) SamplingTemperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// InvocationResponse is the outcome of one pipeline turn.
type InvocationResponse struct {
	TurnID           int64   `json:"turn_id"`
	OriginalResponse string  `json:"original_response"`
	CritiqueResponse string  `json:"critique_response"`
	ProblemsDetected bool    `json:"problems_detected"`
	FinalResponse    string  `json:"final_response"`
	RefinedResponse  *string `json:"refined_response"`
}
