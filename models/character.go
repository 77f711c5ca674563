package models

import (
	"encoding/json"
	"strings"
)

// Role tags who authored a message in a character's conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a character's conversation history.
type Message struct {
	Role    Role   `json:"role" bson:"role"`
	Content string `json:"content" bson:"content"`
}

// RoleType is the narrative role a character plays in the case.
type RoleType string

const (
	RoleTypeNone    RoleType = ""
	RoleTypePlayer  RoleType = "player"
	RoleTypePartner RoleType = "partner"
	RoleTypeKiller  RoleType = "killer"
	RoleTypeSuspect RoleType = "suspect"
)

// roleTypeAliases maps labels sent by the game client onto role types.
// The client stores Chinese labels; English names are accepted too.
var roleTypeAliases = map[string]RoleType{
	"player":    RoleTypePlayer,
	"玩家":        RoleTypePlayer,
	"partner":   RoleTypePartner,
	"assistant": RoleTypePartner,
	"搭档":        RoleTypePartner,
	"killer":    RoleTypeKiller,
	"murderer":  RoleTypeKiller,
	"凶手":        RoleTypeKiller,
	"suspect":   RoleTypeSuspect,
	"嫌疑人":       RoleTypeSuspect,
}

// ParseRoleType normalizes a client label. Unknown labels are kept verbatim
// so the prompt can still name them.
func ParseRoleType(label string) RoleType {
	trimmed := strings.TrimSpace(label)
	if rt, ok := roleTypeAliases[strings.ToLower(trimmed)]; ok {
		return rt
	}
	return RoleType(trimmed)
}

func (r *RoleType) UnmarshalJSON(data []byte) error {
	var label *string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	if label == nil {
		*r = RoleTypeNone
		return nil
	}
	*r = ParseRoleType(*label)
	return nil
}

// Character is the full dramatis persona the reply is generated for.
// It carries the secret and the violation rule, so it must never be handed
// to another character's prompt; use SafeCharacter for that.
type Character struct {
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	Personality string    `json:"personality"`
	Context     string    `json:"context"`
	Secret      string    `json:"secret"`
	Violation   string    `json:"violation"`
	Messages    []Message `json:"messages"`
	IsAssistant bool      `json:"isAssistant,omitempty"`
	IsPartner   bool      `json:"isPartner,omitempty"`
	RoleType    RoleType  `json:"roleType,omitempty"`
}

// IsCompanion reports whether the character helps the detective and
// therefore gets the roster of other characters.
func (c *Character) IsCompanion() bool {
	return c.IsAssistant || c.IsPartner
}

// LastMessage returns the most recent message content, or "" for an empty history.
func (c *Character) LastMessage() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

// SafeCharacter is the public view of another character. It has no secret
// or violation field, so neither can leak through it.
type SafeCharacter struct {
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	Personality string    `json:"personality"`
	Context     string    `json:"context"`
	Messages    []Message `json:"messages,omitempty"`
	IsAssistant bool      `json:"isAssistant,omitempty"`
	IsPartner   bool      `json:"isPartner,omitempty"`
	RoleType    RoleType  `json:"roleType,omitempty"`
}

// NewSafeCharacter copies only the public attributes of c.
func NewSafeCharacter(c Character) SafeCharacter {
	messages := make([]Message, len(c.Messages))
	copy(messages, c.Messages)
	return SafeCharacter{
		Name:        c.Name,
		Bio:         c.Bio,
		Personality: c.Personality,
		Context:     c.Context,
		Messages:    messages,
		IsAssistant: c.IsAssistant,
		IsPartner:   c.IsPartner,
		RoleType:    c.RoleType,
	}
}

// NewSafeCharacterList converts a cast into companion summaries, leaving out
// the player character the way the game client does.
func NewSafeCharacterList(cast []Character) []SafeCharacter {
	safe := make([]SafeCharacter, 0, len(cast))
	for _, c := range cast {
		if c.RoleType == RoleTypePlayer {
			continue
		}
		safe = append(safe, NewSafeCharacter(c))
	}
	return safe
}
