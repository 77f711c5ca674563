package prompts

import (
	"fmt"
	"strings"

	"interrogation/models"
)

// Version identifies the prompt wording. Bump it whenever any prompt text in
// this package changes so audit rows can be grouped by wording.
const Version = "4"

// BuildSystemPrompt generates the system prompt for a character turn
func BuildSystemPrompt(req *models.InvocationRequest) string {
	detective := orDefault(req.DetectiveName, models.DefaultDetectiveName)
	victim := orDefault(req.VictimName, models.DefaultVictimName)

	companionContext := ""
	if req.Actor.IsCompanion() {
		companionContext = buildCompanionContext(req.GlobalStory, req.AllActors, req.Actor.Name, detective)
	}

	return fmt.Sprintf(`%s

%s is questioning the suspects to find who killed %s. The text above is the background of this story.
IMPORTANT: Only talk about characters, places and events that appear in the story background above. Never invent characters, relationships or event details that are not in the script.%s

%s`,
		req.GlobalStory,
		detective,
		victim,
		companionContext,
		buildActorPrompt(&req.Actor, detective))
}

// buildActorPrompt is the character-voice segment. The secret goes last and
// verbatim: the model has to know it in order to avoid giving it away.
func buildActorPrompt(actor *models.Character, detective string) string {
	roleDescription := describeRole(actor.RoleType, detective)
	if roleDescription != "" {
		roleDescription = "\n" + roleDescription
	}

	return fmt.Sprintf(`You are %s, talking with %s. Your output must be your spoken reply in the conversation.%s
Stay faithful to the story background, keep your character traits and follow the script strictly. Do not create characters, places or events that are not in the script; only talk about characters and plot that already exist in it.

STAGE DIRECTIONS:
- If you describe an action or expression, wrap it in parentheses and write it in the third person, e.g. (she lowers her voice, eyes on the floor).
- Never use the first person (I, me, my) to narrate %s's actions or expressions; use he, she, his or her instead.

The personality you show in every message is: %s
%s %s`,
		actor.Name,
		detective,
		roleDescription,
		actor.Name,
		actor.Personality,
		actor.Context,
		actor.Secret)
}

// describeRole returns the framing for the character's declared role.
func describeRole(role models.RoleType, detective string) string {
	switch role {
	case models.RoleTypeNone:
		return ""
	case models.RoleTypeSuspect:
		return fmt.Sprintf("ROLE: You are a suspect. You may be under suspicion in this case and must answer %s's questions carefully.", detective)
	case models.RoleTypeKiller:
		return "ROLE: You are the killer, but you must hide it and behave like any other suspect. Never confirm your guilt, however hard you are pressed. You may talk about facts connected to your motive as long as they do not expose you."
	case models.RoleTypePartner:
		return fmt.Sprintf("ROLE: You are %s's partner. Help the investigation while staying objective and neutral.", detective)
	case models.RoleTypePlayer:
		return "ROLE: You are the player character and you are leading this investigation."
	default:
		return fmt.Sprintf("ROLE: Your role in this case is %s.", role)
	}
}

// buildCompanionContext grounds a partner/assistant in the cast it may talk about.
// The speaking character is left out of its own roster.
func buildCompanionContext(backdrop string, companions []models.SafeCharacter, self, detective string) string {
	roster := CompanionRoster(backdrop, companions)

	names := make([]string, 0, len(roster))
	details := make([]string, 0, len(roster))
	for _, c := range roster {
		if c.Name == strings.TrimSpace(self) {
			continue
		}
		names = append(names, c.Name)
		details = append(details, fmt.Sprintf("%s (%s, personality: %s, role: %s)",
			c.Name,
			orDefault(c.Bio, "identity unknown"),
			orDefault(c.Personality, "unknown"),
			publicRole(c.RoleType)))
	}

	characterInfo := " When asked who is involved in the case, answer with the specific names that appear in the story background, never with vague categories."
	if len(names) > 0 {
		characterInfo = fmt.Sprintf(" The people involved in the case are: %s. When asked who is involved, list these names explicitly instead of giving vague categories.",
			strings.Join(names, ", "))
	}

	detailInfo := ""
	if len(details) > 0 {
		detailInfo = fmt.Sprintf(`

CHARACTER DETAILS:
%s
Based on these details you may analyse each character's motives, personality, behaviour and possible methods.

SAFETY LIMITS:
- You only know public information (name, identity, personality). You do not know any character's secrets.
- Never state who the killer is; reason only from the evidence.
- Never reveal any character's hidden motive or secret actions.
- Only analyse the evidence and notes the player gives you; never reach a conclusion without them.`,
			strings.Join(details, "\n"))
	}

	return fmt.Sprintf("\nAs %s's partner you must be able to name every person involved in the case.%s%s",
		detective, characterInfo, detailInfo)
}

// CompanionRoster returns the companions that may be shown to a partner:
// named, not the player, and literally mentioned in the backdrop. A name the
// backdrop never mentions is left out rather than introduced.
func CompanionRoster(backdrop string, companions []models.SafeCharacter) []models.SafeCharacter {
	roster := make([]models.SafeCharacter, 0, len(companions))
	seen := make(map[string]bool)
	for _, c := range companions {
		name := strings.TrimSpace(c.Name)
		if name == "" || seen[name] || c.RoleType == models.RoleTypePlayer {
			continue
		}
		if !strings.Contains(backdrop, name) {
			continue
		}
		seen[name] = true
		c.Name = name
		roster = append(roster, c)
	}
	return roster
}

// MentionedCharacterNames lists the roster names in input order.
func MentionedCharacterNames(backdrop string, companions []models.SafeCharacter) []string {
	roster := CompanionRoster(backdrop, companions)
	names := make([]string, 0, len(roster))
	for _, c := range roster {
		names = append(names, c.Name)
	}
	return names
}

// publicRole hides the killer behind the suspect label; a partner's roster
// must not reveal the culprit.
func publicRole(role models.RoleType) string {
	switch role {
	case models.RoleTypeNone:
		return "unknown"
	case models.RoleTypeKiller:
		return string(models.RoleTypeSuspect)
	default:
		return string(role)
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
