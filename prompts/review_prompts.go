package prompts

import (
	"fmt"

	"interrogation/models"
)

// AcceptSentinel is the exact reply the critic gives when nothing is wrong.
const AcceptSentinel = "NONE!"

// BuildCritiquePrompt builds the rubric used to review a candidate reply
// against the character's violation rule. Only the latest utterance is judged.
func BuildCritiquePrompt(req *models.InvocationRequest, lastUtterance string) string {
	name := req.Actor.Name
	return fmt.Sprintf(`
Check whether %s's last utterance: "%s" seriously violates these principles: Principle A: talking about being an AI assistant. %s End of principles.
Only look at the last utterance; do not consider earlier parts of the conversation.
Identify clear and obvious violations of the principles above. Off-topic conversation is allowed.
You may only cite the principles above. Do not focus on anything else.
Give a concise explanation of fewer than 100 words, quoting the last utterance directly to show each violation.
Think step by step before listing the violated principles. If no principle is violated, return the exact one-word phrase "%s" and nothing else.
Otherwise, after your analysis you must list the violated principles in this format:
Format: Quote: ... Critique: ... Violated principle: ...
Example of this format: Quote: "%s is saying nice things." Critique: The utterance is in the third person. Violated principle: Principle 2: the dialogue is not from %s's perspective.
`,
		name,
		lastUtterance,
		req.Actor.Violation,
		AcceptSentinel,
		name,
		name)
}

// BuildRefinePrompt builds the rewrite instructions for a flagged reply.
// The rewrite keeps the reply's content and voice and removes only what the
// critique lists.
func BuildRefinePrompt(req *models.InvocationRequest, critique string) string {
	actor := &req.Actor
	return fmt.Sprintf(`
Your job is to edit dialogue for a murder mystery video game. This dialogue comes from the character %s responding to the following prompt: %s
This is %s's story background: %s %s
Your revised dialogue must be consistent with the story background and free of the following problems: %s.
The revised dialogue you output must be from %s's perspective, as close as possible to the original message, and consistent with %s's personality: %s.
Change the original input as little as possible!
Leave all of the following out of your output: quotation marks, comments about story consistency, any mention of principles or violations.
`,
		actor.Name,
		actor.LastMessage(),
		actor.Name,
		actor.Context,
		actor.Secret,
		critique,
		actor.Name,
		actor.Name,
		actor.Personality)
}
