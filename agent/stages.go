package agent

import (
	"context"

	"interrogation/llm"
	"interrogation/models"
	"interrogation/prompts"
)

// Critique asks the model whether reply breaks the actor's violation rule.
// The verdict text is returned unparsed.
func Critique(ctx context.Context, invoker *llm.Invoker, rec llm.Recorder, turnID int64, req *models.InvocationRequest, reply string) (string, error) {
	return invoker.Invoke(
		ctx, rec, turnID, llm.StageCritique,
		prompts.BuildCritiquePrompt(req, reply),
		[]models.Message{{Role: models.RoleUser, Content: reply}},
		req.SamplingTemperature(),
	)
}

// Refine rewrites unrefined so it no longer has the problems listed in
// critique. It always returns a replacement.
func Refine(ctx context.Context, invoker *llm.Invoker, rec llm.Recorder, turnID int64, req *models.InvocationRequest, critique, unrefined string) (string, error) {
	return invoker.Invoke(
		ctx, rec, turnID, llm.StageRefine,
		prompts.BuildRefinePrompt(req, critique),
		[]models.Message{{Role: models.RoleUser, Content: unrefined}},
		req.SamplingTemperature(),
	)
}
