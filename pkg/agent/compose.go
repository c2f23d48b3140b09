package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/research"
)

const degradedResponse = "I wasn't able to put together a response this time. Please try again."

// compose produces the final assistant reply. With evidence present the
// model is held to a strict cite-only discipline; with none it answers from
// general knowledge with citations forbidden. Compose never fails the turn:
// an LLM error or empty reply degrades to a fixed apology.
func (a *Agent) compose(ctx context.Context, state *TurnState) error {
	a.status("Synthesizing response")

	hasResearch := len(state.QueryResults) > 0

	prompt := composerPrompt(hasResearch)
	if hasResearch {
		prompt += "\n" + researchResultsMessage(state.QueryResults)
	}

	messages := make([]llms.Message, 0, len(state.Conversation)+1)
	messages = append(messages, llms.System(prompt))
	messages = append(messages, state.Conversation...)

	effort := llms.ReasoningEffortMedium
	if state.ResearchEffort == research.EffortDeep {
		effort = llms.ReasoningEffortHigh
	}

	reply, tokens, err := a.llm.Generate(ctx, messages, effort)
	if err != nil {
		slog.Error("response synthesis failed", "error", err)
		state.Response = degradedResponse
		return nil
	}
	if strings.TrimSpace(reply) == "" {
		slog.Error("response synthesis returned empty text")
		state.Response = degradedResponse
		return nil
	}

	slog.Debug("response synthesized",
		"tokens", tokens, "has_research", hasResearch,
		"results", len(state.QueryResults))

	state.Response = reply
	return nil
}
