package agent

import (
	"context"
	"log/slog"

	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/research"
)

// classifyEffort asks the model for a single-digit effort tier. The reply is
// scanned for the first occurrence of '0', '1' or '2' so a slightly chatty
// model still classifies. After the attempt budget the turn falls back to
// SIMPLE: over-researching an easy question is recoverable, skipping research
// on a real one is not.
func (a *Agent) classifyEffort(ctx context.Context, state *TurnState) error {
	a.status("Classifying request")

	messages := make([]llms.Message, 0, len(state.Conversation)+1)
	messages = append(messages, llms.System(classifierPrompt))
	messages = append(messages, state.Conversation...)

	for attempt := 1; attempt <= a.cfg.ClassifierMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		reply, _, err := a.llm.Generate(ctx, messages, llms.ReasoningEffortLow)
		if err != nil {
			slog.Warn("effort classification attempt failed",
				"attempt", attempt, "error", err)
			continue
		}

		if effort, ok := scanEffort(reply); ok {
			state.ResearchEffort = effort
			slog.Debug("research effort classified",
				"effort", effort.String(), "attempt", attempt)
			return nil
		}

		slog.Warn("effort classifier returned no usable digit",
			"attempt", attempt, "reply", reply)
	}

	slog.Warn("effort classification exhausted, defaulting to SIMPLE")
	state.ResearchEffort = research.EffortSimple
	return nil
}

// scanEffort finds the first effort digit in the reply.
func scanEffort(reply string) (research.Effort, bool) {
	for _, r := range reply {
		switch r {
		case '0':
			return research.EffortNone, true
		case '1':
			return research.EffortSimple, true
		case '2':
			return research.EffortDeep, true
		}
	}
	return research.EffortNone, false
}
