package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/utils"
)

// prepareConversation compresses oversized history before the turn proper.
// When the encoded conversation exceeds the history token limit, everything
// before the latest user message is summarized into a single system message.
// Summarization failures are tolerated: the turn continues on the full
// history rather than failing.
func (a *Agent) prepareConversation(ctx context.Context, state *TurnState) error {
	total := a.tokens.CountMessages(toCountable(state.Conversation))
	if total <= a.cfg.HistoryTokenLimit {
		return nil
	}

	lastUser := lastUserIndex(state.Conversation)
	if lastUser <= 0 {
		// Nothing before the latest message to compress.
		return nil
	}

	a.status("Summarizing conversation history")

	history := state.Conversation[:lastUser]
	messages := make([]llms.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llms.User(summarizerPrompt))

	summary, _, err := a.llm.Generate(ctx, messages, llms.ReasoningEffortLow)
	if err != nil || strings.TrimSpace(summary) == "" {
		slog.Warn("history summarization failed, continuing with full history",
			"error", err, "tokens", total)
		return nil
	}

	state.Conversation = []llms.Message{
		llms.System(fmt.Sprintf("Previous messages summary: %s", summary)),
		state.Conversation[lastUser],
	}

	slog.Debug("conversation history summarized",
		"original_tokens", total,
		"summarized_tokens", a.tokens.CountMessages(toCountable(state.Conversation)))

	return nil
}

// lastUserIndex returns the index of the most recent user message, or the
// last index when no user message exists.
func lastUserIndex(conversation []llms.Message) int {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == llms.RoleUser {
			return i
		}
	}
	return len(conversation) - 1
}

func toCountable(conversation []llms.Message) []utils.Message {
	out := make([]utils.Message, len(conversation))
	for i, msg := range conversation {
		out[i] = utils.Message{Role: string(msg.Role), Content: msg.Content}
	}
	return out
}
