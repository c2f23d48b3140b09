package agent

import (
	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/research"
)

// TurnState is the mutable record threaded through the graph. It is created
// at turn entry, mutated only by the node currently executing, and discarded
// at turn end.
type TurnState struct {
	// Conversation for this turn, possibly compressed by PrepareConversation.
	Conversation []llms.Message

	ResearchEffort research.Effort

	// Free-text plans carried between planner iterations. The short-term
	// plan doubles as the UI status label.
	LongTermPlan  string
	ShortTermPlan string

	// Planned queries for the next iteration; nil means none.
	VectorDBQueries []research.QueryAndFilters
	SEPQueries      []string

	// ResearchIterations is 1-indexed: the first planner call sees 1.
	ResearchIterations int

	// Completed is set once the planner elects to stop (or a budget runs
	// out); no further query execution happens after that.
	Completed bool

	// QueryResults is the evidence log, in arrival order.
	QueryResults []research.QueryResult

	// AllRawResults indexes raw result texts already seen, for dedup.
	// Pruning never removes keys from here, so re-retrieved text is
	// still recognized as a duplicate.
	AllRawResults map[string]struct{}

	// Response is the final assistant text, set only by Compose.
	Response string
}

// NewTurnState initializes every field to its default.
func NewTurnState(conversation []llms.Message) *TurnState {
	return &TurnState{
		Conversation:       conversation,
		ResearchEffort:     research.EffortNone,
		ResearchIterations: 1,
		QueryResults:       []research.QueryResult{},
		AllRawResults:      make(map[string]struct{}),
	}
}

// LastUserMessage returns the content of the most recent user message, or
// the last message of any role when no user message exists.
func (s *TurnState) LastUserMessage() string {
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if s.Conversation[i].Role == llms.RoleUser {
			return s.Conversation[i].Content
		}
	}
	if len(s.Conversation) > 0 {
		return s.Conversation[len(s.Conversation)-1].Content
	}
	return ""
}
