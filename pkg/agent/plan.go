package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/research"
)

// Per-iteration query caps the planner is instructed to respect. Violations
// are logged but not truncated: an eager planner wastes budget, it doesn't
// break correctness.
const (
	maxVectorQueriesPerIteration = 3
	maxSEPQueriesPerIteration    = 1
)

// plannerReply mirrors the JSON protocol. Every field is nullable; all four
// planning fields null at once is the stop signal. ids_to_remove is
// orthogonal to stopping and applies either way.
type plannerReply struct {
	LongTermPlan  *string                    `json:"long_term_plan"`
	ShortTermPlan *string                    `json:"short_term_plan"`
	VectorQueries []research.QueryAndFilters `json:"vector_db_queries"`
	SEPQueries    []string                   `json:"stanford_encyclopedia_queries"`
	IDsToRemove   []string                   `json:"ids_to_remove"`
}

func (r *plannerReply) wantsStop() bool {
	return r.LongTermPlan == nil && r.ShortTermPlan == nil &&
		r.VectorQueries == nil && r.SEPQueries == nil
}

// planResearch runs one planner iteration: enforce the iteration and context
// budgets, ask the model for the next move, and apply it to the state. Parse
// failures retry up to the configured budget; exhaustion ends research with
// whatever evidence exists, discarding any pruning from the garbled replies.
func (a *Agent) planResearch(ctx context.Context, state *TurnState) error {
	maxIterations := a.cfg.MaxIterationsSimple
	if state.ResearchEffort == research.EffortDeep {
		maxIterations = a.cfg.MaxIterationsDeep
	}

	if state.ResearchIterations > maxIterations {
		slog.Info("research iteration budget reached",
			"effort", state.ResearchEffort.String(), "iterations", maxIterations)
		state.Completed = true
		return nil
	}

	prompt := plannerPrompt(state, maxIterations)
	messages := make([]llms.Message, 0, len(state.Conversation)+1)
	messages = append(messages, llms.System(prompt))
	messages = append(messages, state.Conversation...)

	if used := a.tokens.CountMessages(toCountable(messages)); used > a.cfg.ContextTokenCap {
		slog.Warn("context token cap reached, ending research",
			"tokens", used, "cap", a.cfg.ContextTokenCap)
		state.Completed = true
		return nil
	}

	for attempt := 1; attempt <= a.cfg.PlannerMaxParseAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, _, err := a.llm.Generate(ctx, messages, llms.ReasoningEffortMedium)
		if err != nil {
			slog.Warn("planner attempt failed", "attempt", attempt, "error", err)
			continue
		}

		reply, err := parsePlannerReply(raw)
		if err != nil {
			slog.Warn("planner reply did not parse",
				"attempt", attempt, "error", err)
			continue
		}

		a.applyPruning(state, reply.IDsToRemove)

		if reply.wantsStop() {
			slog.Debug("planner ended research",
				"iteration", state.ResearchIterations)
			state.Completed = true
			return nil
		}

		if reply.LongTermPlan != nil {
			state.LongTermPlan = *reply.LongTermPlan
		}
		if reply.ShortTermPlan != nil {
			state.ShortTermPlan = *reply.ShortTermPlan
			a.status(state.ShortTermPlan)
		}

		if len(reply.VectorQueries) > maxVectorQueriesPerIteration {
			slog.Warn("planner exceeded vector query cap",
				"planned", len(reply.VectorQueries), "cap", maxVectorQueriesPerIteration)
		}
		if len(reply.SEPQueries) > maxSEPQueriesPerIteration {
			slog.Warn("planner exceeded encyclopedia query cap",
				"planned", len(reply.SEPQueries), "cap", maxSEPQueriesPerIteration)
		}

		state.VectorDBQueries = reply.VectorQueries
		state.SEPQueries = reply.SEPQueries

		// A plan with no queries at all executes nothing; treat it as a
		// stop rather than looping on empty iterations.
		if len(state.VectorDBQueries) == 0 && len(state.SEPQueries) == 0 {
			slog.Debug("planner produced no queries, ending research")
			state.Completed = true
		}

		return nil
	}

	slog.Warn("planner parse attempts exhausted, ending research",
		"attempts", a.cfg.PlannerMaxParseAttempts)
	state.Completed = true
	return nil
}

// applyPruning replaces discarded results with the pruning sentinel. The raw
// dedup index is deliberately untouched so pruned text cannot be re-retrieved
// as fresh evidence.
func (a *Agent) applyPruning(state *TurnState, ids []string) {
	if len(ids) == 0 {
		return
	}

	pruned := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		pruned[id] = struct{}{}
	}

	for i := range state.QueryResults {
		if _, ok := pruned[state.QueryResults[i].ID]; ok {
			state.QueryResults[i].Result = research.Notice(research.SentinelPruned)
			delete(pruned, state.QueryResults[i].ID)
		}
	}

	for id := range pruned {
		slog.Warn("planner pruned unknown result id", "id", id)
	}
}

// parsePlannerReply extracts the JSON object from a model reply that may be
// wrapped in code fences or surrounded by prose.
func parsePlannerReply(raw string) (*plannerReply, error) {
	candidate := extractJSONObject(raw)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object found in reply")
	}

	var reply plannerReply
	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		return nil, fmt.Errorf("planner JSON: %w", err)
	}
	return &reply, nil
}

// extractJSONObject strips markdown fences and returns the outermost brace
// span, or "" when there is none.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
