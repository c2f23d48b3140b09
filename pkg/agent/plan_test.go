package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/research"
)

func TestParsePlannerReply(t *testing.T) {
	t.Run("bare json", func(t *testing.T) {
		reply, err := parsePlannerReply(`{"long_term_plan":"p","short_term_plan":"s",` +
			`"vector_db_queries":[{"query":"q"}],"stanford_encyclopedia_queries":["e"],"ids_to_remove":null}`)
		require.NoError(t, err)
		assert.Equal(t, "p", *reply.LongTermPlan)
		require.Len(t, reply.VectorQueries, 1)
		assert.Equal(t, "q", reply.VectorQueries[0].Query)
		assert.Equal(t, []string{"e"}, reply.SEPQueries)
		assert.False(t, reply.wantsStop())
	})

	t.Run("fenced json", func(t *testing.T) {
		reply, err := parsePlannerReply("```json\n" + stopPlan + "\n```")
		require.NoError(t, err)
		assert.True(t, reply.wantsStop())
	})

	t.Run("json surrounded by prose", func(t *testing.T) {
		reply, err := parsePlannerReply("Here is my plan:\n" + stopPlan + "\nDone.")
		require.NoError(t, err)
		assert.True(t, reply.wantsStop())
	})

	t.Run("no json", func(t *testing.T) {
		_, err := parsePlannerReply("I think we should search for Kant.")
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parsePlannerReply(`{"long_term_plan": }`)
		assert.Error(t, err)
	})

	t.Run("stop with pruning is still a stop", func(t *testing.T) {
		reply, err := parsePlannerReply(`{"long_term_plan":null,"short_term_plan":null,` +
			`"vector_db_queries":null,"stanford_encyclopedia_queries":null,"ids_to_remove":["x"]}`)
		require.NoError(t, err)
		assert.True(t, reply.wantsStop())
		assert.Equal(t, []string{"x"}, reply.IDsToRemove)
	})
}

func TestPlanResearchAppliesPlan(t *testing.T) {
	plan := `{"long_term_plan":"trace the argument","short_term_plan":"locate primary text",` +
		`"vector_db_queries":[{"query":"categorical imperative","filters":{"author":"Kant"}}],` +
		`"stanford_encyclopedia_queries":["deontology"],"ids_to_remove":null}`

	llm := &fakeLLM{queue: []scriptedReply{{text: plan}}}
	a := newTestAgent(t, &testDeps{llm: llm})

	state := NewTurnState([]llms.Message{llms.User("explain the categorical imperative")})
	state.ResearchEffort = research.EffortSimple

	require.NoError(t, a.planResearch(context.Background(), state))

	assert.False(t, state.Completed)
	assert.Equal(t, "trace the argument", state.LongTermPlan)
	assert.Equal(t, "locate primary text", state.ShortTermPlan)
	require.Len(t, state.VectorDBQueries, 1)
	assert.Equal(t, "Kant", state.VectorDBQueries[0].Filters.Author)
	assert.Equal(t, []string{"deontology"}, state.SEPQueries)
}

func TestPlanResearchStop(t *testing.T) {
	llm := &fakeLLM{queue: []scriptedReply{{text: stopPlan}}}
	a := newTestAgent(t, &testDeps{llm: llm})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchEffort = research.EffortSimple
	state.LongTermPlan = "existing plan"

	require.NoError(t, a.planResearch(context.Background(), state))
	assert.True(t, state.Completed)
	// A stop leaves the carried plans alone.
	assert.Equal(t, "existing plan", state.LongTermPlan)
}

func TestPlanResearchPruning(t *testing.T) {
	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchEffort = research.EffortSimple
	state.QueryResults = []research.QueryResult{
		{
			ID:     "keep",
			Query:  research.TextQuery("a"),
			Source: research.SourceSEP,
			Result: research.Evidence("text a", research.Citation{}),
		},
		{
			ID:     "discard",
			Query:  research.TextQuery("b"),
			Source: research.SourceSEP,
			Result: research.Evidence("text b", research.Citation{}),
		},
	}
	state.AllRawResults["text a"] = struct{}{}
	state.AllRawResults["text b"] = struct{}{}

	prune := `{"long_term_plan":null,"short_term_plan":null,"vector_db_queries":null,` +
		`"stanford_encyclopedia_queries":null,"ids_to_remove":["discard","unknown-id"]}`
	llm := &fakeLLM{queue: []scriptedReply{{text: prune}}}
	a := newTestAgent(t, &testDeps{llm: llm})

	require.NoError(t, a.planResearch(context.Background(), state))
	assert.True(t, state.Completed)

	// Pruned entry is replaced by the sentinel, the other is untouched.
	msg, ok := state.QueryResults[1].Result.Notice()
	require.True(t, ok)
	assert.Equal(t, research.SentinelPruned, msg)
	assert.True(t, state.QueryResults[0].Result.IsEvidence())

	// The raw dedup index keeps both keys so pruned text can't come back.
	assert.Contains(t, state.AllRawResults, "text b")
}

func TestPlanResearchParseExhaustion(t *testing.T) {
	llm := &fakeLLM{repeat: "not json at all"}
	cfg := &config.ResearchConfig{}
	cfg.SetDefaults()
	a := newTestAgent(t, &testDeps{llm: llm, cfg: cfg})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchEffort = research.EffortSimple
	state.QueryResults = []research.QueryResult{{
		ID:     "r1",
		Query:  research.TextQuery("a"),
		Source: research.SourceSEP,
		Result: research.Evidence("text", research.Citation{}),
	}}

	require.NoError(t, a.planResearch(context.Background(), state))

	assert.True(t, state.Completed)
	assert.Equal(t, cfg.PlannerMaxParseAttempts, llm.callCount())
	// No pruning was applied from the garbled replies.
	assert.True(t, state.QueryResults[0].Result.IsEvidence())
}

func TestPlanResearchIterationBudget(t *testing.T) {
	llm := &fakeLLM{}
	cfg := &config.ResearchConfig{}
	cfg.SetDefaults()
	a := newTestAgent(t, &testDeps{llm: llm, cfg: cfg})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchEffort = research.EffortSimple
	state.ResearchIterations = cfg.MaxIterationsSimple + 1

	require.NoError(t, a.planResearch(context.Background(), state))
	assert.True(t, state.Completed)
	assert.Equal(t, 0, llm.callCount())
}

func TestPlanResearchDeepBudgetIsHigher(t *testing.T) {
	llm := &fakeLLM{queue: []scriptedReply{{text: stopPlan}}}
	cfg := &config.ResearchConfig{}
	cfg.SetDefaults()
	a := newTestAgent(t, &testDeps{llm: llm, cfg: cfg})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchEffort = research.EffortDeep
	state.ResearchIterations = cfg.MaxIterationsSimple + 1

	// Within the DEEP budget the planner is still consulted.
	require.NoError(t, a.planResearch(context.Background(), state))
	assert.Equal(t, 1, llm.callCount())
}

func TestPlanResearchContextCap(t *testing.T) {
	llm := &fakeLLM{}
	cfg := &config.ResearchConfig{}
	cfg.SetDefaults()
	// Every message costs more than the whole cap.
	a := newTestAgent(t, &testDeps{llm: llm, cfg: cfg, tokens: &fakeTokens{perMessage: cfg.ContextTokenCap + 1}})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchEffort = research.EffortSimple

	require.NoError(t, a.planResearch(context.Background(), state))
	assert.True(t, state.Completed)
	assert.Equal(t, 0, llm.callCount())
}

func TestPlanResearchEmptyPlanStops(t *testing.T) {
	plan := `{"long_term_plan":"p","short_term_plan":"s",` +
		`"vector_db_queries":[],"stanford_encyclopedia_queries":[],"ids_to_remove":null}`
	llm := &fakeLLM{queue: []scriptedReply{{text: plan}}}
	a := newTestAgent(t, &testDeps{llm: llm})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchEffort = research.EffortSimple

	require.NoError(t, a.planResearch(context.Background(), state))
	assert.True(t, state.Completed)
}

func TestPlannerPromptContents(t *testing.T) {
	state := NewTurnState([]llms.Message{llms.User("q")})
	state.ResearchIterations = 2
	state.LongTermPlan = "the long game"
	state.QueryResults = []research.QueryResult{{
		ID:     "r1",
		Query:  research.TextQuery("free will"),
		Source: research.SourceSEP,
		Result: research.Notice("no results"),
	}}

	prompt := plannerPrompt(state, 4)
	assert.Contains(t, prompt, "Iteration 2 of at most 4")
	assert.Contains(t, prompt, "the long game")
	assert.Contains(t, prompt, "free will")
	assert.Contains(t, prompt, "ids_to_remove")
	assert.Contains(t, prompt, "title:Descartes")
}
