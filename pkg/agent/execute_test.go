package agent

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/research"
)

func evidenceResult(query research.QueryValue, source, text string) research.QueryResult {
	return research.QueryResult{
		ID:     research.NewID(),
		Query:  query,
		Source: source,
		Result: research.Evidence(text, research.Citation{Source: source}),
	}
}

func TestExecuteQueriesFansOutAndMerges(t *testing.T) {
	vector := &fakeVector{respond: func(queries []research.QueryAndFilters) ([]research.QueryResult, error) {
		var out []research.QueryResult
		for i, q := range queries {
			out = append(out, evidenceResult(research.VectorQuery(q), research.SourceVectorDB,
				fmt.Sprintf("vector text %d", i)))
		}
		return out, nil
	}}
	encyclopedia := &fakeEncyclopedia{respond: func(queries []string) ([]research.QueryResult, error) {
		var out []research.QueryResult
		for i, q := range queries {
			out = append(out, evidenceResult(research.TextQuery(q), research.SourceSEP,
				fmt.Sprintf("sep text %d", i)))
		}
		return out, nil
	}}

	a := newTestAgent(t, &testDeps{vector: vector, encyclopedia: encyclopedia})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.VectorDBQueries = []research.QueryAndFilters{{Query: "one"}, {Query: "two"}}
	state.SEPQueries = []string{"three"}

	require.NoError(t, a.executeQueries(context.Background(), state))

	assert.Len(t, state.QueryResults, 3)
	assert.Len(t, state.AllRawResults, 3)
	assert.Equal(t, 2, state.ResearchIterations)

	// Planned queries are consumed.
	assert.Nil(t, state.VectorDBQueries)
	assert.Nil(t, state.SEPQueries)

	require.Len(t, vector.batches, 1)
	assert.Len(t, vector.batches[0], 2)
	require.Len(t, encyclopedia.batches, 1)
	assert.Equal(t, []string{"three"}, encyclopedia.batches[0])
}

// The evidence a round of queries produces must not depend on which adapter
// finishes first, so both finish orders are forced and compared.
func TestExecuteQueriesCompletionOrderIndependent(t *testing.T) {
	run := func(t *testing.T, vectorFinishesLast bool) (*TurnState, []string) {
		gate := make(chan struct{})

		vector := &fakeVector{respond: func(queries []research.QueryAndFilters) ([]research.QueryResult, error) {
			if vectorFinishesLast {
				<-gate
			} else {
				defer close(gate)
			}
			var out []research.QueryResult
			for i, q := range queries {
				out = append(out, evidenceResult(research.VectorQuery(q), research.SourceVectorDB,
					fmt.Sprintf("vector text %d", i)))
			}
			return out, nil
		}}
		encyclopedia := &fakeEncyclopedia{respond: func(queries []string) ([]research.QueryResult, error) {
			if vectorFinishesLast {
				defer close(gate)
			} else {
				<-gate
			}
			var out []research.QueryResult
			for i, q := range queries {
				out = append(out, evidenceResult(research.TextQuery(q), research.SourceSEP,
					fmt.Sprintf("sep text %d", i)))
			}
			return out, nil
		}}

		a := newTestAgent(t, &testDeps{vector: vector, encyclopedia: encyclopedia})

		state := NewTurnState([]llms.Message{llms.User("q")})
		state.VectorDBQueries = []research.QueryAndFilters{{Query: "one"}, {Query: "two"}}
		state.SEPQueries = []string{"three"}
		require.NoError(t, a.executeQueries(context.Background(), state))

		texts := make([]string, 0, len(state.QueryResults))
		for _, r := range state.QueryResults {
			text, _, ok := r.Result.Evidence()
			require.True(t, ok)
			texts = append(texts, text)
		}
		sort.Strings(texts)
		return state, texts
	}

	vectorLastState, vectorLastTexts := run(t, true)
	sepLastState, sepLastTexts := run(t, false)

	assert.Equal(t, []string{"sep text 0", "vector text 0", "vector text 1"}, vectorLastTexts)
	assert.Equal(t, vectorLastTexts, sepLastTexts)
	assert.Equal(t, vectorLastState.AllRawResults, sepLastState.AllRawResults)
	assert.Equal(t, vectorLastState.ResearchIterations, sepLastState.ResearchIterations)
}

func TestExecuteQueriesDuplicateQuery(t *testing.T) {
	vector := &fakeVector{respond: func(queries []research.QueryAndFilters) ([]research.QueryResult, error) {
		var out []research.QueryResult
		for _, q := range queries {
			out = append(out, evidenceResult(research.VectorQuery(q), research.SourceVectorDB, "fresh text"))
		}
		return out, nil
	}}
	a := newTestAgent(t, &testDeps{vector: vector})

	state := NewTurnState([]llms.Message{llms.User("q")})

	// First iteration ran this exact query already.
	executed := research.QueryAndFilters{Query: "substance", Filters: &research.Filters{Author: "Spinoza"}}
	state.QueryResults = append(state.QueryResults,
		evidenceResult(research.VectorQuery(executed), research.SourceVectorDB, "old text"))
	state.AllRawResults["old text"] = struct{}{}

	// Same query again, plus a genuinely new one.
	state.VectorDBQueries = []research.QueryAndFilters{
		executed,
		{Query: "substance"}, // no filter: a different identity
	}

	require.NoError(t, a.executeQueries(context.Background(), state))

	require.Len(t, state.QueryResults, 3)

	// The repeat got the sentinel without touching the adapter.
	msg, ok := state.QueryResults[1].Result.Notice()
	require.True(t, ok)
	assert.Equal(t, research.SentinelDuplicateQuery, msg)

	// Only the unfiltered variant reached the store.
	require.Len(t, vector.batches, 1)
	require.Len(t, vector.batches[0], 1)
	assert.Nil(t, vector.batches[0][0].Filters)

	// The sentinel never enters the raw index.
	assert.NotContains(t, state.AllRawResults, research.SentinelDuplicateQuery)
}

func TestExecuteQueriesDuplicateResult(t *testing.T) {
	encyclopedia := &fakeEncyclopedia{respond: func(queries []string) ([]research.QueryResult, error) {
		var out []research.QueryResult
		for _, q := range queries {
			out = append(out, evidenceResult(research.TextQuery(q), research.SourceSEP, "same article text"))
		}
		return out, nil
	}}
	a := newTestAgent(t, &testDeps{encyclopedia: encyclopedia})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.AllRawResults["same article text"] = struct{}{}
	state.SEPQueries = []string{"free will"}

	require.NoError(t, a.executeQueries(context.Background(), state))

	require.Len(t, state.QueryResults, 1)
	msg, ok := state.QueryResults[0].Result.Notice()
	require.True(t, ok)
	assert.Equal(t, research.SentinelDuplicateResult, msg)
}

func TestExecuteQueriesAdapterFailureIsTolerated(t *testing.T) {
	vector := &fakeVector{respond: func([]research.QueryAndFilters) ([]research.QueryResult, error) {
		return nil, fmt.Errorf("store unreachable")
	}}
	encyclopedia := &fakeEncyclopedia{respond: func(queries []string) ([]research.QueryResult, error) {
		return []research.QueryResult{
			evidenceResult(research.TextQuery(queries[0]), research.SourceSEP, "sep text"),
		}, nil
	}}
	a := newTestAgent(t, &testDeps{vector: vector, encyclopedia: encyclopedia})

	state := NewTurnState([]llms.Message{llms.User("q")})
	state.VectorDBQueries = []research.QueryAndFilters{{Query: "one"}}
	state.SEPQueries = []string{"two"}

	require.NoError(t, a.executeQueries(context.Background(), state))

	// The failed batch contributed nothing; the good one landed.
	require.Len(t, state.QueryResults, 1)
	assert.Equal(t, research.SourceSEP, state.QueryResults[0].Source)
	assert.Equal(t, 2, state.ResearchIterations)
}

func TestExecuteQueriesNothingPlanned(t *testing.T) {
	vector := &fakeVector{}
	encyclopedia := &fakeEncyclopedia{}
	a := newTestAgent(t, &testDeps{vector: vector, encyclopedia: encyclopedia})

	state := NewTurnState([]llms.Message{llms.User("q")})
	require.NoError(t, a.executeQueries(context.Background(), state))

	assert.Empty(t, state.QueryResults)
	assert.Empty(t, vector.batches)
	assert.Empty(t, encyclopedia.batches)
	assert.Equal(t, 2, state.ResearchIterations)
}
