package agent

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cogitoproject/cogito/pkg/observability"
	"github.com/cogitoproject/cogito/pkg/research"
)

// executeQueries runs the iteration's planned queries: drop queries already
// executed this turn, fan out the rest to the two source adapters, and merge
// results back into the evidence log with result-level dedup. Adapter
// failures cost only their own batch.
func (a *Agent) executeQueries(ctx context.Context, state *TurnState) error {
	a.status("Searching sources")

	seen := executedQueryKeys(state.QueryResults)

	var vectorBatch []research.QueryAndFilters
	for _, q := range state.VectorDBQueries {
		key := research.VectorQuery(q).Key()
		if _, dup := seen[key]; dup {
			state.QueryResults = append(state.QueryResults, research.QueryResult{
				ID:     research.NewID(),
				Query:  research.VectorQuery(q),
				Source: research.SourceVectorDB,
				Result: research.Notice(research.SentinelDuplicateQuery),
			})
			observability.RecordDuplicate("query")
			continue
		}
		seen[key] = struct{}{}
		vectorBatch = append(vectorBatch, q)
	}

	var sepBatch []string
	for _, q := range state.SEPQueries {
		key := research.TextQuery(q).Key()
		if _, dup := seen[key]; dup {
			state.QueryResults = append(state.QueryResults, research.QueryResult{
				ID:     research.NewID(),
				Query:  research.TextQuery(q),
				Source: research.SourceSEP,
				Result: research.Notice(research.SentinelDuplicateQuery),
			})
			observability.RecordDuplicate("query")
			continue
		}
		seen[key] = struct{}{}
		sepBatch = append(sepBatch, q)
	}

	// Fan out per source. Adapters swallow their own sub-task failures;
	// an adapter-level error drops only that batch. Batches land in
	// completion order.
	batches := make(chan []research.QueryResult, 2)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.FanOutWorkers)

	if len(vectorBatch) > 0 {
		g.Go(func() error {
			results, err := a.vector.Query(gctx, vectorBatch)
			if err != nil {
				slog.Warn("vector store batch failed", "error", err,
					"queries", len(vectorBatch))
				return nil
			}
			batches <- results
			return nil
		})
	}

	if len(sepBatch) > 0 {
		g.Go(func() error {
			results, err := a.encyclopedia.Query(gctx, sepBatch, state.Conversation)
			if err != nil {
				slog.Warn("encyclopedia batch failed", "error", err,
					"queries", len(sepBatch))
				return nil
			}
			batches <- results
			return nil
		})
	}

	// Tasks never return errors, so Wait only propagates a panic-free nil.
	_ = g.Wait()
	close(batches)

	for batch := range batches {
		for _, result := range batch {
			state.QueryResults = append(state.QueryResults, a.dedupResult(state, result))
		}
	}

	observability.RecordQueries(research.SourceVectorDB, len(vectorBatch))
	observability.RecordQueries(research.SourceSEP, len(sepBatch))

	state.VectorDBQueries = nil
	state.SEPQueries = nil
	state.ResearchIterations++

	return ctx.Err()
}

// dedupResult applies result-level dedup against the turn's raw index. A
// payload whose raw text was already seen is replaced with the duplicate
// sentinel; fresh payloads register their key.
func (a *Agent) dedupResult(state *TurnState, result research.QueryResult) research.QueryResult {
	key, ok := result.Result.RawKey()
	if !ok {
		return result
	}

	if _, dup := state.AllRawResults[key]; dup {
		result.Result = research.Notice(research.SentinelDuplicateResult)
		observability.RecordDuplicate("result")
		return result
	}

	state.AllRawResults[key] = struct{}{}
	return result
}

// executedQueryKeys rebuilds the set of query identities already run this
// turn from the evidence log.
func executedQueryKeys(results []research.QueryResult) map[string]struct{} {
	keys := make(map[string]struct{}, len(results))
	for _, r := range results {
		keys[r.Query.Key()] = struct{}{}
	}
	return keys
}
