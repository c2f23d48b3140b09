// Package sources implements the two evidence adapters the agent fans out
// to: the Project Gutenberg vector store and the Stanford Encyclopedia of
// Philosophy. Both recover per-query failures into diagnostic results so one
// bad query never sinks an iteration.
package sources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/databases"
	"github.com/cogitoproject/cogito/pkg/embedders"
	"github.com/cogitoproject/cogito/pkg/fuzzy"
	"github.com/cogitoproject/cogito/pkg/metadata"
	"github.com/cogitoproject/cogito/pkg/research"
)

// Payload keys of the Gutenberg collection.
const (
	payloadKeyText    = "text"
	payloadKeyAuthor  = "author"
	payloadKeyTitle   = "title"
	payloadKeySection = "section"
)

// VectorStore retrieves source chunks from the Gutenberg collection. Planner
// filters are resolved against the metadata catalog by fuzzy match before
// querying; a name that resolves nowhere becomes a diagnostic result the
// planner can react to.
type VectorStore struct {
	embedder  embedders.Embedder
	db        databases.VectorDatabase
	catalog   metadata.Catalog
	limit     int
	threshold int
}

func NewVectorStore(embedder embedders.Embedder, db databases.VectorDatabase, catalog metadata.Catalog,
	storeCfg *config.VectorStoreConfig, researchCfg *config.ResearchConfig) *VectorStore {
	return &VectorStore{
		embedder:  embedder,
		db:        db,
		catalog:   catalog,
		limit:     storeCfg.Limit,
		threshold: researchCfg.FuzzyMatchThreshold,
	}
}

// resolvedQuery pairs a planned query with its catalog-resolved filter.
type resolvedQuery struct {
	planned research.QueryAndFilters
	filter  map[string]string
}

// Query runs the iteration's vector queries in one embed round trip and one
// batched search. Queries whose filters don't resolve are answered with the
// diagnostic instead of being searched.
func (s *VectorStore) Query(ctx context.Context, queries []research.QueryAndFilters) ([]research.QueryResult, error) {
	var results []research.QueryResult
	var runnable []resolvedQuery

	for _, q := range queries {
		filter, diagnostic := s.resolveFilters(q.Filters)
		if diagnostic != "" {
			results = append(results, research.QueryResult{
				ID:     research.NewID(),
				Query:  research.VectorQuery(q),
				Source: research.SourceVectorDB,
				Result: research.Notice(diagnostic),
			})
			continue
		}
		runnable = append(runnable, resolvedQuery{planned: q, filter: filter})
	}

	if len(runnable) == 0 {
		return results, nil
	}

	texts := make([]string, len(runnable))
	for i, rq := range runnable {
		texts[i] = rq.planned.Query
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed vector queries: %w", err)
	}
	if len(vectors) != len(runnable) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d queries", len(vectors), len(runnable))
	}

	requests := make([]databases.QueryRequest, len(runnable))
	for i, rq := range runnable {
		requests[i] = databases.QueryRequest{
			Vector: vectors[i],
			Limit:  s.limit,
			Filter: rq.filter,
		}
	}

	batches, err := s.db.BatchQuery(ctx, requests)
	if err != nil {
		return nil, fmt.Errorf("vector store batch search failed: %w", err)
	}

	// The same chunk can satisfy two queries in one batch; only the first
	// occurrence carries the text.
	seenPoints := make(map[string]struct{})

	for i, hits := range batches {
		planned := runnable[i].planned
		if len(hits) == 0 {
			results = append(results, research.QueryResult{
				ID:     research.NewID(),
				Query:  research.VectorQuery(planned),
				Source: research.SourceVectorDB,
			})
			continue
		}

		for _, hit := range hits {
			result := research.QueryResult{
				ID:     research.NewID(),
				Query:  research.VectorQuery(planned),
				Source: research.SourceVectorDB,
			}

			if _, dup := seenPoints[hit.ID]; dup {
				result.Result = research.Notice(research.SentinelDuplicateResult)
			} else {
				seenPoints[hit.ID] = struct{}{}
				result.Result = research.Evidence(hit.Content, citationFromHit(hit))
			}

			results = append(results, result)
		}
	}

	slog.Debug("vector store queries executed",
		"planned", len(queries), "searched", len(runnable), "results", len(results))

	return results, nil
}

// resolveFilters maps planner filter strings to exact catalog values. A
// best match scoring at or below the fuzzy threshold is a miss and returns
// the diagnostic the planner will see instead of results.
func (s *VectorStore) resolveFilters(f *research.Filters) (map[string]string, string) {
	if f == nil || (f.Author == "" && f.SourceTitle == "") {
		return nil, ""
	}

	filter := make(map[string]string, 2)
	titleCandidates := s.catalog.AllSources()

	if f.Author != "" {
		match, ok := fuzzy.ExtractOne(f.Author, s.catalog.AllAuthors())
		if !ok || match.Score <= s.threshold {
			return nil, authorMissMessage(f.Author, match)
		}
		filter[payloadKeyAuthor] = match.Value
		// Scope title resolution to this author's sources.
		titleCandidates = s.catalog.AuthorSources()[match.Value]
	}

	if f.SourceTitle != "" {
		match, ok := fuzzy.ExtractOne(f.SourceTitle, titleCandidates)
		if !ok || match.Score <= s.threshold {
			return nil, titleMissMessage(f.SourceTitle, filter[payloadKeyAuthor], match)
		}
		filter[payloadKeyTitle] = match.Value
	}

	return filter, ""
}

func authorMissMessage(author string, best fuzzy.Match) string {
	if best.Value == "" {
		return fmt.Sprintf("'%s' not found in author list. This author is not in the database.", author)
	}
	return fmt.Sprintf("'%s' not found in author list. This author is not in the database. Closest match: '%s'.",
		author, best.Value)
}

func titleMissMessage(title, author string, best fuzzy.Match) string {
	reason := "This source is not in the database."
	if author != "" {
		reason = fmt.Sprintf("This source is either not written by the author '%s' or is not in the database.", author)
	}
	if best.Value == "" {
		return fmt.Sprintf("'%s' not found in source list. %s", title, reason)
	}
	return fmt.Sprintf("'%s' not found in source list. %s Best match: '%s'.", title, reason, best.Value)
}

func citationFromHit(hit databases.SearchHit) research.Citation {
	citation := research.Citation{
		Source:  research.SourceGutenberg,
		Title:   stringField(hit.Metadata, payloadKeyTitle),
		Section: stringField(hit.Metadata, payloadKeySection),
	}
	if author := stringField(hit.Metadata, payloadKeyAuthor); author != "" {
		citation.Authors = []string{author}
	}
	return citation
}

func stringField(metadata map[string]interface{}, key string) string {
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
