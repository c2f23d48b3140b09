package sources

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/databases"
	"github.com/cogitoproject/cogito/pkg/fuzzy"
	"github.com/cogitoproject/cogito/pkg/research"
)

type fakeEmbedder struct {
	err   error
	calls [][]string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }

type fakeDatabase struct {
	requests [][]databases.QueryRequest
	respond  func([]databases.QueryRequest) ([][]databases.SearchHit, error)
}

func (f *fakeDatabase) BatchQuery(_ context.Context, requests []databases.QueryRequest) ([][]databases.SearchHit, error) {
	f.requests = append(f.requests, requests)
	if f.respond == nil {
		return make([][]databases.SearchHit, len(requests)), nil
	}
	return f.respond(requests)
}

func (f *fakeDatabase) Close() error { return nil }

type fakeCatalog struct {
	authorSources map[string][]string
}

func (f *fakeCatalog) AuthorSources() map[string][]string { return f.authorSources }

func (f *fakeCatalog) AllAuthors() []string {
	var authors []string
	for author := range f.authorSources {
		authors = append(authors, author)
	}
	return authors
}

func (f *fakeCatalog) AllSources() []string {
	var sources []string
	for _, titles := range f.authorSources {
		sources = append(sources, titles...)
	}
	return sources
}

func (f *fakeCatalog) Close() error { return nil }

func newTestVectorStore(db *fakeDatabase, embedder *fakeEmbedder) *VectorStore {
	storeCfg := &config.VectorStoreConfig{}
	storeCfg.SetDefaults()
	researchCfg := &config.ResearchConfig{}
	researchCfg.SetDefaults()

	catalog := &fakeCatalog{authorSources: map[string][]string{
		"Benedictus de Spinoza": {"Ethics", "Theologico-Political Treatise"},
		"David Hume":            {"A Treatise of Human Nature"},
	}}

	return NewVectorStore(embedder, db, catalog, storeCfg, researchCfg)
}

func gutenbergHit(id, text, author, title, section string) databases.SearchHit {
	return databases.SearchHit{
		ID:      id,
		Content: text,
		Metadata: map[string]interface{}{
			payloadKeyText:    text,
			payloadKeyAuthor:  author,
			payloadKeyTitle:   title,
			payloadKeySection: section,
		},
		Score: 0.9,
	}
}

func TestVectorStoreQuery(t *testing.T) {
	db := &fakeDatabase{respond: func(requests []databases.QueryRequest) ([][]databases.SearchHit, error) {
		return [][]databases.SearchHit{
			{gutenbergHit("p1", "By substance I understand...", "Benedictus de Spinoza", "Ethics", "Part I")},
		}, nil
	}}
	store := newTestVectorStore(db, &fakeEmbedder{})

	results, err := store.Query(context.Background(), []research.QueryAndFilters{
		{Query: "substance monism", Filters: &research.Filters{Author: "Benedictus de Spinoza"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	text, citation, ok := results[0].Result.Evidence()
	require.True(t, ok)
	assert.Equal(t, "By substance I understand...", text)
	assert.Equal(t, research.SourceGutenberg, citation.Source)
	assert.Equal(t, []string{"Benedictus de Spinoza"}, citation.Authors)
	assert.Equal(t, "Ethics", citation.Title)
	assert.Equal(t, "Part I", citation.Section)
	assert.Equal(t, research.SourceVectorDB, results[0].Source)

	// The resolved author reached the store as an exact filter.
	require.Len(t, db.requests, 1)
	assert.Equal(t, "Benedictus de Spinoza", db.requests[0][0].Filter[payloadKeyAuthor])
}

func TestVectorStoreFuzzyAuthorResolution(t *testing.T) {
	db := &fakeDatabase{respond: func(requests []databases.QueryRequest) ([][]databases.SearchHit, error) {
		return make([][]databases.SearchHit, len(requests)), nil
	}}
	store := newTestVectorStore(db, &fakeEmbedder{})

	// Minor misspelling still resolves to the catalog name.
	_, err := store.Query(context.Background(), []research.QueryAndFilters{
		{Query: "causation", Filters: &research.Filters{Author: "david hume"}},
	})
	require.NoError(t, err)
	require.Len(t, db.requests, 1)
	assert.Equal(t, "David Hume", db.requests[0][0].Filter[payloadKeyAuthor])
}

func TestVectorStoreAuthorMiss(t *testing.T) {
	db := &fakeDatabase{}
	store := newTestVectorStore(db, &fakeEmbedder{})

	results, err := store.Query(context.Background(), []research.QueryAndFilters{
		{Query: "forms", Filters: &research.Filters{Author: "Plato"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	msg, ok := results[0].Result.Notice()
	require.True(t, ok)
	assert.Contains(t, msg, "'Plato' not found in author list")
	assert.Contains(t, msg, "This author is not in the database")

	// Nothing was embedded or searched.
	assert.Empty(t, db.requests)
}

func TestVectorStoreTitleScopedToAuthor(t *testing.T) {
	db := &fakeDatabase{}
	store := newTestVectorStore(db, &fakeEmbedder{})

	// "Ethics" belongs to Spinoza, not Hume, so the scoped lookup misses.
	results, err := store.Query(context.Background(), []research.QueryAndFilters{
		{Query: "impressions", Filters: &research.Filters{Author: "David Hume", SourceTitle: "Ethics"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	msg, ok := results[0].Result.Notice()
	require.True(t, ok)
	assert.Contains(t, msg, "'Ethics' not found in source list")
	assert.Contains(t, msg, "either not written by the author 'David Hume' or is not in the database")
	assert.Contains(t, msg, "Best match: 'A Treatise of Human Nature'")
	assert.Empty(t, db.requests)
}

func TestVectorStoreFuzzyThresholdBoundary(t *testing.T) {
	db := &fakeDatabase{}
	embedder := &fakeEmbedder{}
	storeCfg := &config.VectorStoreConfig{}
	storeCfg.SetDefaults()
	researchCfg := &config.ResearchConfig{}
	researchCfg.SetDefaults()

	catalog := &fakeCatalog{authorSources: map[string][]string{"abc": {"abc"}}}
	store := NewVectorStore(embedder, db, catalog, storeCfg, researchCfg)

	// "ab" vs "abc" scores exactly at the threshold; a match must score
	// strictly above it to resolve.
	require.Equal(t, researchCfg.FuzzyMatchThreshold, fuzzy.Ratio("ab", "abc"))

	t.Run("author at threshold misses", func(t *testing.T) {
		results, err := store.Query(context.Background(), []research.QueryAndFilters{
			{Query: "anything", Filters: &research.Filters{Author: "ab"}},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)

		msg, ok := results[0].Result.Notice()
		require.True(t, ok)
		assert.Contains(t, msg, "'ab' not found in author list")
		assert.Contains(t, msg, "Closest match: 'abc'")
		assert.Empty(t, embedder.calls)
		assert.Empty(t, db.requests)
	})

	t.Run("title at threshold misses", func(t *testing.T) {
		results, err := store.Query(context.Background(), []research.QueryAndFilters{
			{Query: "anything", Filters: &research.Filters{Author: "abc", SourceTitle: "ab"}},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)

		msg, ok := results[0].Result.Notice()
		require.True(t, ok)
		assert.Contains(t, msg, "'ab' not found in source list")
		assert.Contains(t, msg, "Best match: 'abc'")
		assert.Empty(t, embedder.calls)
		assert.Empty(t, db.requests)
	})
}

func TestVectorStoreNoHits(t *testing.T) {
	db := &fakeDatabase{}
	store := newTestVectorStore(db, &fakeEmbedder{})

	results, err := store.Query(context.Background(), []research.QueryAndFilters{
		{Query: "an unanswerable query"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Result.IsEmpty())
}

func TestVectorStoreBatchPointDedup(t *testing.T) {
	hit := gutenbergHit("same-point", "shared chunk", "David Hume", "A Treatise of Human Nature", "Book I")
	db := &fakeDatabase{respond: func(requests []databases.QueryRequest) ([][]databases.SearchHit, error) {
		return [][]databases.SearchHit{{hit}, {hit}}, nil
	}}
	store := newTestVectorStore(db, &fakeEmbedder{})

	results, err := store.Query(context.Background(), []research.QueryAndFilters{
		{Query: "custom and habit"},
		{Query: "constant conjunction"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Result.IsEvidence())
	msg, ok := results[1].Result.Notice()
	require.True(t, ok)
	assert.Equal(t, research.SentinelDuplicateResult, msg)
}

func TestVectorStoreEmbedFailure(t *testing.T) {
	store := newTestVectorStore(&fakeDatabase{}, &fakeEmbedder{err: fmt.Errorf("embeddings down")})

	_, err := store.Query(context.Background(), []research.QueryAndFilters{{Query: "anything"}})
	assert.Error(t, err)
}

func TestVectorStoreMixedResolutionAndSearch(t *testing.T) {
	db := &fakeDatabase{respond: func(requests []databases.QueryRequest) ([][]databases.SearchHit, error) {
		require.Len(t, requests, 1)
		return [][]databases.SearchHit{
			{gutenbergHit("p9", "Of the origin of our ideas", "David Hume", "A Treatise of Human Nature", "Book I")},
		}, nil
	}}
	embedder := &fakeEmbedder{}
	store := newTestVectorStore(db, embedder)

	results, err := store.Query(context.Background(), []research.QueryAndFilters{
		{Query: "ideas and impressions", Filters: &research.Filters{Author: "David Hume"}},
		{Query: "forms", Filters: &research.Filters{Author: "Aristotle"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The miss is first (resolution happens before the search), then the hit.
	_, ok := results[0].Result.Notice()
	assert.True(t, ok)
	assert.True(t, results[1].Result.IsEvidence())

	// Only the resolvable query was embedded.
	require.Len(t, embedder.calls, 1)
	assert.Equal(t, []string{"ideas and impressions"}, embedder.calls[0])
}
