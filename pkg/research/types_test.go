package research

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadArms(t *testing.T) {
	empty := Payload{}
	assert.True(t, empty.IsEmpty())
	_, ok := empty.Notice()
	assert.False(t, ok)
	_, ok = empty.RawKey()
	assert.False(t, ok)

	evidence := Evidence("the chunk text", Citation{Source: SourceGutenberg, Title: "Ethics"})
	assert.True(t, evidence.IsEvidence())
	text, citation, ok := evidence.Evidence()
	require.True(t, ok)
	assert.Equal(t, "the chunk text", text)
	assert.Equal(t, "Ethics", citation.Title)
	key, ok := evidence.RawKey()
	require.True(t, ok)
	assert.Equal(t, "the chunk text", key)

	notice := Notice(SentinelDuplicateQuery)
	assert.True(t, notice.IsNotice())
	key, ok = notice.RawKey()
	require.True(t, ok)
	assert.Equal(t, SentinelDuplicateQuery, key)
}

func TestPayloadJSONRoundTrip(t *testing.T) {
	original := Evidence("text", Citation{
		Source:  SourceGutenberg,
		Authors: []string{"Baruch Spinoza"},
		Title:   "Ethics",
		Section: "Part I",
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text":"text"`)

	var decoded Payload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)

	data, err = json.Marshal(Notice("diagnostic"))
	require.NoError(t, err)
	assert.Equal(t, `"diagnostic"`, string(data))

	var asNotice Payload
	require.NoError(t, json.Unmarshal(data, &asNotice))
	msg, ok := asNotice.Notice()
	require.True(t, ok)
	assert.Equal(t, "diagnostic", msg)

	data, err = json.Marshal(Payload{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestQueryValueKey(t *testing.T) {
	text := TextQuery("free will")
	assert.Equal(t, "text|free will", text.Key())

	plain := VectorQuery(QueryAndFilters{Query: "substance"})
	filtered := VectorQuery(QueryAndFilters{
		Query:   "substance",
		Filters: &Filters{Author: "Spinoza"},
	})
	titled := VectorQuery(QueryAndFilters{
		Query:   "substance",
		Filters: &Filters{Author: "Spinoza", SourceTitle: "Ethics"},
	})

	// Same query string under different filters is a different identity.
	assert.NotEqual(t, plain.Key(), filtered.Key())
	assert.NotEqual(t, filtered.Key(), titled.Key())
	assert.NotEqual(t, text.Key(), plain.Key())

	// Identity is stable.
	assert.Equal(t, filtered.Key(), VectorQuery(QueryAndFilters{
		Query:   "substance",
		Filters: &Filters{Author: "Spinoza"},
	}).Key())
}

func TestQueryValueJSON(t *testing.T) {
	data, err := json.Marshal(TextQuery("free will"))
	require.NoError(t, err)
	assert.Equal(t, `"free will"`, string(data))

	var decoded QueryValue
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "free will", decoded.Text)

	vec := VectorQuery(QueryAndFilters{Query: "monads", Filters: &Filters{Author: "Leibniz"}})
	data, err = json.Marshal(vec)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Vector)
	assert.Equal(t, "monads", decoded.Vector.Query)
	assert.Equal(t, "Leibniz", decoded.Vector.Filters.Author)
}

func TestRenderResults(t *testing.T) {
	assert.Empty(t, RenderResults(nil))

	results := []QueryResult{
		{
			ID:     "a",
			Query:  TextQuery("free will"),
			Source: SourceSEP,
			Result: Notice(SentinelPruned),
		},
		{
			ID:     "b",
			Query:  VectorQuery(QueryAndFilters{Query: "substance"}),
			Source: SourceVectorDB,
			Result: Evidence("chunk", Citation{Source: SourceGutenberg}),
		},
	}

	rendered := RenderResults(results)
	assert.Contains(t, rendered, SentinelPruned)
	assert.Contains(t, rendered, `"chunk"`)
	assert.Contains(t, rendered, "```")

	// Deterministic for the same log.
	assert.Equal(t, rendered, RenderResults(results))
}
