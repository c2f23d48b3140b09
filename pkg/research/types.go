// Package research defines the evidence model shared by the orchestration
// nodes and the source adapters: planned queries, citations, and the tagged
// result payload that the dedup and pruning logic discriminate on.
package research

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Effort is the research effort tier assigned to a turn.
type Effort int

const (
	EffortNone Effort = iota
	EffortSimple
	EffortDeep
)

func (e Effort) String() string {
	switch e {
	case EffortNone:
		return "NONE"
	case EffortSimple:
		return "SIMPLE"
	case EffortDeep:
		return "DEEP"
	default:
		return fmt.Sprintf("Effort(%d)", int(e))
	}
}

// Source labels used across the evidence log.
const (
	SourceVectorDB         = "Project Gutenberg Vector DB"
	SourceGutenberg        = "Project Gutenberg"
	SourceSEP              = "SEP"
	SourceSEPFull          = "Stanford Encyclopedia of Philosophy"
)

// Sentinel payloads. The planner sees these verbatim and adapts.
const (
	SentinelDuplicateQuery  = "[Duplicate Query Omitted, Already Retrieved In Previous Queries]"
	SentinelDuplicateResult = "[Duplicate Result Omitted, Already Retrieved In Previous Queries]"
	SentinelPruned          = "[Removed from future consideration by research planner]"
)

// Filters restricts a vector query by author and/or source title. Either,
// both, or neither may be set; empty means unset.
type Filters struct {
	Author      string `json:"author,omitempty"`
	SourceTitle string `json:"source_title,omitempty"`
}

// QueryAndFilters is one planned vector-store query.
type QueryAndFilters struct {
	Query   string   `json:"query"`
	Filters *Filters `json:"filters,omitempty"`
}

// Citation describes the provenance of one retrieved chunk. Published and
// URL are set for encyclopedia articles only.
type Citation struct {
	Source    string   `json:"source"`
	Authors   []string `json:"authors"`
	Title     string   `json:"title"`
	Section   string   `json:"section"`
	Published string   `json:"published,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// payloadKind discriminates the three arms of a result payload.
type payloadKind int

const (
	payloadEmpty payloadKind = iota
	payloadEvidence
	payloadNotice
)

// Payload is the result of one query: either a retrieved (text, citation)
// pair, a notice string (adapter diagnostic or orchestrator sentinel), or
// nothing.
type Payload struct {
	kind     payloadKind
	text     string
	citation Citation
	notice   string
}

// Evidence builds a payload carrying retrieved text with its citation.
func Evidence(text string, citation Citation) Payload {
	return Payload{kind: payloadEvidence, text: text, citation: citation}
}

// Notice builds a payload carrying a diagnostic or sentinel string.
func Notice(message string) Payload {
	return Payload{kind: payloadNotice, notice: message}
}

// IsEmpty reports whether the payload carries nothing.
func (p Payload) IsEmpty() bool { return p.kind == payloadEmpty }

// IsEvidence reports whether the payload carries retrieved text.
func (p Payload) IsEvidence() bool { return p.kind == payloadEvidence }

// IsNotice reports whether the payload carries a notice string.
func (p Payload) IsNotice() bool { return p.kind == payloadNotice }

// Evidence returns the retrieved text and citation when present.
func (p Payload) Evidence() (string, Citation, bool) {
	if p.kind != payloadEvidence {
		return "", Citation{}, false
	}
	return p.text, p.citation, true
}

// Notice returns the notice string when present.
func (p Payload) Notice() (string, bool) {
	if p.kind != payloadNotice {
		return "", false
	}
	return p.notice, true
}

// RawKey returns the dedup key for this payload: the evidence text or the
// notice string. ok is false for empty payloads.
func (p Payload) RawKey() (string, bool) {
	switch p.kind {
	case payloadEvidence:
		return p.text, true
	case payloadNotice:
		return p.notice, true
	default:
		return "", false
	}
}

// MarshalJSON renders evidence as {"text":…,"citation":{…}}, notices as a
// bare string, and empty payloads as null. The rendering is stable so
// prompts built from the evidence log are reproducible.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case payloadEvidence:
		return json.Marshal(struct {
			Text     string   `json:"text"`
			Citation Citation `json:"citation"`
		}{p.text, p.citation})
	case payloadNotice:
		return json.Marshal(p.notice)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts the three renderings produced by MarshalJSON.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Payload{}
		return nil
	}

	var notice string
	if err := json.Unmarshal(data, &notice); err == nil {
		*p = Notice(notice)
		return nil
	}

	var evidence struct {
		Text     string   `json:"text"`
		Citation Citation `json:"citation"`
	}
	if err := json.Unmarshal(data, &evidence); err != nil {
		return fmt.Errorf("unrecognized result payload: %w", err)
	}
	*p = Evidence(evidence.Text, evidence.Citation)
	return nil
}

// QueryValue is the originating query of a result: a plain search string for
// the encyclopedia or a QueryAndFilters for the vector store.
type QueryValue struct {
	Text   string           `json:"text,omitempty"`
	Vector *QueryAndFilters `json:"vector,omitempty"`
}

// TextQuery wraps an encyclopedia search string.
func TextQuery(text string) QueryValue { return QueryValue{Text: text} }

// VectorQuery wraps a planned vector query.
func VectorQuery(q QueryAndFilters) QueryValue { return QueryValue{Vector: &q} }

// Key returns a stable identity for pre-execution query dedup.
func (q QueryValue) Key() string {
	if q.Vector != nil {
		author, title := "", ""
		if q.Vector.Filters != nil {
			author = q.Vector.Filters.Author
			title = q.Vector.Filters.SourceTitle
		}
		return fmt.Sprintf("vector|%s|%s|%s", q.Vector.Query, author, title)
	}
	return "text|" + q.Text
}

// MarshalJSON renders text queries as a bare string and vector queries as
// the QueryAndFilters object, matching how the planner wrote them.
func (q QueryValue) MarshalJSON() ([]byte, error) {
	if q.Vector != nil {
		return json.Marshal(q.Vector)
	}
	return json.Marshal(q.Text)
}

// UnmarshalJSON accepts either rendering.
func (q *QueryValue) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*q = TextQuery(text)
		return nil
	}

	var vec QueryAndFilters
	if err := json.Unmarshal(data, &vec); err != nil {
		return fmt.Errorf("unrecognized query value: %w", err)
	}
	*q = VectorQuery(vec)
	return nil
}

// QueryResult is one unit of evidence in the turn's log.
type QueryResult struct {
	ID     string     `json:"id"`
	Query  QueryValue `json:"query"`
	Source string     `json:"source"`
	Result Payload    `json:"result"`
}

// NewID returns a process-wide unique result identifier.
func NewID() string {
	return uuid.NewString()
}
