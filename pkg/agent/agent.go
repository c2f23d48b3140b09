// Package agent implements the research turn orchestrator: a fixed graph of
// planning, retrieval and synthesis nodes operating on a shared TurnState.
package agent

import (
	"context"
	"fmt"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/llms"
	"github.com/cogitoproject/cogito/pkg/observability"
	"github.com/cogitoproject/cogito/pkg/research"
	"github.com/cogitoproject/cogito/pkg/utils"
)

// VectorSource retrieves evidence from the vector store for planned queries.
// Implementations swallow sub-task failures: a failed query surfaces as a
// missing or diagnostic result, never as an error for the whole batch.
type VectorSource interface {
	Query(ctx context.Context, queries []research.QueryAndFilters) ([]research.QueryResult, error)
}

// EncyclopediaSource retrieves evidence from the Stanford Encyclopedia of
// Philosophy. The conversation is passed through so section selection can
// see the user's intent.
type EncyclopediaSource interface {
	Query(ctx context.Context, queries []string, conversation []llms.Message) ([]research.QueryResult, error)
}

// TokenEstimator counts encoded tokens for budget checks. Satisfied by
// utils.TokenCounter.
type TokenEstimator interface {
	CountMessages(messages []utils.Message) int
}

// Output is what one turn produces.
type Output struct {
	Response     string
	QueryResults []research.QueryResult
	Effort       research.Effort
}

// StatusFunc receives short progress labels while a turn runs (the
// short-term plan, retry notices). May be nil.
type StatusFunc func(text string)

// Agent drives one conversation turn at a time. The collaborators it holds
// (LLM, sources) are shared across turns and must be safe for concurrent
// use; TurnState itself is never shared.
type Agent struct {
	llm          llms.Provider
	tokens       TokenEstimator
	vector       VectorSource
	encyclopedia EncyclopediaSource
	cfg          *config.ResearchConfig
	status       StatusFunc
}

// Options carries the collaborators for NewAgent.
type Options struct {
	LLM          llms.Provider
	Tokens       TokenEstimator
	Vector       VectorSource
	Encyclopedia EncyclopediaSource
	Research     *config.ResearchConfig
	Status       StatusFunc
}

func NewAgent(opts Options) (*Agent, error) {
	if opts.LLM == nil {
		return nil, fmt.Errorf("LLM provider is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if opts.Vector == nil || opts.Encyclopedia == nil {
		return nil, fmt.Errorf("both source adapters are required")
	}

	cfg := opts.Research
	if cfg == nil {
		cfg = &config.ResearchConfig{}
		cfg.SetDefaults()
	}

	status := opts.Status
	if status == nil {
		status = func(string) {}
	}

	return &Agent{
		llm:          opts.LLM,
		tokens:       opts.Tokens,
		vector:       opts.Vector,
		encyclopedia: opts.Encyclopedia,
		cfg:          cfg,
		status:       status,
	}, nil
}

// Run executes one turn over the given conversation and returns the
// assistant's reply together with the evidence used to produce it. On
// cancellation the turn returns ctx.Err() and no output.
func (a *Agent) Run(ctx context.Context, conversation []llms.Message) (*Output, error) {
	state := NewTurnState(conversation)

	if err := a.runGraph(ctx, state); err != nil {
		return nil, err
	}

	observability.RecordTurn(state.ResearchEffort.String(), state.ResearchIterations)

	return &Output{
		Response:     state.Response,
		QueryResults: state.QueryResults,
		Effort:       state.ResearchEffort,
	}, nil
}
