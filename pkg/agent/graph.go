package agent

import (
	"context"
	"fmt"

	"github.com/cogitoproject/cogito/pkg/research"
)

// The turn graph is fixed:
//
//	start → prepare → classify → (NONE) → compose → end
//	                  classify → (else) → plan
//	plan → (completed) → compose → end
//	plan → (else) → execute → plan
//
// Routing reads only TurnState.ResearchEffort and TurnState.Completed, so a
// small interpreter loop over a handler table is all that's needed.

type nodeID int

const (
	nodePrepare nodeID = iota
	nodeClassify
	nodePlan
	nodeExecute
	nodeCompose
	nodeEnd
)

func (n nodeID) String() string {
	switch n {
	case nodePrepare:
		return "prepare_conversation"
	case nodeClassify:
		return "classify_effort"
	case nodePlan:
		return "plan_research"
	case nodeExecute:
		return "execute_queries"
	case nodeCompose:
		return "compose"
	case nodeEnd:
		return "end"
	default:
		return fmt.Sprintf("node(%d)", int(n))
	}
}

type nodeHandler func(ctx context.Context, state *TurnState) error

// runGraph walks the node table until it reaches the end node. Nodes
// recover every failure into a degraded state update; the only error that
// crosses a node boundary is context cancellation, which short-circuits the
// rest of the turn.
func (a *Agent) runGraph(ctx context.Context, state *TurnState) error {
	handlers := map[nodeID]nodeHandler{
		nodePrepare:  a.prepareConversation,
		nodeClassify: a.classifyEffort,
		nodePlan:     a.planResearch,
		nodeExecute:  a.executeQueries,
		nodeCompose:  a.compose,
	}

	current := nodePrepare
	for current != nodeEnd {
		if err := ctx.Err(); err != nil {
			return err
		}

		handler, ok := handlers[current]
		if !ok {
			return fmt.Errorf("no handler for graph node %s", current)
		}

		if err := handler(ctx, state); err != nil {
			return fmt.Errorf("node %s: %w", current, err)
		}

		current = a.next(current, state)
	}

	return nil
}

// next routes after the node that just ran.
func (a *Agent) next(current nodeID, state *TurnState) nodeID {
	switch current {
	case nodePrepare:
		return nodeClassify
	case nodeClassify:
		if state.ResearchEffort == research.EffortNone {
			return nodeCompose
		}
		return nodePlan
	case nodePlan:
		if state.Completed {
			return nodeCompose
		}
		return nodeExecute
	case nodeExecute:
		return nodePlan
	case nodeCompose:
		return nodeEnd
	default:
		return nodeEnd
	}
}
