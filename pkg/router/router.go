package router

import (
	"context"
	"encoding/json"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
)

const routerInstructions = `You are the Router for an Okta tenant query engine.
Classify the user's query into exactly one phase:

- SQL_ONLY: the question can be answered entirely from the relational
  mirror of the tenant (no live API call needed).
- SQL_PLUS_API: the question needs at least one live Okta API call,
  possibly combined with SQL.
- SPECIAL: the question matches one of the pre-registered special-tool
  analyses listed below, rather than needing a generated plan at all.

Special tools available:
%s

Respond with a JSON object: {"phase": "SQL_ONLY"|"SQL_PLUS_API"|"SPECIAL",
"reasoning": "..."}`

// RouteResult is the Router's classification of one query.
type RouteResult struct {
	Phase     models.Phase
	Reasoning string
}

type routeWire struct {
	Phase     string `json:"phase"`
	Reasoning string `json:"reasoning"`
}

// Router is the single-LLM-call dispatcher that picks a Phase for a
// query (spec.md §4.6 "Router"). Grounded on the teacher's
// pkg/agent/controller/factory.go CreateController dispatch, generalized
// from "pick a controller implementation" to "pick a pipeline phase".
type Router struct {
	client llmagent.AgentClient
	tools  []ToolDescriptor
}

// NewRouter builds a Router backed by an AgentClient. tools is the
// Special-Tools registry's descriptor list, shown to the LLM so it can
// recognize when a query matches one.
func NewRouter(client llmagent.AgentClient, tools []ToolDescriptor) *Router {
	return &Router{client: client, tools: tools}
}

// Run classifies query into a Phase.
func (r *Router) Run(ctx context.Context, correlationID, query string) (RouteResult, error) {
	prompt := buildRouterPrompt(r.tools)

	result, err := r.client.Run(ctx, correlationID, "router", prompt, query, routeSchema)
	if err != nil {
		return RouteResult{}, models.WrapError(models.ErrCodePlanningFailed, "router agent call failed", err)
	}

	var wire routeWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return RouteResult{}, models.WrapError(models.ErrCodeOutputUnparseable, "router output did not parse", err)
	}

	phase := models.Phase(wire.Phase)
	switch phase {
	case models.PhaseSQLOnly, models.PhaseSQLPlusAPI, models.PhaseSpecial:
	default:
		return RouteResult{}, models.WrapError(models.ErrCodePlanningFailed, "router returned unknown phase "+wire.Phase, nil)
	}

	return RouteResult{Phase: phase, Reasoning: wire.Reasoning}, nil
}
