package planner

import (
	"context"
	"encoding/json"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
)

type planWire struct {
	Steps []struct {
		Position     int    `json:"position"`
		Tool         string `json:"tool"`
		Entity       string `json:"entity"`
		Operation    string `json:"operation"`
		QueryContext string `json:"query_context"`
		Critical     bool   `json:"critical"`
		Reasoning    string `json:"reasoning"`
	} `json:"steps"`
	Reasoning  string `json:"reasoning"`
	Confidence int    `json:"confidence"`
}

// Planner turns a query and a narrowed Catalog into an ordered, validated
// Plan (spec.md §4.4 "Planner").
type Planner struct {
	client llmagent.AgentClient
}

// NewPlanner builds a Planner backed by an AgentClient.
func NewPlanner(client llmagent.AgentClient) *Planner {
	return &Planner{client: client}
}

// Run produces a Plan for query against the narrowed catalog. It returns
// a planning_failed error if the call fails, the output does not parse,
// or the plan is empty, and a catalog_miss error if a step fails
// models.Plan.Validate (spec.md §4.4 "Failure semantics").
func (p *Planner) Run(ctx context.Context, correlationID string, query string, narrowed *models.Catalog) (*models.Plan, error) {
	prompt := buildPlannerPrompt(query, narrowed)

	result, err := p.client.Run(ctx, correlationID, "planner", prompt, query, planSchema)
	if err != nil {
		return nil, models.WrapError(models.ErrCodePlanningFailed, "planner agent call failed", err)
	}

	var wire planWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return nil, models.WrapError(models.ErrCodePlanningFailed, "planner output did not parse", err)
	}

	plan := &models.Plan{Reasoning: wire.Reasoning, Confidence: wire.Confidence}
	for _, s := range wire.Steps {
		plan.Steps = append(plan.Steps, models.Step{
			Position:     s.Position,
			Tool:         models.Tool(s.Tool),
			Entity:       s.Entity,
			Operation:    s.Operation,
			QueryContext: s.QueryContext,
			Critical:     s.Critical,
			Reasoning:    s.Reasoning,
		})
	}

	if err := plan.Validate(narrowed); err != nil {
		return nil, err
	}
	return plan, nil
}
