package planner

import (
	"context"
	"encoding/json"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
)

// PrePlanOutput is the Pre-Planner's structured result (spec.md §4.4).
type PrePlanOutput struct {
	SelectedPairs  []models.EntityOperation
	SelectedTables []string
	Reasoning      string
}

type prePlanWire struct {
	SelectedPairs []struct {
		Entity    string `json:"entity"`
		Operation string `json:"operation"`
	} `json:"selected_pairs"`
	SelectedTables []string `json:"selected_tables"`
	Reasoning      string   `json:"reasoning"`
}

// PrePlanner narrows the full Catalog to a minimal relevant subset before
// the Planner runs (spec.md §4.4 "Pre-Planner").
type PrePlanner struct {
	client llmagent.AgentClient
}

// NewPrePlanner builds a PrePlanner backed by an AgentClient.
func NewPrePlanner(client llmagent.AgentClient) *PrePlanner {
	return &PrePlanner{client: client}
}

// Run selects the minimal relevant entity/operation pairs and tables for
// query, given the full catalog.
func (p *PrePlanner) Run(ctx context.Context, correlationID string, query string, catalog *models.Catalog) (PrePlanOutput, error) {
	prompt := buildPrePlannerPrompt(catalog)

	result, err := p.client.Run(ctx, correlationID, "pre_planner", prompt, query, prePlanSchema)
	if err != nil {
		return PrePlanOutput{}, err
	}

	var wire prePlanWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return PrePlanOutput{}, models.WrapError(models.ErrCodeOutputUnparseable, "pre-planner output did not parse", err)
	}

	out := PrePlanOutput{
		SelectedTables: wire.SelectedTables,
		Reasoning:      wire.Reasoning,
	}
	for _, pair := range wire.SelectedPairs {
		out.SelectedPairs = append(out.SelectedPairs, models.EntityOperation{Entity: pair.Entity, Operation: pair.Operation})
	}
	return out, nil
}

// Narrow applies a PrePlanOutput to the full catalog, returning the
// narrowed Catalog the Planner should see.
func Narrow(full *models.Catalog, out PrePlanOutput) *models.Catalog {
	return full.Subset(out.SelectedPairs, out.SelectedTables)
}
