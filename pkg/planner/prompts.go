// Package planner is the Planner & Pre-Planner (C4): turns a natural
// language query and the process-wide Catalog into an ordered Plan
// (spec.md §4.4).
//
// Grounded on the teacher's pkg/agent/prompt/orchestrator.go (a
// ComposeInstructions-then-catalog-section prompt assembly style) and
// getaxonflow-axonflow's platform/orchestrator/planning_engine.go (a
// two-stage analyze-then-generate LLM pipeline producing a structured
// plan, with a heuristic fallback path when the LLM call itself fails).
package planner

import (
	"fmt"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

func formatCatalogForPrompt(catalog *models.Catalog) string {
	var sb strings.Builder

	sb.WriteString("## Schema catalog (tables)\n")
	if len(catalog.Tables) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, t := range catalog.Tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, fmt.Sprintf("%s:%s", c.Name, c.Type))
		}
		sb.WriteString(fmt.Sprintf("- %s(%s)\n", t.Name, strings.Join(cols, ", ")))
	}

	sb.WriteString("\n## API catalog (entity, operation pairs)\n")
	if len(catalog.Endpoints) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, e := range catalog.Endpoints {
		sb.WriteString(fmt.Sprintf("- %s.%s [%s %s] %s\n", e.Entity, e.Operation, e.HTTPMethod, e.URLPattern, e.Notes))
	}

	return sb.String()
}

const prePlannerInstructions = `You are the Pre-Planner for an Okta tenant query engine.
Given a user's natural-language query and the full catalog of available SQL
tables and API entity/operation pairs, select the MINIMAL relevant subset
needed to answer the query.

Rules:
- Never select an API entity/operation pair if the same information is
  already available from a SQL table in the catalog.
- Once an API is genuinely needed, be inclusive within the API side: include
  every plausibly relevant pair so the Planner has room to choose.
- If all required data is available relationally, return an empty API
  selection and only the relevant SQL tables.

Respond with a JSON object: {"selected_pairs": [{"entity":"...",
"operation":"..."}], "selected_tables": ["..."], "reasoning": "..."}`

func buildPrePlannerPrompt(catalog *models.Catalog) string {
	return prePlannerInstructions + "\n\n" + formatCatalogForPrompt(catalog)
}

const plannerInstructions = `You are the Planner for an Okta tenant query engine.
Given a user's natural-language query and a narrowed catalog (already
reduced to the relevant subset by the Pre-Planner), emit an ordered plan
of steps that will answer the query.

Rules:
1. Each step's tool is exactly one of "sql" or "api".
2. API steps must name an (entity, operation) pair that exists in the
   narrowed catalog below.
3. SQL steps must name a table from the schema catalog below.
4. Steps execute sequentially; a later step may depend on data produced by
   an earlier one (e.g. a set of user ids from SQL consumed by an API
   step) — describe that dependency in query_context.
5. Mark a step critical=true only if its failure should abort the whole
   plan; otherwise the executor records the failure and continues.
6. Prefer SQL over API whenever the schema catalog already has the data.

Respond with a JSON object: {"steps": [{"position": 1, "tool": "sql",
"entity": "...", "operation": "", "query_context": "...", "critical":
true, "reasoning": "..."}], "reasoning": "...", "confidence": 0-100}`

func buildPlannerPrompt(query string, catalog *models.Catalog) string {
	return plannerInstructions + "\n\n" + formatCatalogForPrompt(catalog) + "\n\n## Query\n" + query
}
