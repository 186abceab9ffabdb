package phaseagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
)

const apiDiscoveryInstructions = `You are the API Discovery agent for an Okta tenant query engine.
Generate a short pipeline script using the sandbox DSL to satisfy this
step's intent. The script may call api_call(entity, operation, params_json)
to fetch live tenant data and may chain .filter/.select/.sort/.limit/
.group_by/.aggregate/.join/.distinct/.count on the resulting frame. Prior
steps' full results are available as full_results["slot"], as noted in
the context below. End the script with print_results(<frame>.to_dicts()).

Endpoint: %s.%s
Step intent: %s

%s

Respond with a JSON object: {"script": "...", "entry_variable_name":
"result", "declared_requirements": []}`

type apiWire struct {
	Script               string   `json:"script"`
	EntryVariableName    string   `json:"entry_variable_name"`
	DeclaredRequirements []string `json:"declared_requirements"`
}

var apiSchema = llmagent.Schema{
	"type":     "object",
	"required": []any{"script", "entry_variable_name"},
	"properties": map[string]any{
		"script":                map[string]any{"type": "string"},
		"entry_variable_name":   map[string]any{"type": "string"},
		"declared_requirements": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

// APIDiscoveryAgent generates a sandbox DSL script for one API-tool Step.
// It structurally satisfies pkg/executor.APICodeGenerator.
type APIDiscoveryAgent struct {
	client  llmagent.AgentClient
	catalog *models.Catalog
}

// NewAPIDiscoveryAgent builds an APIDiscoveryAgent. catalog is the
// process-wide, immutable catalog (spec.md §3) used only to surface
// endpoint metadata in the prompt; the narrowed subset a query actually
// needs was already established by the Pre-Planner before the Plan
// reached this step.
func NewAPIDiscoveryAgent(client llmagent.AgentClient, catalog *models.Catalog) *APIDiscoveryAgent {
	return &APIDiscoveryAgent{client: client, catalog: catalog}
}

// GenerateScript produces a script for step.
func (a *APIDiscoveryAgent) GenerateScript(ctx context.Context, correlationID string, step models.Step, enhancedContext string) (models.GeneratedCode, error) {
	notes := ""
	if ep, ok := a.catalog.LookupEndpoint(step.Entity, step.Operation); ok {
		notes = fmt.Sprintf("%s %s — %s", ep.HTTPMethod, ep.URLPattern, ep.Notes)
	}
	prompt := fmt.Sprintf(apiDiscoveryInstructions, step.Entity, step.Operation, step.QueryContext, strings.TrimSpace(enhancedContext+"\n\n"+notes))

	result, err := a.client.Run(ctx, correlationID, "api_discovery", prompt, step.QueryContext, apiSchema)
	if err != nil {
		return models.GeneratedCode{}, models.WrapError(models.ErrCodeGenerationFailed, "api discovery agent call failed", err)
	}

	var wire apiWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return models.GeneratedCode{}, models.WrapError(models.ErrCodeOutputUnparseable, "api discovery output did not parse", err)
	}
	if wire.Script == "" {
		return models.GeneratedCode{}, models.WrapError(models.ErrCodeGenerationFailed, "api discovery agent returned an empty script", nil)
	}

	return models.GeneratedCode{
		SourceText:           wire.Script,
		EntryVariableName:    wire.EntryVariableName,
		DeclaredRequirements: wire.DeclaredRequirements,
	}, nil
}
