package phaseagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
)

const synthesisInstructions = `You are the Synthesis agent for an Okta tenant query engine.
You have already gathered data across one or more prior steps, recorded
below from the artifacts file. Decide whether answering the original
query needs a further data transformation:

- If it does, emit a short sandbox DSL script (same grammar as API
  Discovery scripts) that reads from full_results["slot"] and ends with
  print_results(<frame>.to_dicts()) to produce the final row set.
- If no transformation is needed — the prior steps already produced (or
  the answer is simply narrative, e.g. "no users matched") — answer
  directly in prose instead.

Prior phase artifacts:
%s

Original query: %s

Respond with a JSON object: {"is_narrative": true|false, "narrative":
"...", "script": "...", "entry_variable_name": "result"}. Populate only
the branch you chose; leave the other fields empty.`

type synthesisWire struct {
	IsNarrative       bool   `json:"is_narrative"`
	Narrative         string `json:"narrative"`
	Script            string `json:"script"`
	EntryVariableName string `json:"entry_variable_name"`
}

var synthesisSchema = llmagent.Schema{
	"type":     "object",
	"required": []any{"is_narrative"},
	"properties": map[string]any{
		"is_narrative":        map[string]any{"type": "boolean"},
		"narrative":           map[string]any{"type": "string"},
		"script":              map[string]any{"type": "string"},
		"entry_variable_name": map[string]any{"type": "string"},
	},
}

// SynthesisResult is the Synthesis Agent's decision: either a narrative
// answer, or a script that still needs C1 validation and sandbox
// execution (spec.md §4.6 "Synthesis Agent" — "validated and executed
// like any other step").
type SynthesisResult struct {
	IsNarrative bool
	Narrative   string
	Script      models.GeneratedCode
}

// SynthesisAgent reads prior phases' artifacts and the original query
// and produces either a final transformation script or a direct answer.
type SynthesisAgent struct {
	client llmagent.AgentClient
}

// NewSynthesisAgent builds a SynthesisAgent backed by an AgentClient.
func NewSynthesisAgent(client llmagent.AgentClient) *SynthesisAgent {
	return &SynthesisAgent{client: client}
}

// Run produces a SynthesisResult for query, given the artifacts file's
// full record history for this correlation id.
func (a *SynthesisAgent) Run(ctx context.Context, correlationID, query string, artifacts []models.ArtifactRecord) (SynthesisResult, error) {
	prompt := fmt.Sprintf(synthesisInstructions, formatArtifactsForPrompt(artifacts), query)

	result, err := a.client.Run(ctx, correlationID, "synthesis", prompt, query, synthesisSchema)
	if err != nil {
		return SynthesisResult{}, models.WrapError(models.ErrCodeGenerationFailed, "synthesis agent call failed", err)
	}

	var wire synthesisWire
	if err := json.Unmarshal(result.Output, &wire); err != nil {
		return SynthesisResult{}, models.WrapError(models.ErrCodeOutputUnparseable, "synthesis output did not parse", err)
	}

	if wire.IsNarrative {
		if wire.Narrative == "" {
			return SynthesisResult{}, models.WrapError(models.ErrCodeGenerationFailed, "synthesis agent chose narrative but returned no text", nil)
		}
		return SynthesisResult{IsNarrative: true, Narrative: wire.Narrative}, nil
	}

	if wire.Script == "" {
		return SynthesisResult{}, models.WrapError(models.ErrCodeGenerationFailed, "synthesis agent returned neither a narrative nor a script", nil)
	}
	return SynthesisResult{Script: models.GeneratedCode{SourceText: wire.Script, EntryVariableName: wire.EntryVariableName}}, nil
}

func formatArtifactsForPrompt(records []models.ArtifactRecord) string {
	if len(records) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("### %s (%s)\n", r.Slot, r.Phase))
		if r.GeneratedCode.SourceText != "" {
			sb.WriteString("Generated code:\n```\n" + r.GeneratedCode.SourceText + "\n```\n")
		}
		if r.Artifact.Success {
			sb.WriteString(fmt.Sprintf("%d record(s) produced.\n\n", r.Artifact.RecordCount))
		} else if r.Artifact.Error != "" {
			sb.WriteString("(failed: " + r.Artifact.Error + ")\n\n")
		}
	}
	return sb.String()
}
