package formatter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
	"github.com/fctr-io/okta-query-engine/pkg/models"
)

const fullDataInstructions = `You are the Result Formatter for an Okta tenant query engine.
The user's query has already been fully answered by the steps below.
Produce the final response object for display.

Original query: %s

Step results (full data):
%s

Respond with a JSON object: {"display_type": "table"|"markdown",
"content": ..., "metadata": {}}. Use "table" with a row-array content
when the data is naturally tabular; use "markdown" with a string content
for a narrative or summary answer.`

const sampleOnlyInstructions = `You are the Result Formatter for an Okta tenant query engine.
The full result set is too large to send here directly. You only see a
bounded sample and schema of each step below. Generate a short sandbox
DSL script that reads the full data from full_results["slot"], performs
whatever aggregation/selection the query needs, and ends with
print_results(<response object>) — where the response object is
{"display_type": "table"|"markdown", "content": ..., "metadata": {}}.

Original query: %s

Step results (sample + schema only):
%s

Respond with a JSON object: {"script": "..."}`

type formatWire struct {
	DisplayType string         `json:"display_type"`
	Content     any            `json:"content"`
	Metadata    map[string]any `json:"metadata"`
}

type formatScriptWire struct {
	Script string `json:"script"`
}

var formatResponseSchema = llmagent.Schema{
	"type":     "object",
	"required": []any{"display_type", "content"},
	"properties": map[string]any{
		"display_type": map[string]any{"type": "string", "enum": []any{"table", "markdown"}},
		"content":      map[string]any{},
		"metadata":     map[string]any{"type": "object"},
	},
}

var formatScriptSchema = llmagent.Schema{
	"type":       "object",
	"required":   []any{"script"},
	"properties": map[string]any{"script": map[string]any{"type": "string"}},
}

func buildFullDataPrompt(query string, artifacts []models.StepArtifact) string {
	var sb strings.Builder
	for _, a := range artifacts {
		sb.WriteString(fmt.Sprintf("### Step %s\n", a.StepSlot))
		if !a.Success {
			sb.WriteString("(failed: " + a.Error + ")\n\n")
			continue
		}
		if body, err := json.MarshalIndent(a.FullData, "", "  "); err == nil {
			sb.WriteString("```json\n")
			sb.Write(body)
			sb.WriteString("\n```\n\n")
		}
	}
	return fmt.Sprintf(fullDataInstructions, query, sb.String())
}

func buildSampleOnlyPrompt(query string, artifacts []models.StepArtifact) string {
	var sb strings.Builder
	for _, a := range artifacts {
		sb.WriteString(fmt.Sprintf("### Step %s\n", a.StepSlot))
		if !a.Success {
			sb.WriteString("(failed: " + a.Error + ")\n\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("%d record(s) total, bound to full_results[%q].\n", a.RecordCount, a.StepSlot))
		if len(a.ColumnSchema) > 0 {
			parts := make([]string, len(a.ColumnSchema))
			for i, c := range a.ColumnSchema {
				parts[i] = c.Name + ":" + c.Type
			}
			sb.WriteString("Schema: " + strings.Join(parts, ", ") + "\n")
		}
		if body, err := json.MarshalIndent(a.Sample, "", "  "); err == nil {
			sb.WriteString("Sample:\n```json\n")
			sb.Write(body)
			sb.WriteString("\n```\n\n")
		}
	}
	return fmt.Sprintf(sampleOnlyInstructions, query, sb.String())
}
