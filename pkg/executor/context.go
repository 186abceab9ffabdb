package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

// buildEnhancedContext concatenates a bounded sample of every prior
// artifact plus the variable-binding instruction naming where the full
// dataset lives in generated code (spec.md §4.5 step 1: "the full prior
// results are bound to step_2_api"). Grounded on the teacher's
// pkg/agent/context/stage_context.go:BuildStageContext, generalized from
// one finalAnalysis string per stage to one sample+schema per step slot.
func buildEnhancedContext(artifacts []models.StepArtifact) string {
	if len(artifacts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<!-- STEP_CONTEXT_START -->\n\n")

	for _, a := range artifacts {
		sb.WriteString(fmt.Sprintf("### Step %s\n\n", a.StepSlot))

		if !a.Success {
			sb.WriteString(fmt.Sprintf("(failed: %s)\n\n", a.Error))
			continue
		}

		sb.WriteString(fmt.Sprintf(
			"%d record(s). Full data is bound to `full_results[%q]` in generated code; only this sample is shown here.\n\n",
			a.RecordCount, a.StepSlot,
		))

		if len(a.ColumnSchema) > 0 {
			parts := make([]string, len(a.ColumnSchema))
			for i, c := range a.ColumnSchema {
				parts[i] = c.Name + ":" + c.Type
			}
			sb.WriteString("Schema: " + strings.Join(parts, ", ") + "\n\n")
		}

		if sampleJSON, err := json.MarshalIndent(a.Sample, "", "  "); err == nil {
			sb.WriteString("Sample:\n```json\n")
			sb.Write(sampleJSON)
			sb.WriteString("\n```\n\n")
		}
	}

	sb.WriteString("<!-- STEP_CONTEXT_END -->")
	return sb.String()
}
