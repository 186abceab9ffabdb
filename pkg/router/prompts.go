package router

import (
	"fmt"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/llmagent"
)

// ToolDescriptor is the Router's view of one registered special-tool
// analysis: enough to let the LLM recognize a matching query without
// exposing the tool's implementation. The full descriptor (with
// parameter extraction and the invokable function) lives in
// pkg/phaseagent's registry; this is the flattened subset the Router's
// prompt needs.
type ToolDescriptor struct {
	EntityName string
	Operations []string
	Summary    string
}

func formatToolsForPrompt(tools []ToolDescriptor) string {
	if len(tools) == 0 {
		return "(none registered)"
	}
	var sb strings.Builder
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("- %s [%s]: %s\n", t.EntityName, strings.Join(t.Operations, ", "), t.Summary))
	}
	return sb.String()
}

func buildRouterPrompt(tools []ToolDescriptor) string {
	return fmt.Sprintf(routerInstructions, formatToolsForPrompt(tools))
}

var routeSchema = llmagent.Schema{
	"type":     "object",
	"required": []any{"phase", "reasoning"},
	"properties": map[string]any{
		"phase":     map[string]any{"type": "string", "enum": []any{"SQL_ONLY", "SQL_PLUS_API", "SPECIAL"}},
		"reasoning": map[string]any{"type": "string"},
	},
}
