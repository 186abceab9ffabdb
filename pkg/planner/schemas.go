package planner

import "github.com/fctr-io/okta-query-engine/pkg/llmagent"

var prePlanSchema = llmagent.Schema{
	"type":     "object",
	"required": []any{"selected_pairs", "selected_tables", "reasoning"},
	"properties": map[string]any{
		"selected_pairs": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"entity", "operation"},
				"properties": map[string]any{
					"entity":    map[string]any{"type": "string"},
					"operation": map[string]any{"type": "string"},
				},
			},
		},
		"selected_tables": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"reasoning": map[string]any{"type": "string"},
	},
}

var planSchema = llmagent.Schema{
	"type":     "object",
	"required": []any{"steps", "reasoning", "confidence"},
	"properties": map[string]any{
		"steps": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"position", "tool", "entity", "critical"},
				"properties": map[string]any{
					"position":      map[string]any{"type": "integer"},
					"tool":          map[string]any{"type": "string", "enum": []any{"sql", "api"}},
					"entity":        map[string]any{"type": "string"},
					"operation":     map[string]any{"type": "string"},
					"query_context": map[string]any{"type": "string"},
					"critical":      map[string]any{"type": "boolean"},
					"reasoning":     map[string]any{"type": "string"},
				},
			},
		},
		"reasoning":  map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "integer"},
	},
}
