package executor

import (
	"encoding/json"
	"sort"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

const maxNestedObjectBytes = 2048

const (
	defaultSampleRows       = 5
	defaultSampleStringChar = 150
	defaultSampleListItems  = 3
)

// buildSample projects rows down to the bounded, LLM-safe shape spec.md
// §4.5 "Sample rules" describes: up to maxRows rows, with every string,
// list, and oversized nested object field truncated. The column schema is
// inferred from the full row set, not just the sample, so later prompts
// see every field even if it only appears in row 6.
func buildSample(rows []map[string]any, maxRows, maxStringChars, maxListItems int) ([]map[string]any, []models.ColumnSchema) {
	if maxRows <= 0 {
		maxRows = defaultSampleRows
	}
	if maxStringChars <= 0 {
		maxStringChars = defaultSampleStringChar
	}
	if maxListItems <= 0 {
		maxListItems = defaultSampleListItems
	}

	limit := maxRows
	if limit > len(rows) {
		limit = len(rows)
	}
	sample := make([]map[string]any, limit)
	for i := 0; i < limit; i++ {
		sample[i] = truncateRow(rows[i], maxStringChars, maxListItems)
	}
	return sample, inferSchema(rows)
}

func truncateRow(row map[string]any, maxStringChars, maxListItems int) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = truncateValue(v, maxStringChars, maxListItems)
	}
	return out
}

func truncateValue(v any, maxStringChars, maxListItems int) any {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringChars {
			return val[:maxStringChars] + "…"
		}
		return val
	case []any:
		if len(val) > maxListItems {
			return val[:maxListItems]
		}
		return val
	case map[string]any:
		body, err := json.Marshal(val)
		if err == nil && len(body) > maxNestedObjectBytes {
			return map[string]any{"key_summary": sortedKeys(val), "truncated": true}
		}
		return val
	default:
		return val
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// inferSchema records field names and JSON-ish inferred types across every
// row (not just the sample), per spec.md §4.5 "Record schema alongside the
// sample".
func inferSchema(rows []map[string]any) []models.ColumnSchema {
	types := make(map[string]string)
	var order []string
	for _, row := range rows {
		for k, v := range row {
			if _, ok := types[k]; !ok {
				order = append(order, k)
			}
			types[k] = goType(v)
		}
	}
	sort.Strings(order)
	schema := make([]models.ColumnSchema, 0, len(order))
	for _, k := range order {
		schema = append(schema, models.ColumnSchema{Name: k, Type: types[k]})
	}
	return schema
}

func goType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}
