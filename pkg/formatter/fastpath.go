package formatter

import (
	"regexp"
	"strings"

	"github.com/fctr-io/okta-query-engine/pkg/models"
)

// aggregationKeyword matches the query phrases spec.md §4.6's fast path
// names explicitly: "group by", "per user", "summary" (and their
// obvious natural-language variants).
var aggregationKeyword = regexp.MustCompile(`(?i)\b(group(ed)?\s+by|per\s+\w+|summar(y|ize|ized))\b`)

// fastPathResult implements spec.md §4.6's fast path: when the plan was
// exactly one SQL step and the user didn't ask for aggregation, render
// the raw rows as a table directly — no LLM call at all.
func fastPathResult(query string, artifacts []models.StepArtifact) (Result, bool) {
	if len(artifacts) != 1 {
		return Result{}, false
	}
	a := artifacts[0]
	if !a.Success {
		return Result{}, false
	}
	if !strings.HasSuffix(a.StepSlot, "_sql") {
		return Result{}, false
	}
	if aggregationKeyword.MatchString(query) {
		return Result{}, false
	}

	headers := make([]map[string]any, 0, len(a.ColumnSchema))
	for _, c := range a.ColumnSchema {
		headers = append(headers, map[string]any{"value": c.Name, "text": c.Name, "sortable": true})
	}

	return Result{
		DisplayType: "table",
		Content:     a.FullData,
		Metadata: map[string]any{
			"headers":       headers,
			"total_records": a.RecordCount,
		},
	}, true
}
