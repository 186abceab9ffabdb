package sandbox

import (
	"fmt"
	"sort"
)

// Frame is the tabular value generated scripts operate on: an ordered
// slice of row objects, matching the "array of row objects" shape
// spec.md §6.2 names for QUERY RESULTS output.
type Frame []map[string]any

// colRef is the value `pl.col("name")` evaluates to.
type colRef struct{ name string }

// predicate is the value a comparison expression (`pl.col("x") == 1`)
// evaluates to, and the input `filter` expects.
type predicate struct {
	eval func(row map[string]any) bool
}

func comparePredicate(op tokenKind, field string, want any) predicate {
	return predicate{eval: func(row map[string]any) bool {
		got, ok := row[field]
		if !ok {
			return false
		}
		return compareValues(op, got, want)
	}}
}

func compareValues(op tokenKind, got, want any) bool {
	switch op {
	case tokEq:
		return fmt.Sprint(got) == fmt.Sprint(want)
	case tokNe:
		return fmt.Sprint(got) != fmt.Sprint(want)
	}
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if !gok || !wok {
		return false
	}
	switch op {
	case tokGt:
		return gf > wf
	case tokGe:
		return gf >= wf
	case tokLt:
		return gf < wf
	case tokLe:
		return gf <= wf
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func andPredicate(a, b predicate) predicate {
	return predicate{eval: func(row map[string]any) bool { return a.eval(row) && b.eval(row) }}
}

func orPredicate(a, b predicate) predicate {
	return predicate{eval: func(row map[string]any) bool { return a.eval(row) || b.eval(row) }}
}

// groupedFrame is the intermediate value `group_by` produces; `aggregate`
// turns it back into a Frame.
type groupedFrame struct {
	by     string
	groups map[string]Frame
	order  []string
}

func groupBy(f Frame, by string) groupedFrame {
	g := groupedFrame{by: by, groups: make(map[string]Frame)}
	for _, row := range f {
		key := fmt.Sprint(row[by])
		if _, ok := g.groups[key]; !ok {
			g.order = append(g.order, key)
		}
		g.groups[key] = append(g.groups[key], row)
	}
	return g
}

// aggregate supports "count", "sum", "avg", "min", "max" over a named
// field, one spec per call, matching the data-op whitelist's "aggregate".
func (g groupedFrame) aggregate(field, fn string) Frame {
	out := make(Frame, 0, len(g.order))
	for _, key := range g.order {
		rows := g.groups[key]
		row := map[string]any{g.by: key}
		switch fn {
		case "count":
			row["count"] = len(rows)
		default:
			var sum float64
			var n int
			min, max := 0.0, 0.0
			for i, r := range rows {
				v, ok := toFloat(r[field])
				if !ok {
					continue
				}
				if i == 0 || v < min {
					min = v
				}
				if i == 0 || v > max {
					max = v
				}
				sum += v
				n++
			}
			switch fn {
			case "sum":
				row[field] = sum
			case "avg":
				if n > 0 {
					row[field] = sum / float64(n)
				} else {
					row[field] = 0.0
				}
			case "min":
				row[field] = min
			case "max":
				row[field] = max
			default:
				row[field] = sum
			}
		}
		out = append(out, row)
	}
	return out
}

func filterFrame(f Frame, pred predicate) Frame {
	out := make(Frame, 0, len(f))
	for _, row := range f {
		if pred.eval(row) {
			out = append(out, row)
		}
	}
	return out
}

func selectFrame(f Frame, fields []string) Frame {
	out := make(Frame, 0, len(f))
	for _, row := range f {
		projected := make(map[string]any, len(fields))
		for _, field := range fields {
			if v, ok := row[field]; ok {
				projected[field] = v
			}
		}
		out = append(out, projected)
	}
	return out
}

func sortFrame(f Frame, field string, desc bool) Frame {
	out := make(Frame, len(f))
	copy(out, f)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := toFloat(out[i][field])
		b, bok := toFloat(out[j][field])
		var less bool
		if aok && bok {
			less = a < b
		} else {
			less = fmt.Sprint(out[i][field]) < fmt.Sprint(out[j][field])
		}
		if desc {
			return !less
		}
		return less
	})
	return out
}

func limitFrame(f Frame, n int) Frame {
	if n < 0 {
		n = 0
	}
	if n > len(f) {
		n = len(f)
	}
	return f[:n]
}

func distinctFrame(f Frame, fields []string) Frame {
	seen := make(map[string]bool, len(f))
	out := make(Frame, 0, len(f))
	for _, row := range f {
		key := distinctKey(row, fields)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func distinctKey(row map[string]any, fields []string) string {
	if len(fields) == 0 {
		return fmt.Sprint(row)
	}
	key := ""
	for _, f := range fields {
		key += f + "=" + fmt.Sprint(row[f]) + ";"
	}
	return key
}

func countFrame(f Frame) Frame {
	return Frame{{"count": len(f)}}
}

// mapFrame renames/derives a single field by copying an existing one —
// the narrow form of "map" the whitelist allows (no arbitrary callables,
// since lambda/def are forbidden constructs per pkg/safety).
func mapFrame(f Frame, targetField, sourceField string) Frame {
	out := make(Frame, 0, len(f))
	for _, row := range f {
		projected := make(map[string]any, len(row)+1)
		for k, v := range row {
			projected[k] = v
		}
		if v, ok := row[sourceField]; ok {
			projected[targetField] = v
		}
		out = append(out, projected)
	}
	return out
}

func joinFrame(left, right Frame, on, how string) Frame {
	index := make(map[string][]map[string]any, len(right))
	for _, row := range right {
		key := fmt.Sprint(row[on])
		index[key] = append(index[key], row)
	}
	out := make(Frame, 0, len(left))
	for _, lrow := range left {
		key := fmt.Sprint(lrow[on])
		matches := index[key]
		if len(matches) == 0 {
			if how == "left" {
				merged := make(map[string]any, len(lrow))
				for k, v := range lrow {
					merged[k] = v
				}
				out = append(out, merged)
			}
			continue
		}
		for _, rrow := range matches {
			merged := make(map[string]any, len(lrow)+len(rrow))
			for k, v := range lrow {
				merged[k] = v
			}
			for k, v := range rrow {
				merged[k] = v
			}
			out = append(out, merged)
		}
	}
	return out
}

func toDicts(f Frame) []map[string]any { return []map[string]any(f) }
