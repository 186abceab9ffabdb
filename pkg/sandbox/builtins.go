package sandbox

import (
	"encoding/json"
	"fmt"
)

// evalFunctionCall dispatches a bare `name(args...)` call — the builtins
// print_results and api_call, plus the pl.col(...) namespace handled
// separately in evalCall.
func (in *Interp) evalFunctionCall(name string, argNodes []node) (any, error) {
	switch name {
	case "print_results":
		args, err := in.evalArgs(argNodes)
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("print_results takes exactly one argument")
		}
		in.printed = args[0]
		in.didPrint = true
		return nil, nil
	case "api_call":
		return in.evalAPICall(argNodes)
	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

func (in *Interp) evalAPICall(argNodes []node) (any, error) {
	if in.api == nil {
		return nil, fmt.Errorf("api_call is not available in this step")
	}
	if len(argNodes) < 2 {
		return nil, fmt.Errorf("api_call requires (entity, operation[, params])")
	}
	entity, err := in.evalStringArg(argNodes, 0)
	if err != nil {
		return nil, err
	}
	operation, err := in.evalStringArg(argNodes, 1)
	if err != nil {
		return nil, err
	}
	params := map[string]any{}
	if len(argNodes) >= 3 {
		raw, err := in.evalStringArg(argNodes, 2)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("api_call params must be a JSON object string: %w", err)
		}
	}
	return in.api.Call(in.ctx, entity, operation, params)
}

// evalMethodCall dispatches `target.method(args...)` for the data-op
// whitelist (spec.md §4.1): filter, select, sort, limit, group_by,
// aggregate, join, map, distinct, count, to_dicts.
func (in *Interp) evalMethodCall(target any, method string, argNodes []node) (any, error) {
	switch method {
	case "filter":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		if len(argNodes) != 1 {
			return nil, fmt.Errorf("filter takes exactly one predicate argument")
		}
		predVal, err := in.eval(argNodes[0])
		if err != nil {
			return nil, err
		}
		pred, ok := predVal.(predicate)
		if !ok {
			return nil, fmt.Errorf("filter argument must be a pl.col(...) comparison")
		}
		return filterFrame(frame, pred), nil

	case "select":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		fields, err := in.evalStringList(argNodes)
		if err != nil {
			return nil, err
		}
		return selectFrame(frame, fields), nil

	case "sort":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		field, err := in.evalStringArg(argNodes, 0)
		if err != nil {
			return nil, err
		}
		desc := false
		if len(argNodes) > 1 {
			v, err := in.eval(argNodes[1])
			if err != nil {
				return nil, err
			}
			b, ok := v.(bool)
			if ok {
				desc = b
			}
		}
		return sortFrame(frame, field, desc), nil

	case "limit":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		n, err := in.evalIntArg(argNodes, 0)
		if err != nil {
			return nil, err
		}
		return limitFrame(frame, n), nil

	case "distinct":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		fields, err := in.evalStringList(argNodes)
		if err != nil {
			return nil, err
		}
		return distinctFrame(frame, fields), nil

	case "count":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		return countFrame(frame), nil

	case "group_by":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		field, err := in.evalStringArg(argNodes, 0)
		if err != nil {
			return nil, err
		}
		return groupBy(frame, field), nil

	case "aggregate":
		grouped, ok := target.(groupedFrame)
		if !ok {
			return nil, fmt.Errorf("aggregate must follow group_by(...)")
		}
		field, err := in.evalStringArg(argNodes, 0)
		if err != nil {
			return nil, err
		}
		fn, err := in.evalStringArg(argNodes, 1)
		if err != nil {
			return nil, err
		}
		return grouped.aggregate(field, fn), nil

	case "join":
		left, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		if len(argNodes) < 1 {
			return nil, fmt.Errorf("join requires a right-hand frame argument")
		}
		rightVal, err := in.eval(argNodes[0])
		if err != nil {
			return nil, err
		}
		right, err := asFrame(rightVal)
		if err != nil {
			return nil, err
		}
		on, err := in.evalStringArg(argNodes, 1)
		if err != nil {
			return nil, err
		}
		how := "inner"
		if len(argNodes) > 2 {
			how, err = in.evalStringArg(argNodes, 2)
			if err != nil {
				return nil, err
			}
		}
		return joinFrame(left, right, on, how), nil

	case "map":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		targetField, err := in.evalStringArg(argNodes, 0)
		if err != nil {
			return nil, err
		}
		sourceField, err := in.evalStringArg(argNodes, 1)
		if err != nil {
			return nil, err
		}
		return mapFrame(frame, targetField, sourceField), nil

	case "to_dicts":
		frame, err := asFrame(target)
		if err != nil {
			return nil, err
		}
		return toDicts(frame), nil

	default:
		return nil, fmt.Errorf("unknown or non-whitelisted data operation %q", method)
	}
}

func (in *Interp) evalStringList(argNodes []node) ([]string, error) {
	if len(argNodes) == 1 {
		if list, ok := argNodes[0].(listLit); ok {
			out := make([]string, 0, len(list.items))
			for _, item := range list.items {
				v, err := in.eval(item)
				if err != nil {
					return nil, err
				}
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("list elements must be strings")
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	out := make([]string, 0, len(argNodes))
	for i := range argNodes {
		s, err := in.evalStringArg(argNodes, i)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (in *Interp) evalIntArg(argNodes []node, idx int) (int, error) {
	if idx >= len(argNodes) {
		return 0, fmt.Errorf("missing argument %d", idx)
	}
	v, err := in.eval(argNodes[idx])
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("argument %d must be a number", idx)
	}
	return int(f), nil
}

func asFrame(v any) (Frame, error) {
	switch f := v.(type) {
	case Frame:
		return f, nil
	case []map[string]any:
		return Frame(f), nil
	default:
		return nil, fmt.Errorf("expected a tabular value, got %T", v)
	}
}
