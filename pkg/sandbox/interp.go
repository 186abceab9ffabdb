package sandbox

import (
	"context"
	"fmt"
	"strings"
)

// APIClient performs one tenant API call on behalf of a generated script's
// `api_call(entity, operation, params)` builtin. The sandbox subcommand
// wires this to an http.Client built from the filtered child environment
// (see httpclient.go) — the generated script itself never sees a raw
// socket or URL, only this narrow, safety-validated surface.
type APIClient interface {
	Call(ctx context.Context, entity, operation string, params map[string]any) (Frame, error)
}

// Interp evaluates one parsed sandbox script against a set of input
// bindings (the slot-keyed prior results, spec.md §4.5 "Cross-step data
// flow"). One Interp instance is used for exactly one script execution.
type Interp struct {
	ctx         context.Context
	fullResults map[string]Frame
	api         APIClient
	vars        map[string]any
	printed     any
	didPrint    bool
}

// NewInterp builds an Interp bound to the full_results map for this step
// and the APIClient used by any api_call(...) the script makes.
func NewInterp(ctx context.Context, fullResults map[string]Frame, api APIClient) *Interp {
	return &Interp{ctx: ctx, fullResults: fullResults, api: api, vars: make(map[string]any)}
}

// Run parses and executes script line by line. Lines that are blank or
// start with '#' are skipped. Returns the value passed to print_results,
// or an error if the script never calls it.
func (in *Interp) Run(script string) (any, error) {
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' {
			continue
		}
		stmt, err := parseStatement(trimmed)
		if err != nil {
			return nil, fmt.Errorf("sandbox: parse error on line %q: %w", trimmed, err)
		}
		if err := in.exec(stmt); err != nil {
			return nil, fmt.Errorf("sandbox: line %q: %w", trimmed, err)
		}
	}
	if !in.didPrint {
		return nil, fmt.Errorf("sandbox: script never called print_results(...)")
	}
	return in.printed, nil
}

func (in *Interp) exec(stmt node) error {
	switch s := stmt.(type) {
	case assignStmt:
		v, err := in.eval(s.expr)
		if err != nil {
			return err
		}
		in.vars[s.name] = v
		return nil
	case exprStmt:
		_, err := in.eval(s.expr)
		return err
	default:
		return fmt.Errorf("unknown statement type %T", stmt)
	}
}

func (in *Interp) eval(n node) (any, error) {
	switch v := n.(type) {
	case stringLit:
		return v.value, nil
	case numberLit:
		return v.value, nil
	case boolLit:
		return v.value, nil
	case listLit:
		out := make([]any, 0, len(v.items))
		for _, item := range v.items {
			val, err := in.eval(item)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case identRef:
		switch v.name {
		case "pl":
			return plNamespace{}, nil
		}
		val, ok := in.vars[v.name]
		if !ok {
			return nil, fmt.Errorf("undefined variable %q", v.name)
		}
		return val, nil
	case indexExpr:
		target, ok := v.target.(identRef)
		if !ok || target.name != "full_results" {
			return nil, fmt.Errorf("index expression only supported on full_results")
		}
		frame, ok := in.fullResults[v.key]
		if !ok {
			return nil, fmt.Errorf("no prior results bound to slot %q", v.key)
		}
		return frame, nil
	case binOp:
		return in.evalBinOp(v)
	case callExpr:
		return in.evalCall(v)
	default:
		return nil, fmt.Errorf("unhandled expression type %T", n)
	}
}

type plNamespace struct{}

func (in *Interp) evalBinOp(b binOp) (any, error) {
	switch b.op {
	case tokAmp, tokPipe:
		left, err := in.eval(b.left)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(b.right)
		if err != nil {
			return nil, err
		}
		lp, ok := left.(predicate)
		if !ok {
			return nil, fmt.Errorf("left side of boolean combinator is not a predicate")
		}
		rp, ok := right.(predicate)
		if !ok {
			return nil, fmt.Errorf("right side of boolean combinator is not a predicate")
		}
		if b.op == tokAmp {
			return andPredicate(lp, rp), nil
		}
		return orPredicate(lp, rp), nil
	default:
		left, err := in.eval(b.left)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(b.right)
		if err != nil {
			return nil, err
		}
		col, ok := left.(colRef)
		if !ok {
			return nil, fmt.Errorf("left side of comparison must be pl.col(...)")
		}
		return comparePredicate(b.op, col.name, right), nil
	}
}

func (in *Interp) evalCall(c callExpr) (any, error) {
	switch callee := c.callee.(type) {
	case identRef:
		return in.evalFunctionCall(callee.name, c.args)
	case methodCallee:
		target, err := in.eval(callee.target)
		if err != nil {
			return nil, err
		}
		// pl.col("name") — methodCallee.target evaluates to plNamespace{}.
		if _, ok := target.(plNamespace); ok {
			if callee.name != "col" {
				return nil, fmt.Errorf("unknown pl.%s(...)", callee.name)
			}
			name, err := in.evalStringArg(c.args, 0)
			if err != nil {
				return nil, err
			}
			return colRef{name: name}, nil
		}
		return in.evalMethodCall(target, callee.name, c.args)
	default:
		return nil, fmt.Errorf("unsupported callee")
	}
}

func (in *Interp) evalStringArg(args []node, idx int) (string, error) {
	if idx >= len(args) {
		return "", fmt.Errorf("missing argument %d", idx)
	}
	v, err := in.eval(args[idx])
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %d must be a string", idx)
	}
	return s, nil
}

func (in *Interp) evalArgs(args []node) ([]any, error) {
	out := make([]any, 0, len(args))
	for _, a := range args {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
