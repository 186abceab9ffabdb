// Package safety is the Safety Validator (C1): static, non-throwing
// checks on LLM-emitted text before anything touches a sandbox or the
// network. Every validator here returns a result record and never
// panics or returns an error — "ok=false" is itself the fatal outcome
// the caller (pkg/executor) acts on (spec.md §4.1).
//
// Grounded on original_source/src/core/security/network_security.py and
// polars_security.py (the system this spec was distilled from) for the
// concrete allow/block lists, and on the teacher's pkg/mcp/router.go for
// the "validate before dispatch, never trust agent output" posture.
package safety

// RiskLevel mirrors the original's four-tier scale so violations keep
// the same severity vocabulary across the pipeline's logs and events.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// higher reports whether a is a strictly higher risk than b.
func higher(a, b RiskLevel) bool {
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2, RiskCritical: 3}
	return rank[a] > rank[b]
}

// Result is the shape every C1 validator returns: ok plus a human-facing
// violation list plus a risk tier, never an error.
type Result struct {
	OK         bool
	Violations []string
	Risk       RiskLevel
}

func ok() Result { return Result{OK: true, Risk: RiskLow} }

func (r *Result) add(risk RiskLevel, violation string) {
	r.OK = false
	r.Violations = append(r.Violations, violation)
	if higher(risk, r.Risk) {
		r.Risk = risk
	}
}
