package safety

// DataOpValidator whitelists tabular-processing primitives a generated
// script's data-transformation step may call, and blocks file I/O,
// network, and reflection-style method names — spec.md §4.1's
// "whitelist for filter, group-by, aggregate, select, sort, join, etc.".
//
// The default allow set (pkg/config) is the sandbox DSL's method set
// plus `col` for pl.col(...). The default block set is grounded on
// original_source/src/core/security/polars_security.py's
// BLOCKED_POLARS_METHODS (trimmed — file-format read/write and database
// methods are dropped since the sandbox never has file or DB access to
// begin with).
type DataOpValidator struct {
	allowed map[string]bool
	blocked map[string]bool
}

// NewDataOpValidator builds a DataOpValidator from resolved config lists.
func NewDataOpValidator(allowed, blocked []string) *DataOpValidator {
	v := &DataOpValidator{allowed: make(map[string]bool, len(allowed)), blocked: make(map[string]bool, len(blocked))}
	for _, op := range allowed {
		v.allowed[op] = true
	}
	for _, op := range blocked {
		v.blocked[op] = true
	}
	return v
}

// ValidateDataOp checks one data-processing method name a generated
// script invokes (e.g. "group_by", "filter").
func (v *DataOpValidator) ValidateDataOp(name string) Result {
	res := ok()
	if v.blocked[name] {
		res.add(RiskCritical, "blocked data operation: "+name)
		return res
	}
	if !v.allowed[name] {
		res.add(RiskHigh, "data operation not on whitelist: "+name)
	}
	return res
}
