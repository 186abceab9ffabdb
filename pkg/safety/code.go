package safety

import "regexp"

// forbiddenConstructs are patterns banned from any LLM-generated script
// text outright, regardless of the data-op whitelist: importing modules,
// defining functions, eval/exec-equivalents, file I/O, sub-process
// launches, and reflection (spec.md §4.1 "Forbidden in generated code").
var forbiddenConstructs = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`(?m)^\s*import\s+\S`), "module import"},
	{regexp.MustCompile(`(?m)^\s*from\s+\S+\s+import\s`), "module import"},
	{regexp.MustCompile(`(?m)^\s*(def|lambda)\s`), "function definition"},
	{regexp.MustCompile(`\beval\s*\(`), "eval call"},
	{regexp.MustCompile(`\bexec\s*\(`), "exec call"},
	{regexp.MustCompile(`\bcompile\s*\(`), "compile call"},
	{regexp.MustCompile(`\b__import__\s*\(`), "dynamic import"},
	{regexp.MustCompile(`\bopen\s*\(`), "file open"},
	{regexp.MustCompile(`\b(subprocess|os\.system|os\.popen|os\.exec\w*)\b`), "sub-process launch"},
	{regexp.MustCompile(`\bos\.environ\b`), "raw process-environment access"},
	{regexp.MustCompile(`\bgetattr\s*\(`), "reflection via getattr"},
	{regexp.MustCompile(`\bsetattr\s*\(`), "reflection via setattr"},
	{regexp.MustCompile(`__\w+__`), "dunder identifier (reflection sigil)"},
	{regexp.MustCompile(`\bsocket\.`), "raw socket access"},
}

// The environment a script's child process receives is limited by
// pkg/sandbox (Config.AllowedEnvKeys plus its own control keys), not by
// this scanner; ValidateCode only forbids `os.environ` wholesale per
// spec.md §4.1.

// CodeValidator scans LLM-emitted script text for forbidden constructs
// and checks data-op method calls against a whitelist (spec.md §4.1).
type CodeValidator struct {
	dataOps *DataOpValidator
}

// NewCodeValidator builds a CodeValidator backed by a DataOpValidator.
func NewCodeValidator(dataOps *DataOpValidator) *CodeValidator {
	return &CodeValidator{dataOps: dataOps}
}

// dataOpCall matches `<expr>.method_name(` so method calls on any
// in-scope dataframe-like value can be checked against the whitelist.
var dataOpCall = regexp.MustCompile(`\.([A-Za-z_][A-Za-z0-9_.]*)\s*\(`)

// ValidateCode statically scans a blob of generated executable text for
// forbidden constructs and non-whitelisted data operations.
func (v *CodeValidator) ValidateCode(text string) Result {
	res := ok()

	for _, fc := range forbiddenConstructs {
		if fc.pattern.MatchString(text) {
			res.add(RiskCritical, "forbidden construct: "+fc.reason)
		}
	}

	if v.dataOps != nil {
		for _, m := range dataOpCall.FindAllStringSubmatch(text, -1) {
			method := m[1]
			opResult := v.dataOps.ValidateDataOp(method)
			if !opResult.OK {
				res.add(opResult.Risk, "data operation check failed for ."+method+"(): "+firstOrEmpty(opResult.Violations))
			}
		}
	}

	return res
}

func firstOrEmpty(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
