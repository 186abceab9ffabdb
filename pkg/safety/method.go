package safety

import "strings"

// ValidateHTTPMethod enforces spec.md §4.1's method policy: only GET is
// permitted for data fetching unless allowOtherVerbs is explicitly set,
// mirroring network_security.py's validate_request_data GET-only check.
func ValidateHTTPMethod(method string, allowOtherVerbs bool) Result {
	res := ok()
	upper := strings.ToUpper(method)
	if upper != "GET" && !allowOtherVerbs {
		res.add(RiskCritical, "HTTP method "+upper+" not allowed; only GET is permitted")
	}
	return res
}
