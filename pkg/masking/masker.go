// Package masking scrubs tenant secrets out of step output and log lines
// before they reach an LLM prompt, the artifacts file, or server logs.
// spec.md doesn't name a masking component, but Okta API responses can
// legitimately carry live secrets (factor shared secrets, recovery/reset
// tokens, API keys embedded in app settings) that must never be forwarded
// to a third-party LLM or written to disk in the clear.
//
// Grounded on the teacher's pkg/masking: same two-phase design (structural
// code-based maskers first, then a regex sweep) and the same fail-closed/
// fail-open split between tool-result masking and best-effort log masking.
// The teacher's Kubernetes-Secret-YAML-specific masker has no equivalent
// here — see DESIGN.md — and is replaced by OktaCredentialMasker, a
// structural masker over Okta's JSON response shape instead of Kubernetes
// manifests.
package masking

// Masker is a structurally-aware masker operated on parsed JSON rather
// than a single regex. Mirrors the teacher's Masker interface exactly.
type Masker interface {
	// Name is the masker's unique identifier, used for logging only.
	Name() string

	// AppliesTo is a cheap pre-check (substring match, not parsing) so
	// Service can skip the cost of parsing content the masker would
	// never touch anyway.
	AppliesTo(data string) bool

	// Mask applies the masker's logic. Must be defensive: any
	// parse/processing error returns the original data unchanged so one
	// bad masker never corrupts or drops content it doesn't understand.
	Mask(data string) string
}
