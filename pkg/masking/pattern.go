package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern is a pre-compiled regex masking rule.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// patternDef is the source form a CompiledPattern is compiled from.
type patternDef struct {
	Name        string
	Pattern     string
	Replacement string
	Description string
}

// builtinPatterns are the regex sweep run after the structural maskers.
// Unlike OktaCredentialMasker, these match free-text strings (log lines,
// generated-script stdout, narrative LLM output) where there is no JSON
// structure to key off — only the shape of the secret itself.
func builtinPatterns() []patternDef {
	return []patternDef{
		{
			Name:        "okta_ssws_token",
			Pattern:     `SSWS\s+[A-Za-z0-9_-]{20,}`,
			Replacement: "SSWS [MASKED_CREDENTIAL]",
			Description: "Okta API token in an Authorization: SSWS header",
		},
		{
			Name:        "bearer_token",
			Pattern:     `(?i)Bearer\s+[A-Za-z0-9\-_.]{20,}`,
			Replacement: "Bearer [MASKED_CREDENTIAL]",
			Description: "OAuth bearer token",
		},
		{
			Name:        "basic_auth_header",
			Pattern:     `(?i)Basic\s+[A-Za-z0-9+/=]{16,}`,
			Replacement: "Basic [MASKED_CREDENTIAL]",
			Description: "HTTP Basic auth credentials",
		},
	}
}

// compileBuiltinPatterns compiles every built-in pattern into s.patterns.
// An invalid pattern is logged and skipped rather than panicking — the
// same defensive posture as the teacher's compileBuiltinPatterns.
func (s *Service) compileBuiltinPatterns() {
	for _, def := range builtinPatterns() {
		compiled, err := regexp.Compile(def.Pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping",
				"pattern", def.Name, "error", err)
			continue
		}
		s.patterns[def.Name] = &CompiledPattern{
			Name:        def.Name,
			Regex:       compiled,
			Replacement: def.Replacement,
			Description: def.Description,
		}
	}
}
