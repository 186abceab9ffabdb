package masking

import (
	"encoding/json"
	"log/slog"
)

// Service applies credential masking to step output and log lines.
// Created once at startup, stateless beyond its compiled patterns, safe
// for concurrent use by every query's Executor/Formatter goroutine.
type Service struct {
	patterns    map[string]*CompiledPattern
	codeMaskers []Masker
}

// NewService builds a Service with every built-in pattern compiled and
// every structural masker registered.
func NewService() *Service {
	s := &Service{
		patterns: make(map[string]*CompiledPattern),
	}
	s.compileBuiltinPatterns()
	s.codeMaskers = append(s.codeMaskers, &OktaCredentialMasker{})

	slog.Info("masking service initialized",
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers))

	return s
}

// MaskStepOutput masks a step's textual output before it is persisted to
// the artifacts file or forwarded into a Formatter/Synthesis LLM prompt.
// Fail-closed: if masking itself errors, the original content is never
// returned — a generic redaction notice is, so a masker bug can never
// leak a secret it failed to process.
func (s *Service) MaskStepOutput(content string) string {
	if content == "" {
		return content
	}
	masked, err := s.applyMasking(content)
	if err != nil {
		slog.Error("masking failed, redacting step output (fail-closed)", "error", err)
		return "[REDACTED: masking failure — step output could not be safely processed]"
	}
	return masked
}

// MaskLogLine masks a line destined for server logs (e.g. the original
// query text, a generated script). Fail-open: a masking error logs the
// original content unmasked rather than dropping observability — logs
// stay local to the operator, unlike step output, which may leave the
// process via the LLM provider.
func (s *Service) MaskLogLine(content string) string {
	if content == "" {
		return content
	}
	masked, err := s.applyMasking(content)
	if err != nil {
		slog.Warn("masking failed, logging original content (fail-open)", "error", err)
		return content
	}
	return masked
}

// MaskRows returns a masked copy of a decoded step result set: marshals rows to
// JSON, runs MaskStepOutput's fail-closed path, and unmarshals the
// result back. Satisfies pkg/executor.OutputMasker structurally, the
// same consumer-declares-the-interface pattern used throughout this
// pipeline — pkg/executor never imports pkg/masking.
//
// On any marshal/unmarshal failure this redacts every row rather than
// returning the original unmasked data, matching MaskStepOutput's
// fail-closed contract.
func (s *Service) MaskRows(rows []map[string]any) []map[string]any {
	if len(rows) == 0 {
		return rows
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return redactAll(rows)
	}

	masked := s.MaskStepOutput(string(body))

	var out []map[string]any
	if err := json.Unmarshal([]byte(masked), &out); err != nil {
		return redactAll(rows)
	}
	return out
}

func redactAll(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i := range rows {
		out[i] = map[string]any{"_redacted": "masking failure — row could not be safely processed"}
	}
	return out
}

// applyMasking runs every structural masker that claims applicability,
// then the regex sweep.
func (s *Service) applyMasking(content string) (string, error) {
	masked := content

	for _, m := range s.codeMaskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}

	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}

	return masked, nil
}
