package config

import (
	"fmt"
	"os"
	"strings"
)

// Validator performs fail-fast checks on a loaded Config, mirroring the
// teacher's pkg/config/validator.go "validate everything before the
// server starts accepting traffic" posture.
type Validator struct {
	cfg *Config
}

// ValidateAll runs every check and joins all failures into one error so a
// misconfigured deploy reports every problem at once, not one-at-a-time.
func (v *Validator) ValidateAll() error {
	var errs []error
	errs = append(errs, v.validateTenant()...)
	errs = append(errs, v.validateLLM()...)
	errs = append(errs, v.validateDatabase()...)
	errs = append(errs, v.validateSafety()...)

	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d configuration error(s): %s", len(errs), strings.Join(msgs, "; "))
}

func (v *Validator) validateTenant() []error {
	var errs []error
	t := v.cfg.Tenant
	if t.Host == "" {
		errs = append(errs, NewValidationError("tenant", "host", ErrMissingRequiredField))
	}
	if t.CatalogPath == "" {
		errs = append(errs, NewValidationError("tenant", "catalog_path", ErrMissingRequiredField))
	}
	if t.APITokenEnv == "" {
		errs = append(errs, NewValidationError("tenant", "api_token_env", ErrMissingRequiredField))
	} else if os.Getenv(t.APITokenEnv) == "" {
		errs = append(errs, NewValidationError("tenant", "api_token_env",
			fmt.Errorf("%w: environment variable %q is unset", ErrInvalidValue, t.APITokenEnv)))
	}
	return errs
}

func (v *Validator) validateLLM() []error {
	var errs []error
	l := v.cfg.LLM
	if l.Provider == "" {
		errs = append(errs, NewValidationError("llm", "provider", ErrMissingRequiredField))
	}
	if l.Model == "" {
		errs = append(errs, NewValidationError("llm", "model", ErrMissingRequiredField))
	}
	if l.APIKeyEnv == "" {
		errs = append(errs, NewValidationError("llm", "api_key_env", ErrMissingRequiredField))
	} else if os.Getenv(l.APIKeyEnv) == "" {
		errs = append(errs, NewValidationError("llm", "api_key_env",
			fmt.Errorf("%w: environment variable %q is unset", ErrInvalidValue, l.APIKeyEnv)))
	}
	if l.Retry.MaxAttempts < 1 {
		errs = append(errs, NewValidationError("llm.retry", "max_attempts",
			fmt.Errorf("%w: must be >= 1", ErrInvalidValue)))
	}
	if l.Retry.MaxWait < l.Retry.BaseWait {
		errs = append(errs, NewValidationError("llm.retry", "max_wait",
			fmt.Errorf("%w: must be >= base_wait", ErrInvalidValue)))
	}
	return errs
}

func (v *Validator) validateDatabase() []error {
	var errs []error
	if v.cfg.Database.DSN == "" {
		errs = append(errs, NewValidationError("database", "dsn", ErrMissingRequiredField))
	}
	return errs
}

func (v *Validator) validateSafety() []error {
	var errs []error
	s := v.cfg.Safety
	if len(s.AllowedURLPaths) == 0 {
		errs = append(errs, NewValidationError("safety", "allowed_url_paths", ErrMissingRequiredField))
	}
	if len(s.AllowedDataOps) == 0 {
		errs = append(errs, NewValidationError("safety", "allowed_data_ops", ErrMissingRequiredField))
	}
	overlap := make(map[string]bool, len(s.AllowedDataOps))
	for _, op := range s.AllowedDataOps {
		overlap[op] = true
	}
	for _, op := range s.BlockedDataOps {
		if overlap[op] {
			errs = append(errs, NewValidationError("safety", "blocked_data_ops",
				fmt.Errorf("%w: %q is both allowed and blocked", ErrInvalidValue, op)))
		}
	}
	return errs
}
