// Package config loads, expands, and validates this service's YAML
// configuration, following the teacher's pkg/config/loader.go shape: a
// typed Config struct assembled from one YAML file plus environment
// overrides, validated once at startup.
package config

import "time"

// Config is the fully-resolved, read-only configuration for one process
// run. Nothing in the pipeline mutates it after Initialize returns.
type Config struct {
	configDir string

	Server   ServerConfig
	Database DatabaseConfig
	Tenant   TenantConfig
	LLM      LLMConfig
	Safety   SafetyConfig
	Sandbox  SandboxConfig
	Executor ExecutorConfig
	Formatter FormatterConfig
}

// ServerConfig controls the HTTP/SSE surface (spec.md §6.1).
type ServerConfig struct {
	Address           string        `yaml:"address"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	SSEBufferSize     int           `yaml:"sse_buffer_size"`
	AllowedCORSOrigin string        `yaml:"allowed_cors_origin"`
}

// DatabaseConfig configures the control-plane store (GORM over Postgres).
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// TenantConfig names the Okta tenant this process is allowed to query,
// and the schema/API catalog file it loads at startup.
type TenantConfig struct {
	Host        string `yaml:"host"`
	CatalogPath string `yaml:"catalog_path"`
	APITokenEnv string `yaml:"api_token_env"`
}

// LLMConfig configures the LLM agent wrapper (C3) and its transport (C2).
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig configures the Retrying Transport (C2, spec.md §4.2).
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseWait        time.Duration `yaml:"base_wait"`
	MaxWait         time.Duration `yaml:"max_wait"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// SafetyConfig configures the Safety Validator (C1, spec.md §4.1).
type SafetyConfig struct {
	AllowedURLPaths   []string `yaml:"allowed_url_paths"`
	BlockedHostSubstr []string `yaml:"blocked_host_substrings"`
	AllowedDataOps    []string `yaml:"allowed_data_ops"`
	BlockedDataOps    []string `yaml:"blocked_data_ops"`
}

// SandboxConfig configures generated-script execution (spec.md §4.5/§5).
type SandboxConfig struct {
	WallClockTimeout time.Duration `yaml:"wall_clock_timeout"`
	MaxOutputBytes   int64         `yaml:"max_output_bytes"`
	AllowedEnvKeys   []string      `yaml:"allowed_env_keys"`
}

// ExecutorConfig configures the Step Executor (C5, spec.md §4.5).
type ExecutorConfig struct {
	SampleRowsPerStep int `yaml:"sample_rows_per_step"`
	SampleStringChars int `yaml:"sample_string_chars"`
	SampleListItems   int `yaml:"sample_list_items"`
}

// FormatterConfig configures the Result Formatter's mode-selection
// threshold (spec.md §4.6).
type FormatterConfig struct {
	TokenThreshold int `yaml:"token_threshold"`
}

// ConfigDir returns the directory this config was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }
