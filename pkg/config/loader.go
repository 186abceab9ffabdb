package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors config.yaml's on-disk shape 1:1 before defaults are
// applied, matching the teacher's TarsyYAMLConfig split between the raw
// file representation and the resolved Config.
type yamlConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Database  *DatabaseConfig  `yaml:"database"`
	Tenant    *TenantConfig    `yaml:"tenant"`
	LLM       *LLMConfig       `yaml:"llm"`
	Safety    *SafetyConfig    `yaml:"safety"`
	Sandbox   *SandboxConfig   `yaml:"sandbox"`
	Executor  *ExecutorConfig  `yaml:"executor"`
	Formatter *FormatterConfig `yaml:"formatter"`
}

// Initialize loads .env, reads config.yaml from configDir, expands
// environment variables, applies defaults, validates, and returns a
// ready-to-use Config. This is the sole entry point cmd/oktaqueryd calls.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	// godotenv.Load is a no-op (returns an ignorable error) when no .env
	// file is present, matching cmd/tarsy/main.go's startup sequence.
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", "error", err)
	}

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("configuration initialized",
		"tenant_host", cfg.Tenant.Host,
		"llm_provider", cfg.LLM.Provider,
		"server_address", cfg.Server.Address)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError("config.yaml", fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return nil, NewLoadError("config.yaml", err)
	}

	data = ExpandEnv(data)

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewLoadError("config.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	// Start from the built-in defaults, then merge the user's YAML on top —
	// non-zero fields in raw override the default, unset ones keep it,
	// the same shape as the teacher's mergo.Merge(queueConfig, ..., WithOverride).
	cfg := defaultConfig()
	cfg.configDir = configDir

	if raw.Server != nil {
		if err := mergo.Merge(&cfg.Server, *raw.Server, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging server config: %w", err))
		}
	}
	if raw.Database != nil {
		if err := mergo.Merge(&cfg.Database, *raw.Database, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging database config: %w", err))
		}
	}
	if raw.Tenant != nil {
		if err := mergo.Merge(&cfg.Tenant, *raw.Tenant, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging tenant config: %w", err))
		}
	}
	if raw.LLM != nil {
		if err := mergo.Merge(&cfg.LLM, *raw.LLM, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging llm config: %w", err))
		}
	}
	if raw.Safety != nil {
		if err := mergo.Merge(&cfg.Safety, *raw.Safety, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging safety config: %w", err))
		}
	}
	if raw.Sandbox != nil {
		if err := mergo.Merge(&cfg.Sandbox, *raw.Sandbox, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging sandbox config: %w", err))
		}
	}
	if raw.Executor != nil {
		if err := mergo.Merge(&cfg.Executor, *raw.Executor, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging executor config: %w", err))
		}
	}
	if raw.Formatter != nil {
		if err := mergo.Merge(&cfg.Formatter, *raw.Formatter, mergo.WithOverride); err != nil {
			return nil, NewLoadError("config.yaml", fmt.Errorf("merging formatter config: %w", err))
		}
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	v := &Validator{cfg: cfg}
	return v.ValidateAll()
}
