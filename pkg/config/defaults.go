package config

import "time"

// defaultConfig returns the built-in configuration baseline. load() merges
// the user's config.yaml on top of this with mergo.WithOverride, the same
// "start from defaults, merge user config on top" shape the teacher's
// loader.go uses for queue config.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:       ":8080",
			ReadTimeout:   30 * time.Second,
			SSEBufferSize: 64,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			MigrationsPath:  "pkg/database/migrations",
		},
		LLM: LLMConfig{
			RequestTimeout: 60 * time.Second, // spec.md §5 "per LLM call: 60s with C2 retries"
			Retry: RetryConfig{
				MaxAttempts:     3,
				BaseWait:        15 * time.Second,
				MaxWait:         600 * time.Second,
				RateLimitPerSec: 2,
				RateLimitBurst:  4,
			},
		},
		Safety: SafetyConfig{
			AllowedURLPaths:   []string{"/api/v1/", "/oauth2/", "/.well-known/", "/login/"},
			BlockedHostSubstr: []string{"localhost", "127.0.0.1", "bit.ly", "t.co", "tinyurl.com", "goo.gl"},
			AllowedDataOps:    []string{"filter", "select", "sort", "limit", "group_by", "aggregate", "join", "map", "distinct", "count", "to_dicts", "col"},
			BlockedDataOps:    []string{"__getattribute__", "__class__", "to_parquet", "write_csv", "sink_parquet", "sink_csv"},
		},
		Sandbox: SandboxConfig{
			WallClockTimeout: 180 * time.Second, // spec.md §5 "per sandbox execution: 180s default"
			MaxOutputBytes:   10 * 1024 * 1024,
		},
		Executor: ExecutorConfig{
			SampleRowsPerStep: 5,
			SampleStringChars: 150,
			SampleListItems:   3,
		},
		Formatter: FormatterConfig{
			TokenThreshold: 1000,
		},
	}
}
