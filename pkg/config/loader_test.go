package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  address: ":9090"
tenant:
  host: example.okta.com
  catalog_path: catalog.json
  api_token_env: TEST_OKTA_TOKEN
llm:
  provider: openai
  model: gpt-4o
  api_key_env: TEST_OPENAI_KEY
database:
  dsn: postgres://localhost/test
`

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
}

func TestInitializeSuccess(t *testing.T) {
	t.Setenv("TEST_OKTA_TOKEN", "tok")
	t.Setenv("TEST_OPENAI_KEY", "key")

	dir := t.TempDir()
	writeConfig(t, dir, validYAML)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "example.okta.com", cfg.Tenant.Host)
	assert.Equal(t, 3, cfg.LLM.Retry.MaxAttempts) // default applied
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestInitializeMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestInitializeMissingEnvVar(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, validYAML)
	// deliberately not setting TEST_OKTA_TOKEN / TEST_OPENAI_KEY
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitializeInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server:\n  address: [unterminated")
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestEnvExpandInConfig(t *testing.T) {
	t.Setenv("TEST_OKTA_TOKEN", "tok")
	t.Setenv("TEST_OPENAI_KEY", "key")
	t.Setenv("TEST_TENANT_HOST", "expanded.okta.com")

	dir := t.TempDir()
	writeConfig(t, dir, `
tenant:
  host: ${TEST_TENANT_HOST}
  catalog_path: catalog.json
  api_token_env: TEST_OKTA_TOKEN
llm:
  provider: openai
  model: gpt-4o
  api_key_env: TEST_OPENAI_KEY
database:
  dsn: postgres://localhost/test
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "expanded.okta.com", cfg.Tenant.Host)
}
