package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiYAML = `
endpoints:
  - id: ep_user_list
    entity: user
    operation: list
    http_method: GET
    url_pattern: /api/v1/users
    required: []
    optional:
      - name: filter
        description: SCIM filter expression
    notes: paginated
`

const schemaYAML = `
tables:
  - name: users
    columns:
      - name: id
        type: string
      - name: status
        type: string
    relationships: [group_memberships]
`

func writeCatalogFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api_catalog.yaml"), []byte(apiYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema_catalog.yaml"), []byte(schemaYAML), 0o644))
	return dir
}

func TestLoadCatalog(t *testing.T) {
	dir := writeCatalogFiles(t)

	c, err := Load(dir)
	require.NoError(t, err)

	ep, ok := c.LookupEndpoint("user", "list")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/users", ep.URLPattern)
	assert.True(t, c.HasTable("users"))
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
}
