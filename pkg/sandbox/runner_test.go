package sandbox

import (
	"os"
	"testing"

	"github.com/fctr-io/okta-query-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilteredEnvOnlyIncludesAllowedAndControlKeys(t *testing.T) {
	require.NoError(t, os.Setenv("OKTA_QE_TEST_ALLOWED", "visible"))
	require.NoError(t, os.Setenv("OKTA_QE_TEST_SECRET", "hidden"))
	defer func() {
		_ = os.Unsetenv("OKTA_QE_TEST_ALLOWED")
		_ = os.Unsetenv("OKTA_QE_TEST_SECRET")
	}()

	env := filteredEnv([]string{"OKTA_QE_TEST_ALLOWED"}, map[string]string{envTenantHost: "example.okta.com"})

	assert.Contains(t, env, "OKTA_QE_TEST_ALLOWED=visible")
	assert.Contains(t, env, envTenantHost+"=example.okta.com")
	for _, e := range env {
		assert.NotContains(t, e, "hidden")
	}
}

func TestLimitWriterTruncatesAfterMax(t *testing.T) {
	var buf limitBuf
	lw := &limitWriter{w: &buf, max: 5}

	n, err := lw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.False(t, lw.truncated)

	_, err = lw.Write([]byte("world"))
	require.NoError(t, err)
	assert.True(t, lw.truncated)
}

type limitBuf struct{ data []byte }

func (b *limitBuf) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func TestCatalogSnapshotRoundTrip(t *testing.T) {
	catalog := models.NewCatalog(
		[]models.Endpoint{{ID: "ep1", Entity: "user", Operation: "list", URLPattern: "/api/v1/users"}},
		[]models.Table{{Name: "users"}},
	)
	snap := catalogSnapshotOf(catalog)
	rebuilt := catalogFromSnapshot(snap)

	ep, ok := rebuilt.LookupEndpoint("user", "list")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/users", ep.URLPattern)
	assert.True(t, rebuilt.HasTable("users"))
}
