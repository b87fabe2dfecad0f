// File: cmd/root_test.go
package cmd

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ch-sander/zotero-rdf-server/internal/config"
)

func TestInitializeViperDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := initializeViper()
	require.NoError(t, err)

	assert.Equal(t, 8000, v.GetInt("server.port"))
	assert.Equal(t, "memory", v.GetString("store.mode"))
	assert.Equal(t, "https://api.zotero.org", v.GetString("zotero.base_api_url"))
}

func TestInitializeViperEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ZRS_SERVER_PORT", "9000")
	t.Setenv("ZRS_STORE_MODE", "directory")

	v, err := initializeViper()
	require.NoError(t, err)

	assert.Equal(t, 9000, v.GetInt("server.port"))
	assert.Equal(t, "directory", v.GetString("store.mode"))
}

func TestInitializeViperReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 1234
libraries:
  - name: history
    library_id: "12345"
    library_type: users
    base_url: https://example.org/users/1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	v, err := initializeViper()
	require.NoError(t, err)

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Server().Port)
	require.Len(t, cfg.Libraries(), 1)
	// Per-library defaults are filled during load.
	assert.Equal(t, "json", cfg.Libraries()[0].LoadMode)
	assert.Equal(t, config.ZoteroNS, cfg.Libraries()[0].Mapping.Namespace)
}

func TestInitializeViperRejectsMalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	_, err := initializeViper()
	assert.Error(t, err)
}

func TestReportFailureAlwaysReachesStderr(t *testing.T) {
	original := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = original })

	reportFailure(errors.New("config defect"))

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "config defect")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"], "serve command must be registered")
	assert.True(t, names["refresh"], "refresh command must be registered")
}
