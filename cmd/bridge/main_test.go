package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BRIDGE_TEST_OWM_KEY=abc123\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("BRIDGE_TEST_OWM_KEY") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "abc123", os.Getenv("BRIDGE_TEST_OWM_KEY"))
}
