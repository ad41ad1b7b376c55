package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SetGetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok, err := s.Get("mario-config")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("mario-config", `{"config_vibe":true}`))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	v, ok, err := reopened.Get("mario-config")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"config_vibe":true}`, v)
}

func TestFileStore_StoresMalformedTextVerbatim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Set("k", "{not json"))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, _, _ := reopened.Get("k")
	assert.Equal(t, "{not json", v)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v"))
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()

	_, ok, _ := m.Get("k")
	assert.False(t, ok)

	require.NoError(t, m.Set("k", "v1"))
	require.NoError(t, m.Set("k", "v2"))

	v, ok, _ := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}
