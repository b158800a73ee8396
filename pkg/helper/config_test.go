package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir is a stand-in for t.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestGetCfgPath_Absolute(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "walletd.yaml")
	assert.Equal(t, abs, GetCfgPath(abs))
}

func TestGetCfgPath_LocalFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "walletd.yaml"), []byte("{}"), 0644))
	chdir(t, dir)

	got := GetCfgPath("walletd.yaml")
	assert.Equal(t, filepath.Join(dir, "walletd.yaml"), got)
}

func TestGetCfgPath_ConfigsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "walletd.yaml"), []byte("{}"), 0644))
	chdir(t, dir)

	got := GetCfgPath("walletd.yaml")
	assert.Equal(t, filepath.Join(dir, "configs", "walletd.yaml"), got)
}

func TestGetCfgPath_Fallback(t *testing.T) {
	chdir(t, t.TempDir())
	assert.Equal(t, "/etc/walletd/nonexistent.yaml", GetCfgPath("nonexistent.yaml"))
}

func TestGetCfgPath_EmptyPanics(t *testing.T) {
	assert.Panics(t, func() { GetCfgPath("") })
}
