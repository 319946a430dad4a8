package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/config"
)

func TestLoadDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	manager := config.WithPath(filepath.Join(dir, "nonexistent.toml"))

	cfg, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, "minotaur", cfg.VM.Name)
	assert.Equal(t, "fedora:41", cfg.Container.Image)
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	manager := config.WithPath(filepath.Join(dir, "config.toml"))

	cfg := config.Default()
	cfg.VM.Name = "test-vm"

	require.NoError(t, manager.Save(cfg))
	loaded, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, "test-vm", loaded.VM.Name)
}

func TestLoadPartialPreservesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[vm]\nname = \"custom-vm\"\n"), 0o644))

	manager := config.WithPath(path)
	cfg, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, "custom-vm", cfg.VM.Name)
	assert.Equal(t, "fedora:41", cfg.Container.Image)
}

func TestLoadInvalidTOMLReturnsConfigInvalidError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not valid toml [[[ "), 0o644))

	manager := config.WithPath(path)
	_, err := manager.Load()
	assert.Error(t, err)
}

func TestMergeProjectOverrideReplacesWholeSections(t *testing.T) {
	projectDir := t.TempDir()
	override := "[vm]\nname = \"project-vm\"\ndistro = \"alpine\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".minotaur.toml"), []byte(override), 0o644))

	merged, err := config.MergeProjectOverride(config.Default(), projectDir)
	require.NoError(t, err)
	assert.Equal(t, "project-vm", merged.VM.Name)
	assert.Equal(t, "fedora:41", merged.Container.Image)
}

func TestMergeProjectOverrideNoFileReturnsBaseUnchanged(t *testing.T) {
	merged, err := config.MergeProjectOverride(config.Default(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), merged)
}
