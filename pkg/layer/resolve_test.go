package layer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/layer"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

func TestResolveBuiltinRust(t *testing.T) {
	layers, err := layer.Resolve([]string{"rust"}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "rust", layers[0].Manifest.Name)
	assert.Equal(t, types.LayerSourceBuiltIn, layers[0].Source)
	assert.NotNil(t, layers[0].ScriptContent)
}

func TestResolveBuiltinAliases(t *testing.T) {
	for _, name := range []string{"cargo", "ts", "node", "typescript"} {
		layers, err := layer.Resolve([]string{name}, t.TempDir())
		require.NoError(t, err, name)
		require.Len(t, layers, 1)
	}
}

func TestResolveUnknownLayerErrors(t *testing.T) {
	_, err := layer.Resolve([]string{"nonexistent"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolveProjectLocalLayer(t *testing.T) {
	dir := t.TempDir()
	layerDir := filepath.Join(dir, ".minotaur", "layers", "custom")
	require.NoError(t, os.MkdirAll(layerDir, 0o755))

	manifest := `
[layer]
name = "custom"
description = "Custom layer"
version = "1"

[env]
MY_VAR = "/custom/path"
`
	require.NoError(t, os.WriteFile(filepath.Join(layerDir, "layer.toml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(layerDir, "install.sh"), []byte("#!/bin/bash\necho ok"), 0o755))

	layers, err := layer.Resolve([]string{"custom"}, dir)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "custom", layers[0].Manifest.Name)
	assert.Equal(t, types.LayerSourceProjectLocal, layers[0].Source)
	assert.Empty(t, layers[0].ScriptContent)
	assert.NotEmpty(t, layers[0].ScriptPath)
}

func TestResolveMissingScriptErrors(t *testing.T) {
	dir := t.TempDir()
	layerDir := filepath.Join(dir, ".minotaur", "layers", "broken")
	require.NoError(t, os.MkdirAll(layerDir, 0o755))

	manifest := `
[layer]
name = "broken"
description = "Broken layer"
version = "1"
`
	require.NoError(t, os.WriteFile(filepath.Join(layerDir, "layer.toml"), []byte(manifest), 0o644))

	_, err := layer.Resolve([]string{"broken"}, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "install.sh")
}

func TestProjectLocalOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	layerDir := filepath.Join(dir, ".minotaur", "layers", "rust")
	require.NoError(t, os.MkdirAll(layerDir, 0o755))

	manifest := `
[layer]
name = "rust"
description = "Custom Rust"
version = "99"
`
	require.NoError(t, os.WriteFile(filepath.Join(layerDir, "layer.toml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(layerDir, "install.sh"), []byte("#!/bin/bash\necho custom"), 0o755))

	layers, err := layer.Resolve([]string{"rust"}, dir)
	require.NoError(t, err)
	assert.Equal(t, "99", layers[0].Manifest.Version)
	assert.Equal(t, types.LayerSourceProjectLocal, layers[0].Source)
}

func TestEmbeddedScriptContent(t *testing.T) {
	layers, err := layer.Resolve([]string{"rust"}, t.TempDir())
	require.NoError(t, err)
	content, err := layer.Content(layers[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "rustup")
	assert.Contains(t, string(content), "cargo-binstall")
}
