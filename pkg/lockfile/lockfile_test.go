package lockfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/lockfile"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

func TestHashDeterministicAndLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package-lock.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"test"}`), 0o644))

	first, err := lockfile.Detect(dir)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := lockfile.Detect(dir)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, first[0].Hash, second[0].Hash)
	assert.Len(t, first[0].Hash, 12)
}

func TestHashDiffersWithContent(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir1, "yarn.lock"), []byte("content 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir2, "yarn.lock"), []byte("content 2"), 0o644))

	l1, err := lockfile.Detect(dir1)
	require.NoError(t, err)
	l2, err := lockfile.Detect(dir2)
	require.NoError(t, err)

	assert.NotEqual(t, l1[0].Hash, l2[0].Hash)
}

func TestDetectMultipleEcosystems(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte(""), 0o644))

	found, err := lockfile.Detect(dir)
	require.NoError(t, err)
	require.Len(t, found, 2)

	var ecosystems []types.Ecosystem
	for _, l := range found {
		ecosystems = append(ecosystems, l.Ecosystem)
	}
	assert.Contains(t, ecosystems, types.EcosystemNpm)
	assert.Contains(t, ecosystems, types.EcosystemCargo)
}

func TestDetectFirstMatchPerEcosystem(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package-lock.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "npm-shrinkwrap.json"), []byte("{}"), 0o644))

	found, err := lockfile.Detect(dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, filepath.Join(dir, "package-lock.json"), found[0].Path)
}

func TestDetectEmptyDir(t *testing.T) {
	found, err := lockfile.Detect(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestVolumeName(t *testing.T) {
	info := types.LockfileInfo{Ecosystem: types.EcosystemNpm, Hash: "a1b2c3d4e5f6"}
	assert.Equal(t, "minotaur-cache-npm-a1b2c3d4e5f6", info.VolumeName("minotaur"))
}
