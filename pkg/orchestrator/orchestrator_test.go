package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/config"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

func TestResolveProjectDirDefaultsToCwd(t *testing.T) {
	dir, err := resolveProjectDir("")
	require.NoError(t, err)
	assert.NotEmpty(t, dir)
}

func TestResolveProjectDirAbsolutises(t *testing.T) {
	dir, err := resolveProjectDir(".")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
}

func TestEcosystemNames(t *testing.T) {
	names := ecosystemNames([]types.LockfileInfo{
		{Ecosystem: types.EcosystemNpm},
		{Ecosystem: types.EcosystemCargo},
	})
	assert.Equal(t, []string{"npm", "cargo"}, names)
}

func TestBuildContainerConfigMergesVolumesAndEnv(t *testing.T) {
	cfg := config.Default()
	cfg.Container.Volumes = []string{"host-vol:/mnt"}

	opts := RunOptions{VolumeOverrides: []string{"extra:/extra"}}
	mounts := []types.CacheMount{{VolumeName: "minotaur-cache-npm-abc", ContainerPath: "/cache", Readonly: false}}

	cc := buildContainerConfig("minotaur-composed-abc123", cfg, mounts, opts, map[string]string{"FOO": "bar"}, types.NetworkMode{Kind: types.NetworkBridge})

	assert.Contains(t, cc.Volumes, "host-vol:/mnt")
	assert.Contains(t, cc.Volumes, "extra:/extra")
	assert.Contains(t, cc.Volumes, "minotaur-cache-npm-abc:/cache")
	assert.Equal(t, "bar", cc.Env["FOO"])
	assert.True(t, cc.AutoRemove)
}

func TestBuildContainerConfigAllowModeAddsCapNetAdmin(t *testing.T) {
	cfg := config.Default()
	mode := types.NetworkMode{Kind: types.NetworkAllow, Rules: []types.NetworkRule{{Host: "example.com", Port: 443}}}

	cc := buildContainerConfig("img", cfg, nil, RunOptions{}, map[string]string{}, mode)

	assert.Contains(t, cc.CapAdd, "NET_ADMIN")
}

func TestWrapWithNetworkPolicyProducesShellInvocation(t *testing.T) {
	command := wrapWithNetworkPolicy([]types.NetworkRule{{Host: "example.com", Port: 443}}, []string{"npm", "install"})
	require.Len(t, command, 3)
	assert.Equal(t, "/bin/sh", command[0])
	assert.Equal(t, "-c", command[1])
	assert.Contains(t, command[2], "example.com")
	assert.Contains(t, command[2], "npm")
}
