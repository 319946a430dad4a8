package volume_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/types"
	"github.com/minotaur-dev/minotaur/pkg/volume"
)

func TestCacheStateReadonly(t *testing.T) {
	assert.False(t, types.CacheStateMiss.IsReadonly())
	assert.False(t, types.CacheStateBuilding.IsReadonly())
	assert.True(t, types.CacheStateComplete.IsReadonly())
}

func TestCacheStateLabelRoundtrip(t *testing.T) {
	for _, state := range []types.CacheState{types.CacheStateBuilding, types.CacheStateComplete} {
		label := state.AsLabel()
		assert.Equal(t, state, types.CacheVolumeLabelFromState(label))
	}
}

func TestNewVolume(t *testing.T) {
	vol := volume.New(types.EcosystemNpm, "abc123def456", types.CacheStateBuilding)
	assert.Equal(t, "minotaur-cache-npm-abc123def456", vol.Name)
	assert.Equal(t, types.EcosystemNpm, vol.Ecosystem)
	assert.Equal(t, types.CacheStateBuilding, vol.State)
}

func TestFromLockfile(t *testing.T) {
	info := types.LockfileInfo{Ecosystem: types.EcosystemCargo, Hash: "a1b2c3d4e5f6"}
	vol := volume.FromLockfile(info, types.CacheStateComplete)
	assert.Equal(t, "minotaur-cache-cargo-a1b2c3d4e5f6", vol.Name)
}

func TestLabels(t *testing.T) {
	vol := volume.New(types.EcosystemNpm, "abc123", types.CacheStateBuilding)
	labels := volume.Labels(vol)

	assert.Equal(t, "true", labels[volume.LabelCache])
	assert.Equal(t, "npm", labels[volume.LabelEcosystem])
	assert.Equal(t, "abc123", labels[volume.LabelHash])
	assert.Equal(t, "building", labels[volume.LabelState])
}

func TestFromLabelsRoundtrip(t *testing.T) {
	labels := map[string]string{
		volume.LabelCache:     "true",
		volume.LabelEcosystem: "cargo",
		volume.LabelHash:      "xyz789",
		volume.LabelState:     "complete",
		volume.LabelCreatedAt: "2024-01-15T10:00:00Z",
	}

	vol, ok := volume.FromLabels("minotaur-cache-cargo-xyz789", labels)
	require.True(t, ok)
	assert.Equal(t, types.EcosystemCargo, vol.Ecosystem)
	assert.Equal(t, "xyz789", vol.Hash)
	assert.Equal(t, types.CacheStateComplete, vol.State)
}

func TestFromLabelsTolerantDecoding(t *testing.T) {
	labels := map[string]string{
		volume.LabelCache:     "true",
		volume.LabelEcosystem: "npm",
		volume.LabelHash:      "abc123",
		// missing state and created_at
	}

	vol, ok := volume.FromLabels("minotaur-cache-npm-abc123", labels)
	require.True(t, ok)
	assert.Equal(t, types.CacheStateBuilding, vol.State)
	assert.WithinDuration(t, time.Now().UTC(), vol.CreatedAt, 5*time.Second)
}

func TestFromLabelsRejectsNonCacheVolume(t *testing.T) {
	_, ok := volume.FromLabels("some-other-volume", map[string]string{"foo": "bar"})
	assert.False(t, ok)
}

func TestCacheMountVolumeArg(t *testing.T) {
	mount := types.CacheMount{VolumeName: "minotaur-cache-npm-abc123", ContainerPath: "/cache", Readonly: true}
	assert.Equal(t, "minotaur-cache-npm-abc123:/cache:ro", mount.VolumeArg())

	mount.Readonly = false
	assert.Equal(t, "minotaur-cache-npm-abc123:/cache", mount.VolumeArg())
}

func TestPlanMountsMiss(t *testing.T) {
	lockfiles := []types.LockfileInfo{{Ecosystem: types.EcosystemNpm, Hash: "abc123def456"}}
	mounts := volume.PlanMounts(lockfiles, map[string]types.CacheState{})

	require.Len(t, mounts, 1)
	assert.False(t, mounts[0].Readonly)
}

func TestPlanMountsComplete(t *testing.T) {
	lockfiles := []types.LockfileInfo{{Ecosystem: types.EcosystemNpm, Hash: "abc123def456"}}
	states := map[string]types.CacheState{"minotaur-cache-npm-abc123def456": types.CacheStateComplete}
	mounts := volume.PlanMounts(lockfiles, states)

	require.Len(t, mounts, 1)
	assert.True(t, mounts[0].Readonly)
}

func TestSizeStatusFromUsage(t *testing.T) {
	assert.Equal(t, volume.SizeOK, volume.SizeStatusFromUsage(1, 0))
	assert.Equal(t, volume.SizeOK, volume.SizeStatusFromUsage(50, 100))
	assert.Equal(t, volume.SizeWarning, volume.SizeStatusFromUsage(85, 100))
	assert.Equal(t, volume.SizeExceeded, volume.SizeStatusFromUsage(100, 100))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", volume.FormatBytes(512))
	assert.Equal(t, "1.0 KB", volume.FormatBytes(1024))
	assert.Equal(t, "1.5 GB", volume.FormatBytes(int64(1.5*1024*1024*1024)))
}
