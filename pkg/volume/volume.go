// Package volume plans and tracks the lifecycle of content-addressed
// dependency cache volumes as podman named volumes: the state machine
// lives entirely in volume labels, with no central index to go stale.
package volume

import (
	"fmt"
	"time"

	"github.com/minotaur-dev/minotaur/pkg/types"
)

// Label keys written onto a cache volume at creation and read back on
// every subsequent session to recover its state.
const (
	LabelCache     = "io.minotaur.cache"
	LabelEcosystem = "io.minotaur.cache.ecosystem"
	LabelHash      = "io.minotaur.cache.hash"
	LabelState     = "io.minotaur.cache.state"
	LabelCreatedAt = "io.minotaur.cache.created_at"
)

// SizeStatus classifies current cache usage against a configured limit.
type SizeStatus string

const (
	SizeOK       SizeStatus = "ok"
	SizeWarning  SizeStatus = "warning"
	SizeExceeded SizeStatus = "exceeded"
)

// SizeStatusFromUsage reports Ok below 80% of limitBytes, Warning between
// 80% and 100%, and Exceeded at or past it. A zero limit disables the
// check entirely (always Ok) since it means no quota was configured.
func SizeStatusFromUsage(currentBytes, limitBytes int64) SizeStatus {
	if limitBytes == 0 {
		return SizeOK
	}
	pct := SizePercentage(currentBytes, limitBytes)
	switch {
	case pct >= 100.0:
		return SizeExceeded
	case pct >= 80.0:
		return SizeWarning
	default:
		return SizeOK
	}
}

// SizePercentage returns currentBytes as a percentage of limitBytes.
func SizePercentage(currentBytes, limitBytes int64) float64 {
	if limitBytes == 0 {
		return 0
	}
	return float64(currentBytes) / float64(limitBytes) * 100.0
}

// FormatBytes renders a byte count using binary (1024) units, matching the
// sizes podman itself reports.
func FormatBytes(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// GBToBytes converts a whole number of gigabytes to bytes, for interpreting
// a configured cache size limit.
func GBToBytes(gb int) int64 {
	return int64(gb) * 1024 * 1024 * 1024
}

// New constructs a CacheVolume record for the given ecosystem and lockfile
// hash, named per minotaur's fixed volume naming convention.
func New(ecosystem types.Ecosystem, hash string, state types.CacheState) types.CacheVolume {
	return types.CacheVolume{
		Name:      "minotaur-cache-" + string(ecosystem) + "-" + hash,
		Ecosystem: ecosystem,
		Hash:      hash,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}
}

// FromLockfile constructs a new CacheVolume record from detected lockfile
// info, for a volume that does not yet exist.
func FromLockfile(info types.LockfileInfo, state types.CacheState) types.CacheVolume {
	return New(info.Ecosystem, info.Hash, state)
}

// Labels renders the full label set to apply when creating the volume.
func Labels(v types.CacheVolume) map[string]string {
	return map[string]string{
		LabelCache:     "true",
		LabelEcosystem: string(v.Ecosystem),
		LabelHash:      v.Hash,
		LabelState:     v.State.AsLabel(),
		LabelCreatedAt: v.CreatedAt.Format(time.RFC3339),
	}
}

func parseEcosystem(s string) (types.Ecosystem, bool) {
	for _, e := range types.Ecosystems {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// FromLabels decodes a podman volume's labels back into a CacheVolume.
// Decoding is tolerant by design: a missing or garbled created-at falls
// back to now, and a missing or unrecognised state falls back to
// Building, so a half-written label set never masquerades as Complete.
// It returns false when the label set doesn't look like a minotaur cache
// volume at all (missing the cache marker, ecosystem, or hash).
func FromLabels(name string, labels map[string]string) (types.CacheVolume, bool) {
	if labels[LabelCache] != "true" {
		return types.CacheVolume{}, false
	}
	ecosystem, ok := parseEcosystem(labels[LabelEcosystem])
	if !ok {
		return types.CacheVolume{}, false
	}
	hash, ok := labels[LabelHash]
	if !ok || hash == "" {
		return types.CacheVolume{}, false
	}

	state := types.CacheVolumeLabelFromState(labels[LabelState])

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		createdAt = time.Now().UTC()
	}

	return types.CacheVolume{
		Name:      name,
		Ecosystem: ecosystem,
		Hash:      hash,
		State:     state,
		CreatedAt: createdAt,
	}, true
}

// IsOlderThanDays reports whether v was created more than days ago.
func IsOlderThanDays(v types.CacheVolume, days int, now time.Time) bool {
	cutoff := now.AddDate(0, 0, -days)
	return v.CreatedAt.Before(cutoff)
}

// PlanMounts derives the cache mount plan for a set of detected lockfiles.
// volumeStates maps an existing volume's name to its current state;
// lockfiles with no entry default to Miss, which mounts read-write so the
// sandbox can populate the cache for the first time.
func PlanMounts(lockfiles []types.LockfileInfo, volumeStates map[string]types.CacheState) []types.CacheMount {
	mounts := make([]types.CacheMount, 0, len(lockfiles))
	for _, info := range lockfiles {
		name := info.VolumeName("minotaur")
		state, ok := volumeStates[name]
		if !ok {
			state = types.CacheStateMiss
		}
		mounts = append(mounts, types.CacheMount{
			VolumeName:    name,
			ContainerPath: "/cache/" + info.Ecosystem.CacheDir(),
			Readonly:      state.IsReadonly(),
			Ecosystem:     info.Ecosystem,
		})
	}
	return mounts
}
