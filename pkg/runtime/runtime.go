// Package runtime abstracts sandbox container execution over two
// backends: a Direct runtime that shells out to a local rootless podman
// on Linux, and a VM-tunnelled runtime that proxies the same podman CLI
// invocations into a Lima microVM for macOS. Neither backend talks to a
// container engine over its Go client API — every operation is an opaque
// CLI subprocess, matching how a developer would drive podman by hand.
package runtime

import (
	"context"

	"github.com/minotaur-dev/minotaur/pkg/types"
)

// BuildErrorTailLines bounds how many trailing lines of combined
// stdout+stderr are retained for an image build failure message.
const BuildErrorTailLines = 50

// Runtime is the container lifecycle contract both backends implement.
type Runtime interface {
	// IsAvailable reports whether this backend's prerequisites (the CLI
	// binary, rootless configuration, a running VM) are currently met.
	IsAvailable(ctx context.Context) (bool, error)

	// EnsureReady brings the backend up to a usable state, starting a
	// VM or validating rootless setup as needed. It returns a
	// descriptive error rather than silently failing later.
	EnsureReady(ctx context.Context) error

	Run(ctx context.Context, config types.ContainerConfig, command []string) (string, error)
	Attach(ctx context.Context, containerID string) (int, error)
	Stop(ctx context.Context, containerID string) error
	Kill(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	Logs(ctx context.Context, containerID string, lines int) (string, error)
	LogsFollow(ctx context.Context, containerID string) error

	RuntimeName() string

	// ImageExists reports whether tag is already present in the backend's
	// local image store.
	ImageExists(ctx context.Context, tag string) (bool, error)
	// BuildImage builds buildDir's Dockerfile and tags the result tag.
	BuildImage(ctx context.Context, buildDir, tag string) error
	// ImageRemove removes a locally built image by tag.
	ImageRemove(ctx context.Context, tag string) error
	// ImageListPrefixed lists local image references (repository:tag) whose
	// name starts with prefix.
	ImageListPrefixed(ctx context.Context, prefix string) ([]string, error)

	VolumeCreate(ctx context.Context, name string, labels map[string]string) error
	VolumeExists(ctx context.Context, name string) (bool, error)
	VolumeRemove(ctx context.Context, name string) error
	VolumeList(ctx context.Context, prefix string) ([]types.VolumeInfo, error)
	VolumeInspect(ctx context.Context, name string) (*types.VolumeInfo, error)
	VolumeDiskUsage(ctx context.Context, prefix string) (map[string]int64, error)
}
