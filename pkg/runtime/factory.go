package runtime

import (
	"runtime"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
)

// Platform identifies which runtime backend a host supports.
type Platform int

const (
	// PlatformLinux backs onto a local rootless podman directly.
	PlatformLinux Platform = iota
	// PlatformMacOS backs onto podman running inside a Lima microVM.
	PlatformMacOS
	// PlatformUnsupported means minotaur has no runtime backend for this OS.
	PlatformUnsupported
)

// DetectPlatform reports which backend the current host uses.
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "linux":
		return PlatformLinux
	default:
		return PlatformUnsupported
	}
}

// Name returns a human-readable platform name.
func (p Platform) Name() string {
	switch p {
	case PlatformLinux:
		return "Linux"
	case PlatformMacOS:
		return "macOS"
	default:
		return "Unsupported"
	}
}

// New creates the Runtime backend appropriate for the current platform.
// dataDir is only used by the macOS backend, where it is bind-mounted
// into the Lima VM.
func New(dataDir string) (Runtime, error) {
	switch DetectPlatform() {
	case PlatformLinux:
		return NewDirectRuntime(), nil
	case PlatformMacOS:
		return newMacRuntime(dataDir)
	default:
		return nil, minoerrors.UnsupportedPlatform(runtime.GOOS)
	}
}
