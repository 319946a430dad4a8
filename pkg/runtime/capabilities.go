package runtime

import (
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// NormalizeCapabilities renders a bare podman capability list (e.g.
// "NET_ADMIN") as an OCI-shaped capability set, for audit logging
// alongside the session record. The bare names themselves are still what
// gets passed to `podman run --cap-add`; this exists purely to record the
// grant in the vocabulary an OCI runtime config would use.
func NormalizeCapabilities(capAdd []string) *specs.LinuxCapabilities {
	if len(capAdd) == 0 {
		return nil
	}
	names := make([]string, len(capAdd))
	for i, c := range capAdd {
		names[i] = ociCapName(c)
	}
	return &specs.LinuxCapabilities{
		Bounding:    names,
		Effective:   names,
		Inheritable: names,
		Permitted:   names,
		Ambient:     names,
	}
}

func ociCapName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if strings.HasPrefix(name, "CAP_") {
		return name
	}
	return "CAP_" + name
}
