package runtime

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestNormalizeCapabilitiesEmpty(t *testing.T) {
	if got := NormalizeCapabilities(nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestNormalizeCapabilitiesAddsOCIPrefix(t *testing.T) {
	got := NormalizeCapabilities([]string{"NET_ADMIN", "CAP_SYS_ADMIN", "net_raw"})
	want := &specs.LinuxCapabilities{
		Bounding:    []string{"CAP_NET_ADMIN", "CAP_SYS_ADMIN", "CAP_NET_RAW"},
		Effective:   []string{"CAP_NET_ADMIN", "CAP_SYS_ADMIN", "CAP_NET_RAW"},
		Inheritable: []string{"CAP_NET_ADMIN", "CAP_SYS_ADMIN", "CAP_NET_RAW"},
		Permitted:   []string{"CAP_NET_ADMIN", "CAP_SYS_ADMIN", "CAP_NET_RAW"},
		Ambient:     []string{"CAP_NET_ADMIN", "CAP_SYS_ADMIN", "CAP_NET_RAW"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("NormalizeCapabilities() mismatch (-want +got):\n%s", diff)
	}
}
