//go:build darwin

package runtime

func newMacRuntime(dataDir string) (Runtime, error) {
	return NewVMTunnelRuntime(dataDir)
}
