//go:build darwin

package runtime

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/embedded"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// VMTunnelRuntime drives podman inside a Lima microVM. The host process
// never dials a socket or links a client library; every call is a
// `limactl shell minotaur -- podman ...` subprocess, so the VM sees the
// exact same invocations a DirectRuntime would issue locally.
type VMTunnelRuntime struct {
	vm *embedded.VMManager
}

// NewVMTunnelRuntime constructs a VMTunnelRuntime backed by a Lima VM
// manager rooted at dataDir.
func NewVMTunnelRuntime(dataDir string) (*VMTunnelRuntime, error) {
	vm, err := embedded.NewVMManager(dataDir)
	if err != nil {
		return nil, err
	}
	return &VMTunnelRuntime{vm: vm}, nil
}

func (r *VMTunnelRuntime) podman(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"podman"}, args...)
	log.Debug().Strs("args", full).Msg("executing podman in microVM")
	return r.vm.Exec(ctx, full...)
}

func (r *VMTunnelRuntime) execOK(ctx context.Context, args ...string) bool {
	_, err := r.podman(ctx, args...)
	return err == nil
}

func (r *VMTunnelRuntime) IsAvailable(ctx context.Context) (bool, error) {
	if !r.vm.IsRunning() {
		return false, nil
	}
	return r.execOK(ctx, "--version"), nil
}

func (r *VMTunnelRuntime) EnsureReady(ctx context.Context) error {
	if !r.vm.IsRunning() {
		if err := r.vm.Start(ctx); err != nil {
			return minoerrors.VMStartFailed(err.Error())
		}
	}
	if err := r.vm.EnsurePodman(ctx); err != nil {
		return minoerrors.VMStartFailed(err.Error())
	}
	return nil
}

func (r *VMTunnelRuntime) imageExists(ctx context.Context, image string) bool {
	return r.execOK(ctx, "image", "exists", image)
}

func (r *VMTunnelRuntime) pull(ctx context.Context, image string) error {
	out, err := r.podman(ctx, "pull", image)
	if err != nil {
		return err
	}
	if !r.imageExists(ctx, image) {
		return minoerrors.ImagePullFailed(image, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *VMTunnelRuntime) Run(ctx context.Context, config types.ContainerConfig, command []string) (string, error) {
	if !r.vm.IsRunning() {
		return "", minoerrors.VMNotRunning(embedded.InstanceName)
	}
	if !r.imageExists(ctx, config.Image) {
		if err := r.pull(ctx, config.Image); err != nil {
			return "", err
		}
	}

	args := []string{"run", "-d"}
	if config.Interactive {
		args = append(args, "-i")
	}
	if config.TTY {
		args = append(args, "-t")
	}
	args = PushArgs(args, config, command)

	out, err := r.podman(ctx, args...)
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	containerID := strings.TrimSpace(lines[len(lines)-1])
	if containerID == "" {
		return "", minoerrors.ContainerStart(strings.TrimSpace(string(out)))
	}
	shortID := containerID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}
	log.Info().Str("container_id", shortID).Msg("container started in microVM")
	return containerID, nil
}

// Attach allocates a real pseudo-terminal for the `limactl shell` subprocess,
// so an interactive session feels the same as attaching to a local podman
// container even though podman is running inside the VM.
func (r *VMTunnelRuntime) Attach(ctx context.Context, containerID string) (int, error) {
	cmd := exec.CommandContext(ctx, "limactl", "shell", embedded.InstanceName, "--", "podman", "attach", containerID)
	return attachViaPTY(cmd, "limactl shell podman attach "+containerID)
}

func (r *VMTunnelRuntime) Stop(ctx context.Context, containerID string) error {
	_, err := r.podman(ctx, "stop", containerID)
	return err
}

func (r *VMTunnelRuntime) Kill(ctx context.Context, containerID string) error {
	out, err := r.podman(ctx, "kill", containerID)
	if err != nil && strings.Contains(string(out), "no such container") {
		return nil
	}
	return err
}

func (r *VMTunnelRuntime) Remove(ctx context.Context, containerID string) error {
	out, err := r.podman(ctx, "rm", "-f", containerID)
	if err != nil && strings.Contains(string(out), "no such container") {
		return nil
	}
	return err
}

func (r *VMTunnelRuntime) Logs(ctx context.Context, containerID string, lines int) (string, error) {
	tail := "all"
	if lines > 0 {
		tail = strconv.Itoa(lines)
	}
	out, err := r.podman(ctx, "logs", "--tail", tail, containerID)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *VMTunnelRuntime) LogsFollow(ctx context.Context, containerID string) error {
	cmd := exec.CommandContext(ctx, "limactl", "shell", embedded.InstanceName, "--", "podman", "logs", "-f", containerID)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (r *VMTunnelRuntime) RuntimeName() string { return "VM-tunnelled podman (Lima)" }

func (r *VMTunnelRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	return r.execOK(ctx, "image", "exists", tag), nil
}

// BuildImage runs `podman build` inside the microVM against buildDir.
// buildDir must be a path Lima's default config already mounts into the
// guest (the composer places it under the user's home directory for
// exactly this reason).
func (r *VMTunnelRuntime) BuildImage(ctx context.Context, buildDir, tag string) error {
	out, err := r.podman(ctx, "build", "-t", tag, buildDir)
	if err != nil {
		return minoerrors.ImageBuildFailed(tag, strings.TrimSpace(lastLines(string(out), BuildErrorTailLines)))
	}
	return nil
}

func (r *VMTunnelRuntime) ImageRemove(ctx context.Context, tag string) error {
	out, err := r.podman(ctx, "rmi", "-f", tag)
	if err != nil && strings.Contains(string(out), "no such image") {
		return nil
	}
	return err
}

func (r *VMTunnelRuntime) ImageListPrefixed(ctx context.Context, prefix string) ([]string, error) {
	out, err := r.podman(ctx, "images", "--format", "{{.Repository}}:{{.Tag}}")
	if err != nil {
		return nil, err
	}
	var result []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.HasPrefix(line, prefix) {
			result = append(result, line)
		}
	}
	return result, nil
}

func (r *VMTunnelRuntime) VolumeCreate(ctx context.Context, name string, labels map[string]string) error {
	args := []string{"volume", "create"}
	for k, v := range labels {
		args = append(args, "--label", k+"="+v)
	}
	args = append(args, name)

	out, err := r.podman(ctx, args...)
	if err != nil {
		return err
	}
	if !r.execOK(ctx, "volume", "exists", name) {
		return minoerrors.VolumeCreateFailed(name, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *VMTunnelRuntime) VolumeExists(ctx context.Context, name string) (bool, error) {
	return r.execOK(ctx, "volume", "exists", name), nil
}

func (r *VMTunnelRuntime) VolumeRemove(ctx context.Context, name string) error {
	out, err := r.podman(ctx, "volume", "rm", "-f", name)
	if err != nil && strings.Contains(string(out), "no such volume") {
		return nil
	}
	return err
}

func (r *VMTunnelRuntime) VolumeList(ctx context.Context, prefix string) ([]types.VolumeInfo, error) {
	out, err := r.podman(ctx, "volume", "ls", "--format", "json")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(out)) == "" {
		return nil, nil
	}

	var raw []podmanVolumeJSON
	if jsonErr := json.Unmarshal(out, &raw); jsonErr != nil {
		return nil, minoerrors.Serialization("parsing podman volume ls output from microVM", jsonErr)
	}

	var result []types.VolumeInfo
	for _, v := range raw {
		if !strings.HasPrefix(v.Name, prefix) {
			continue
		}
		result = append(result, types.VolumeInfo{
			Name:       v.Name,
			Labels:     v.Labels,
			Mountpoint: v.Mountpoint,
			CreatedAt:  v.CreatedAt,
		})
	}
	return result, nil
}

func (r *VMTunnelRuntime) VolumeInspect(ctx context.Context, name string) (*types.VolumeInfo, error) {
	out, err := r.podman(ctx, "volume", "inspect", name, "--format", "json")
	if err != nil {
		if strings.Contains(string(out), "no such volume") {
			return nil, nil
		}
		return nil, err
	}

	var raw []podmanVolumeJSON
	if jsonErr := json.Unmarshal(out, &raw); jsonErr != nil {
		return nil, minoerrors.Serialization("parsing podman volume inspect output from microVM", jsonErr)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	v := raw[0]
	return &types.VolumeInfo{
		Name:       name,
		Labels:     v.Labels,
		Mountpoint: v.Mountpoint,
		CreatedAt:  v.CreatedAt,
	}, nil
}

func (r *VMTunnelRuntime) VolumeDiskUsage(ctx context.Context, prefix string) (map[string]int64, error) {
	out, err := r.podman(ctx, "system", "df", "-v", "--format", "json")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(out)) == "" {
		return map[string]int64{}, nil
	}

	var df podmanDiskUsage
	if jsonErr := json.Unmarshal(out, &df); jsonErr != nil {
		return nil, minoerrors.Serialization("parsing podman system df output from microVM", jsonErr)
	}

	sizes := map[string]int64{}
	for _, v := range df.Volumes {
		if strings.HasPrefix(v.VolumeName, prefix) {
			sizes[v.VolumeName] = v.Size
		}
	}
	return sizes, nil
}

var _ Runtime = (*VMTunnelRuntime)(nil)
